package fusion

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/kailas-cloud/hybridrank/internal/domain"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/score"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/scoretable"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/shard"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/technique"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/weights"
)

func mustWeights(t *testing.T, values []float64) weights.Vector {
	t.Helper()
	w, err := weights.New(values)
	if err != nil {
		t.Fatalf("build weights: %v", err)
	}
	return w
}

func scoresOf(values ...float64) []score.Score {
	out := make([]score.Score, len(values))
	for i, v := range values {
		out[i] = score.FromWire(v)
	}
	return out
}

func TestNewCombiner_Validation(t *testing.T) {
	t.Run("invalid technique", func(t *testing.T) {
		_, err := NewCombiner("median", weights.Vector{}, 0, 2)
		if !errors.Is(err, domain.ErrInvalidTechnique) {
			t.Errorf("expected ErrInvalidTechnique, got %v", err)
		}
	})

	t.Run("weight count mismatch", func(t *testing.T) {
		w := mustWeights(t, []float64{0.5, 0.5})
		_, err := NewCombiner(technique.ArithmeticMean, w, 0, 3)
		if !errors.Is(err, domain.ErrInvalidWeights) {
			t.Errorf("expected ErrInvalidWeights, got %v", err)
		}
	})

	t.Run("rank constant out of range", func(t *testing.T) {
		for _, rc := range []int{-5, 10001} {
			_, err := NewCombiner(technique.RRF, weights.Vector{}, rc, 2)
			if !errors.Is(err, domain.ErrInvalidRankConstant) {
				t.Errorf("rank constant %d: expected ErrInvalidRankConstant, got %v", rc, err)
			}
		}
	})

	t.Run("rank constant defaults", func(t *testing.T) {
		c, err := NewCombiner(technique.RRF, weights.Vector{}, 0, 2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.rankConstant != technique.DefaultRankConstant {
			t.Errorf("expected default rank constant %d, got %d", technique.DefaultRankConstant, c.rankConstant)
		}
	})

	t.Run("zero weights default to uniform", func(t *testing.T) {
		c, err := NewCombiner(technique.ArithmeticMean, weights.Vector{}, 0, 3)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !c.weights.IsUniform() || c.weights.Len() != 3 {
			t.Errorf("expected uniform weights of length 3, got %s", c.weights)
		}
	})
}

func TestCombine_ArithmeticMean(t *testing.T) {
	c, _ := NewCombiner(technique.ArithmeticMean, weights.Vector{}, 0, 3)

	got := c.Combine(scoresOf(1.0, 0.5, 0.3))
	if !approxEqual(got, 0.6) {
		t.Errorf("got %v, want 0.6", got)
	}
}

func TestCombine_ArithmeticMean_Weighted(t *testing.T) {
	w := mustWeights(t, []float64{0.3, 0.7})
	c, _ := NewCombiner(technique.ArithmeticMean, w, 0, 2)

	got := c.Combine(scoresOf(1.0, 0.0))
	if !approxEqual(got, 0.3) {
		t.Errorf("got %v, want 0.3", got)
	}
}

func TestCombine_SinglePresentScoreIsIdentity(t *testing.T) {
	// A document matched by one sub-query keeps exactly that score,
	// regardless of technique.
	for _, tech := range []technique.Combination{
		technique.ArithmeticMean, technique.GeometricMean, technique.HarmonicMean,
	} {
		t.Run(string(tech), func(t *testing.T) {
			c, _ := NewCombiner(tech, weights.Vector{}, 0, 2)
			got := c.Combine(scoresOf(0.42, score.WireAbsent))
			if !approxEqual(got, 0.42) {
				t.Errorf("got %v, want 0.42", got)
			}
		})
	}
}

func TestCombine_GeometricMean(t *testing.T) {
	c, _ := NewCombiner(technique.GeometricMean, weights.Vector{}, 0, 2)

	got := c.Combine(scoresOf(0.25, 1.0))
	if !approxEqual(got, 0.5) {
		t.Errorf("got %v, want 0.5", got)
	}
}

func TestCombine_GeometricMean_ExcludesNonPositive(t *testing.T) {
	c, _ := NewCombiner(technique.GeometricMean, weights.Vector{}, 0, 2)

	// Zero has no logarithm; it must be skipped like an absent entry.
	got := c.Combine(scoresOf(0.0, 0.5))
	if !approxEqual(got, 0.5) {
		t.Errorf("got %v, want 0.5", got)
	}
}

func TestCombine_HarmonicMean(t *testing.T) {
	c, _ := NewCombiner(technique.HarmonicMean, weights.Vector{}, 0, 2)

	got := c.Combine(scoresOf(1.0, 0.5))
	if !approxEqual(got, 2.0/3.0) {
		t.Errorf("got %v, want %v", got, 2.0/3.0)
	}
}

func TestCombine_AllAbsentYieldsZero(t *testing.T) {
	for _, tech := range []technique.Combination{
		technique.ArithmeticMean, technique.GeometricMean, technique.HarmonicMean, technique.RRF,
	} {
		t.Run(string(tech), func(t *testing.T) {
			c, _ := NewCombiner(tech, weights.Vector{}, 0, 2)
			if got := c.Combine(scoresOf(score.WireAbsent, score.WireAbsent)); got != 0 {
				t.Errorf("got %v, want 0", got)
			}
		})
	}
}

func TestRankTransform(t *testing.T) {
	table := newTable(t,
		scoretable.NewShardScores(shard.NewID("idx", 0), [][]scoretable.Entry{
			{ent(5, 0.9), ent(7, 0.4)},
			{ent(7, 12.5)},
		}),
		scoretable.NewShardScores(shard.NewID("idx", 1), [][]scoretable.Entry{
			{ent(9, 0.8)},
			{},
		}),
	)

	c, _ := NewCombiner(technique.RRF, weights.Vector{}, 0, 2)
	out := c.RankTransform(table)

	cases := []struct {
		name                    string
		shardIdx, subQuery, pos int
		wantRank                int
	}{
		{"first of shard 0 sub-query 0", 0, 0, 0, 1},
		{"second of shard 0 sub-query 0", 0, 0, 1, 2},
		{"first of shard 0 sub-query 1", 0, 1, 0, 1},
		{"ranks restart on shard 1", 1, 0, 0, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			want := 1.0 / float64(tc.wantRank+technique.DefaultRankConstant)
			got := entryAt(t, out, tc.shardIdx, tc.subQuery, tc.pos).Score()
			if !got.Present() {
				t.Fatal("rank score unexpectedly absent")
			}
			if !approxEqual(got.Value(), want) {
				t.Errorf("got %v, want %v", got.Value(), want)
			}
		})
	}
}

func TestRankTransform_SkipsAbsentEntries(t *testing.T) {
	table := newTable(t,
		scoretable.NewShardScores(shard.NewID("idx", 0), [][]scoretable.Entry{
			{ent(1, 0.9), ent(2, score.WireAbsent), ent(3, 0.1)},
		}),
	)

	c, _ := NewCombiner(technique.RRF, weights.Vector{}, 0, 1)
	out := c.RankTransform(table)

	if entryAt(t, out, 0, 0, 1).Score().Present() {
		t.Error("absent entry should stay absent")
	}
	// The absent entry does not consume a rank.
	want := 1.0 / float64(2+technique.DefaultRankConstant)
	if got := entryAt(t, out, 0, 0, 2).Score().Value(); !approxEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestCombine_RRFWeightedSum(t *testing.T) {
	c, _ := NewCombiner(technique.RRF, weights.Vector{}, 0, 2)

	r1 := 1.0 / 61.0
	r2 := 1.0 / 62.0
	got := c.Combine(scoresOf(r1, r2))
	if !approxEqual(got, r1+r2) {
		t.Errorf("got %v, want %v", got, r1+r2)
	}
}

func TestCombiner_Describe(t *testing.T) {
	rrf, _ := NewCombiner(technique.RRF, weights.Vector{}, 100, 2)
	if got := rrf.Describe(); got != "rrf, rank_constant [100]" {
		t.Errorf("got %q", got)
	}

	w := mustWeights(t, []float64{0.4, 0.6})
	mean, _ := NewCombiner(technique.ArithmeticMean, w, 0, 2)
	if got := mean.Describe(); !strings.Contains(got, "arithmetic_mean") || !strings.Contains(got, "[0.4 0.6]") {
		t.Errorf("got %q", got)
	}
}

func TestCombine_HarmonicIgnoresInfinities(t *testing.T) {
	c, _ := NewCombiner(technique.HarmonicMean, weights.Vector{}, 0, 2)
	got := c.Combine(scoresOf(0.0, 0.0))
	if got != 0 || math.IsInf(got, 0) || math.IsNaN(got) {
		t.Errorf("got %v, want 0", got)
	}
}
