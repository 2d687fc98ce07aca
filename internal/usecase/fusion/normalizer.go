package fusion

import (
	"fmt"
	"math"

	"github.com/kailas-cloud/hybridrank/internal/domain"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/score"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/scoretable"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/technique"
)

// Degenerate-distribution fallbacks. A sub-query whose global min and
// max coincide (or whose stddev is zero) carries no ranking signal, so
// every present score maps to the same constant instead of dividing by
// zero.
const (
	minMaxDegenerateScore = 1.0
	zScoreDegenerateScore = 1.0
	l2ZeroNormScore       = 0.0
)

// Normalizer rescales each sub-query's score distribution onto a
// comparable scale. Statistics are computed over the sub-query's
// candidates from all shards at once: shards score with different
// internals, so per-shard statistics would make their scores
// incomparable.
type Normalizer struct {
	technique technique.Normalization
}

// NewNormalizer validates the technique name. An unsupported name is a
// configuration error surfaced here, never at normalize time.
func NewNormalizer(tech technique.Normalization) (*Normalizer, error) {
	if !tech.IsValid() {
		return nil, fmt.Errorf(
			"%w: unsupported normalization technique %q", domain.ErrInvalidTechnique, tech,
		)
	}
	return &Normalizer{technique: tech}, nil
}

// Describe returns the technique summary used in explain payloads.
func (n *Normalizer) Describe() string { return string(n.technique) }

// Normalize returns a copy of the table with every present score
// rescaled. Absent scores are excluded from the statistics and pass
// through unchanged.
func (n *Normalizer) Normalize(table scoretable.Table) scoretable.Table {
	numSub := table.NumSubQueries()
	if numSub == 0 {
		return table
	}

	var rescale []func(float64) float64
	switch n.technique {
	case technique.L2:
		rescale = l2Rescalers(table, numSub)
	case technique.ZScore:
		rescale = zScoreRescalers(table, numSub)
	default:
		rescale = minMaxRescalers(table, numSub)
	}

	return table.Map(func(subQuery int, e scoretable.Entry) score.Score {
		if !e.Score().Present() {
			return e.Score()
		}
		return score.Of(rescale[subQuery](e.Score().Value()))
	})
}

// forEachPresent visits every present score of every shard, grouped by
// sub-query index.
func forEachPresent(table scoretable.Table, visit func(subQuery int, v float64)) {
	for _, s := range table.Shards() {
		for j, sq := range s.SubQueries() {
			for _, e := range sq {
				if e.Score().Present() {
					visit(j, e.Score().Value())
				}
			}
		}
	}
}

func minMaxRescalers(table scoretable.Table, numSub int) []func(float64) float64 {
	mins := make([]float64, numSub)
	maxs := make([]float64, numSub)
	seen := make([]bool, numSub)
	forEachPresent(table, func(j int, v float64) {
		if !seen[j] {
			mins[j], maxs[j], seen[j] = v, v, true
			return
		}
		mins[j] = math.Min(mins[j], v)
		maxs[j] = math.Max(maxs[j], v)
	})

	fns := make([]func(float64) float64, numSub)
	for j := range fns {
		minV, maxV := mins[j], maxs[j]
		fns[j] = func(v float64) float64 {
			if maxV == minV {
				return minMaxDegenerateScore
			}
			return (v - minV) / (maxV - minV)
		}
	}
	return fns
}

func l2Rescalers(table scoretable.Table, numSub int) []func(float64) float64 {
	sumSquares := make([]float64, numSub)
	forEachPresent(table, func(j int, v float64) {
		sumSquares[j] += v * v
	})

	fns := make([]func(float64) float64, numSub)
	for j := range fns {
		norm := math.Sqrt(sumSquares[j])
		fns[j] = func(v float64) float64 {
			if norm == 0 {
				return l2ZeroNormScore
			}
			return v / norm
		}
	}
	return fns
}

func zScoreRescalers(table scoretable.Table, numSub int) []func(float64) float64 {
	sums := make([]float64, numSub)
	counts := make([]int, numSub)
	forEachPresent(table, func(j int, v float64) {
		sums[j] += v
		counts[j]++
	})

	means := make([]float64, numSub)
	for j := range means {
		if counts[j] > 0 {
			means[j] = sums[j] / float64(counts[j])
		}
	}

	deltaSums := make([]float64, numSub)
	forEachPresent(table, func(j int, v float64) {
		d := v - means[j]
		deltaSums[j] += d * d
	})

	fns := make([]func(float64) float64, numSub)
	for j := range fns {
		mean := means[j]
		var stddev float64
		if counts[j] > 0 {
			stddev = math.Sqrt(deltaSums[j] / float64(counts[j]))
		}
		fns[j] = func(v float64) float64 {
			if stddev == 0 {
				return zScoreDegenerateScore
			}
			return (v - mean) / stddev
		}
	}
	return fns
}
