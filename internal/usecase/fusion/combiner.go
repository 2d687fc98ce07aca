package fusion

import (
	"fmt"
	"math"

	"github.com/kailas-cloud/hybridrank/internal/domain"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/score"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/scoretable"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/technique"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/weights"
)

// Combiner merges one document's per-sub-query scores into a single
// fused score. Combine is a pure function of its inputs, so documents
// can be combined in any order, or in parallel, with identical results.
type Combiner struct {
	technique    technique.Combination
	weights      weights.Vector
	rankConstant int
}

// NewCombiner validates the combination configuration once, before any
// document is processed: technique name, weight count against the
// sub-query count, and the RRF rank constant range.
func NewCombiner(
	tech technique.Combination, w weights.Vector, rankConstant, numSubQueries int,
) (*Combiner, error) {
	if !tech.IsValid() {
		return nil, fmt.Errorf(
			"%w: unsupported combination technique %q", domain.ErrInvalidTechnique, tech,
		)
	}
	if w.IsZero() {
		w = weights.Uniform(numSubQueries)
	}
	if w.Len() != numSubQueries {
		return nil, fmt.Errorf(
			"%w: %d weights for %d sub-queries", domain.ErrInvalidWeights, w.Len(), numSubQueries,
		)
	}
	if rankConstant == 0 {
		rankConstant = technique.DefaultRankConstant
	}
	if tech.IsRankBased() &&
		(rankConstant < technique.MinRankConstant || rankConstant > technique.MaxRankConstant) {
		return nil, fmt.Errorf(
			"%w: rank constant must be between %d and %d, got %d",
			domain.ErrInvalidRankConstant,
			technique.MinRankConstant, technique.MaxRankConstant, rankConstant,
		)
	}
	return &Combiner{technique: tech, weights: w, rankConstant: rankConstant}, nil
}

// Describe returns the technique summary used in explain payloads.
func (c *Combiner) Describe() string {
	if c.technique.IsRankBased() {
		return fmt.Sprintf("%s, rank_constant [%d]", c.technique, c.rankConstant)
	}
	return fmt.Sprintf("%s, weights %s", c.technique, c.weights)
}

// IsRankBased reports whether the pipeline must feed rank scores
// instead of normalized scores into Combine.
func (c *Combiner) IsRankBased() bool { return c.technique.IsRankBased() }

// RankTransform rewrites every present score to its reciprocal rank
// contribution 1/(rank + K), rank being the 1-based position among the
// present entries of that sub-query's own sorted list. Each shard ranked
// its list independently, so ranks restart per shard. Used in place of
// normalization for rank-based combination.
func (c *Combiner) RankTransform(table scoretable.Table) scoretable.Table {
	out := make([]scoretable.ShardScores, 0, len(table.Shards()))
	for _, s := range table.Shards() {
		subQueries := make([][]scoretable.Entry, len(s.SubQueries()))
		for j, sq := range s.SubQueries() {
			entries := make([]scoretable.Entry, len(sq))
			rank := 0
			for k, e := range sq {
				if !e.Score().Present() {
					entries[k] = e
					continue
				}
				rank++
				entries[k] = e.WithScore(score.Of(c.rankScore(rank)))
			}
			subQueries[j] = entries
		}
		out = append(out, scoretable.NewShardScores(s.Shard(), subQueries))
	}
	// Shape is unchanged, re-validation cannot fail.
	t, _ := scoretable.New(out)
	return t
}

func (c *Combiner) rankScore(rank int) float64 {
	return 1.0 / float64(rank+c.rankConstant)
}

// Combine merges the per-sub-query scores of one document. For the mean
// techniques the inputs are normalized scores; for RRF they are the
// rank scores produced by RankTransform. A document with no usable
// entries combines to 0.
func (c *Combiner) Combine(scores []score.Score) float64 {
	switch c.technique {
	case technique.GeometricMean:
		return c.combineGeometric(scores)
	case technique.HarmonicMean:
		return c.combineHarmonic(scores)
	case technique.RRF:
		return c.combineWeightedSum(scores)
	default:
		return c.combineArithmetic(scores)
	}
}

func (c *Combiner) combineArithmetic(scores []score.Score) float64 {
	var weighted, weightSum float64
	for i, s := range scores {
		if !s.Present() {
			continue
		}
		w := c.weights.At(i)
		weighted += s.Value() * w
		weightSum += w
	}
	if weightSum == 0 {
		return 0
	}
	return weighted / weightSum
}

// combineGeometric averages in log space. Entries with score <= 0 have
// no logarithm and are excluded from both numerator and denominator,
// exactly like absent entries.
func (c *Combiner) combineGeometric(scores []score.Score) float64 {
	var logSum, weightSum float64
	for i, s := range scores {
		if !s.Present() || s.Value() <= 0 {
			continue
		}
		w := c.weights.At(i)
		logSum += w * math.Log(s.Value())
		weightSum += w
	}
	if weightSum == 0 {
		return 0
	}
	return math.Exp(logSum / weightSum)
}

func (c *Combiner) combineHarmonic(scores []score.Score) float64 {
	var weightSum, reciprocalSum float64
	for i, s := range scores {
		if !s.Present() || s.Value() <= 0 {
			continue
		}
		w := c.weights.At(i)
		weightSum += w
		reciprocalSum += w / s.Value()
	}
	if reciprocalSum == 0 {
		return 0
	}
	return weightSum / reciprocalSum
}

// combineWeightedSum sums weight_i * rankScore_i; sub-queries where the
// document is absent contribute nothing.
func (c *Combiner) combineWeightedSum(scores []score.Score) float64 {
	var sum float64
	for i, s := range scores {
		if !s.Present() {
			continue
		}
		sum += c.weights.At(i) * s.Value()
	}
	return sum
}
