// Package technique names the interchangeable numeric techniques of the
// fusion pipeline.
package technique

// Normalization selects how raw sub-query scores are rescaled onto a
// comparable scale before combination.
type Normalization string

// Normalization technique constants.
const (
	// MinMax rescales each sub-query's global distribution to [0,1].
	MinMax Normalization = "min_max"
	L2     Normalization = "l2"
	ZScore Normalization = "z_score"
)

// IsValid checks if the normalization technique is supported.
func (n Normalization) IsValid() bool {
	return n == MinMax || n == L2 || n == ZScore
}

// Combination selects how a document's normalized per-sub-query scores
// merge into one fused score.
type Combination string

// Combination technique constants.
const (
	ArithmeticMean Combination = "arithmetic_mean"
	GeometricMean  Combination = "geometric_mean"
	HarmonicMean   Combination = "harmonic_mean"
	// RRF fuses by each sub-query's rank position instead of its score.
	RRF Combination = "rrf"
)

// IsValid checks if the combination technique is supported.
func (c Combination) IsValid() bool {
	return c == ArithmeticMean || c == GeometricMean || c == HarmonicMean || c == RRF
}

// IsRankBased reports whether the technique consumes rank positions
// rather than normalized scores.
func (c Combination) IsRankBased() bool { return c == RRF }

// Rank constant bounds for RRF.
const (
	DefaultRankConstant = 60
	MinRankConstant     = 1
	MaxRankConstant     = 10_000
)
