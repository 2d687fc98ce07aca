// Package explain carries the per-document explanation overlay. Traces
// are assembled after the ranking is final and never influence it.
package explain

// Trace describes how one document's fused score came to be.
type Trace struct {
	normalization string
	combination   string
	rawScores     []float64
}

// New creates a trace. rawScores are the contributing raw sub-query
// scores in sub-query order.
func New(normalization, combination string, rawScores []float64) Trace {
	return Trace{
		normalization: normalization,
		combination:   combination,
		rawScores:     rawScores,
	}
}

// Normalization returns the normalization description.
func (t Trace) Normalization() string { return t.normalization }

// Combination returns the combination description.
func (t Trace) Combination() string { return t.combination }

// RawScores returns the contributing raw scores.
func (t Trace) RawScores() []float64 { return t.rawScores }
