// Package weights models the per-sub-query weight vector.
package weights

import (
	"fmt"
	"math"
	"strings"

	"github.com/kailas-cloud/hybridrank/internal/domain"
)

// SumEpsilon is the tolerance for the explicit-weight sum constraint.
const SumEpsilon = 1e-6

// Vector is an ordered weight list, one weight per sub-query.
type Vector struct {
	values  []float64
	uniform bool
}

// Uniform returns the default "no weighting" vector: 1.0 for each of n
// sub-queries. It is exempt from the sum constraint.
func Uniform(n int) Vector {
	values := make([]float64, n)
	for i := range values {
		values[i] = 1.0
	}
	return Vector{values: values, uniform: true}
}

// New validates and creates an explicit weight vector: every weight in
// [0,1] and the sum equal to 1.0 within SumEpsilon. Violations are
// configuration errors, detected before any document is processed.
func New(values []float64) (Vector, error) {
	if len(values) == 0 {
		return Vector{}, fmt.Errorf("%w: at least one weight is required", domain.ErrInvalidWeights)
	}
	sum := 0.0
	for i, w := range values {
		if w < 0 || w > 1 {
			return Vector{}, fmt.Errorf(
				"%w: weight %g at position %d is outside [0,1]", domain.ErrInvalidWeights, w, i,
			)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > SumEpsilon {
		return Vector{}, fmt.Errorf(
			"%w: weights must sum to 1.0, got %g", domain.ErrInvalidWeights, sum,
		)
	}
	cp := make([]float64, len(values))
	copy(cp, values)
	return Vector{values: cp}, nil
}

// Len returns the number of weights.
func (v Vector) Len() int { return len(v.values) }

// At returns the weight for sub-query i.
func (v Vector) At(i int) float64 { return v.values[i] }

// IsUniform reports whether this is the default unnormalized vector.
func (v Vector) IsUniform() bool { return v.uniform }

// IsZero reports whether the vector was never constructed.
func (v Vector) IsZero() bool { return v.values == nil }

// String renders "[w0 w1 ...]" for describe output.
func (v Vector) String() string {
	parts := make([]string, len(v.values))
	for i, w := range v.values {
		parts[i] = fmt.Sprintf("%g", w)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
