// Package score models a sub-query relevance score that may be absent.
package score

// WireAbsent is the sentinel the query-execution layer uses on the wire
// for "this sub-query produced no match for this document". It exists
// only at the transport boundary; inside the pipeline absence is
// explicit, never a magic float.
const WireAbsent = -1.0

// Score is an optional relevance score. The zero value is absent.
type Score struct {
	value   float64
	present bool
}

// Of creates a present score.
func Of(v float64) Score {
	return Score{value: v, present: true}
}

// None creates an absent score.
func None() Score { return Score{} }

// FromWire converts a raw wire value, mapping the sentinel to absent.
func FromWire(v float64) Score {
	if v == WireAbsent {
		return None()
	}
	return Of(v)
}

// Present reports whether the sub-query matched the document.
func (s Score) Present() bool { return s.present }

// Value returns the score. Only meaningful when Present.
func (s Score) Value() float64 { return s.value }

// Wire renders the score back into the sentinel convention.
func (s Score) Wire() float64 {
	if !s.present {
		return WireAbsent
	}
	return s.value
}
