package score

import "testing"

func TestFromWire(t *testing.T) {
	if s := FromWire(WireAbsent); s.Present() {
		t.Error("expected the wire sentinel to map to absent")
	}
	if s := FromWire(0.0); !s.Present() || s.Value() != 0.0 {
		t.Error("expected 0.0 to be a present score, zero is a legal relevance")
	}
	if s := FromWire(0.75); !s.Present() || s.Value() != 0.75 {
		t.Errorf("expected present 0.75, got %+v", s)
	}
}

func TestWire(t *testing.T) {
	if got := None().Wire(); got != WireAbsent {
		t.Errorf("expected absent to render as %v, got %v", WireAbsent, got)
	}
	if got := Of(0.42).Wire(); got != 0.42 {
		t.Errorf("expected 0.42, got %v", got)
	}
}

func TestZeroValueIsAbsent(t *testing.T) {
	var s Score
	if s.Present() {
		t.Error("expected the zero value to be absent")
	}
	if s != None() {
		t.Error("expected the zero value to equal None()")
	}
}
