package ec

import "testing"

func TestMaskBasics(t *testing.T) {
	m := NewMask(6)
	if m.Popcount() != 6 {
		t.Fatalf("popcount = %d, want 6", m.Popcount())
	}
	m = m.Clear(1).Clear(3)
	if m.Has(1) || m.Has(3) {
		t.Fatalf("clear failed: %s", m)
	}
	if !m.Has(0) || !m.Has(2) {
		t.Fatalf("unexpected clear: %s", m)
	}
	if got := m.String(); got != "{0,2,4,5}" {
		t.Fatalf("String() = %q", got)
	}
}

func TestMaskSubsetAlgebra(t *testing.T) {
	up := NewMask(6).Clear(1)
	healing := Mask(0).Set(2)
	good := up.AndNot(healing)
	if !good.IsSubset(up) {
		t.Fatalf("good %s is not a subset of up %s", good, up)
	}
	if good.Has(1) || good.Has(2) {
		t.Fatalf("good should exclude down/healing bricks: %s", good)
	}
}

func TestMaskFirstAndEmpty(t *testing.T) {
	var m Mask
	if !m.Empty() || m.First() != -1 {
		t.Fatalf("zero mask should be empty with First()==-1")
	}
	m = m.Set(3)
	if m.First() != 3 {
		t.Fatalf("First() = %d, want 3", m.First())
	}
}
