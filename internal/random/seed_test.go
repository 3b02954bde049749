package random

import "testing"

func TestNewSeedProducesDistinctValues(t *testing.T) {
	first, err := NewSeed()
	if err != nil {
		t.Fatalf("first seed: %v", err)
	}
	second, err := NewSeed()
	if err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct seeds, got %d twice", first)
	}
}
