package turn

import "testing"

func TestSeedIsStable(t *testing.T) {
	first := Seed("session-1", 3)
	second := Seed("session-1", 3)
	if first != second {
		t.Fatalf("seed not stable: %d vs %d", first, second)
	}
}

func TestSeedVariesByInput(t *testing.T) {
	base := Seed("session-1", 3)
	if Seed("session-1", 4) == base {
		t.Error("seed identical across turn numbers")
	}
	if Seed("session-2", 3) == base {
		t.Error("seed identical across sessions")
	}
}
