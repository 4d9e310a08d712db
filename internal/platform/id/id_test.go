package id

import (
	"strings"
	"testing"
)

func TestNewIDShape(t *testing.T) {
	value, err := NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	if len(value) != 26 {
		t.Fatalf("id length = %d, want 26", len(value))
	}
	if value != strings.ToLower(value) {
		t.Errorf("id %q is not lowercase", value)
	}
	if strings.ContainsAny(value, "=+/ ") {
		t.Errorf("id %q contains unsafe characters", value)
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 256; i++ {
		value, err := NewID()
		if err != nil {
			t.Fatalf("new id: %v", err)
		}
		if seen[value] {
			t.Fatalf("duplicate id %q", value)
		}
		seen[value] = true
	}
}
