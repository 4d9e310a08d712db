package document

import (
	"encoding/json"
	"testing"
)

func TestCanonicalizeSortsKeysRecursively(t *testing.T) {
	content := json.RawMessage(`{"b": {"z": 1, "a": 2}, "a": [{"y": true, "x": false}]}`)
	canonical, err := Canonicalize(content)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	want := `{"a":[{"x":false,"y":true}],"b":{"a":2,"z":1}}`
	if string(canonical) != want {
		t.Fatalf("canonical = %s, want %s", canonical, want)
	}
}

func TestHashIgnoresKeyOrder(t *testing.T) {
	first := json.RawMessage(`{"name": "Mira", "stats": {"wit": 3, "grit": 2}}`)
	second := json.RawMessage(`{"stats": {"grit": 2, "wit": 3}, "name": "Mira"}`)

	h1, err := Hash(first)
	if err != nil {
		t.Fatalf("hash first: %v", err)
	}
	h2, err := Hash(second)
	if err != nil {
		t.Fatalf("hash second: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("hashes differ: %s vs %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Fatalf("hash length = %d, want 64 hex chars", len(h1))
	}
}

func TestHashDetectsContentChange(t *testing.T) {
	h1, err := Hash(json.RawMessage(`{"name": "Mira"}`))
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, err := Hash(json.RawMessage(`{"name": "Mara"}`))
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 == h2 {
		t.Fatal("distinct content should hash differently")
	}
}

func TestCanonicalizePreservesNumberText(t *testing.T) {
	canonical, err := Canonicalize(json.RawMessage(`{"qty": 10, "rate": 0.25}`))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if string(canonical) != `{"qty":10,"rate":0.25}` {
		t.Fatalf("canonical = %s", canonical)
	}
}

func TestCanonicalizeRejectsMalformed(t *testing.T) {
	if _, err := Canonicalize(json.RawMessage(`{"a":`)); err == nil {
		t.Fatal("expected error for truncated JSON")
	}
	if _, err := Canonicalize(json.RawMessage(`{} {}`)); err == nil {
		t.Fatal("expected error for trailing value")
	}
}
