package turn

import (
	"strings"
	"testing"
)

func TestParseRawRejectsNonObjects(t *testing.T) {
	for _, text := range []string{
		"",
		"not json",
		`"a string"`,
		`[1, 2, 3]`,
		`{"narrative": "ok"} trailing`,
	} {
		if _, err := parseRaw(text); err == nil {
			t.Errorf("parseRaw(%q) accepted a non-object", text)
		}
	}
}

func TestParseRawAcceptsSurroundingWhitespace(t *testing.T) {
	raw, err := parseRaw("\n  {\"narrative\": \"ok\"}  \n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if raw["narrative"] != "ok" {
		t.Fatalf("raw = %v", raw)
	}
}

func TestValidateRawUnknownKeys(t *testing.T) {
	raw := rawResponse{"narrative": "ok", "mood": "tense", "scene": 2.0}
	err := validateRaw(raw)
	if err == nil {
		t.Fatal("expected unknown-key error")
	}
	// Both offenders named, sorted, for a useful repair prompt.
	if !strings.Contains(err.Error(), "mood") || !strings.Contains(err.Error(), "scene") {
		t.Fatalf("error = %v", err)
	}
}

func TestValidateRawRequiresNarrativeSource(t *testing.T) {
	if err := validateRaw(rawResponse{"choices": []any{}}); err == nil {
		t.Fatal("expected missing-narrative error")
	}
	for _, raw := range []rawResponse{
		{"narrative": "a"},
		{"text": "a"},
		{"story": map[string]any{"text": "a"}},
		{"story": "a"},
	} {
		if err := validateRaw(raw); err != nil {
			t.Errorf("validateRaw(%v) = %v, want nil", raw, err)
		}
	}
}

func TestValidateRawBounds(t *testing.T) {
	tooManyChoices := make([]any, maxChoices+1)
	for i := range tooManyChoices {
		tooManyChoices[i] = "go"
	}
	if err := validateRaw(rawResponse{"narrative": "a", "choices": tooManyChoices}); err == nil {
		t.Error("expected choices bound error")
	}

	tooManyActions := make([]any, maxActions+1)
	for i := range tooManyActions {
		tooManyActions[i] = map[string]any{"type": "noop"}
	}
	if err := validateRaw(rawResponse{"narrative": "a", "actions": tooManyActions}); err == nil {
		t.Error("expected actions bound error")
	}

	huge := strings.Repeat("x", maxNarrativeBytes+1)
	if err := validateRaw(rawResponse{"narrative": huge}); err == nil {
		t.Error("expected narrative size error")
	}
}

func TestValidateRawChoiceShapes(t *testing.T) {
	valid := rawResponse{"narrative": "a", "choices": []any{
		"bare string",
		map[string]any{"id": "x", "label": "Label"},
		map[string]any{"text": "Text shape"},
		map[string]any{"choice": "Choice shape"},
	}}
	if err := validateRaw(valid); err != nil {
		t.Fatalf("validate: %v", err)
	}

	for _, bad := range []any{
		7.0,
		map[string]any{"id": "x"},
		map[string]any{"label": "   "},
	} {
		raw := rawResponse{"narrative": "a", "choices": []any{bad}}
		if err := validateRaw(raw); err == nil {
			t.Errorf("choice %v accepted", bad)
		}
	}
}

func TestValidateRawActionShapes(t *testing.T) {
	if err := validateRaw(rawResponse{"narrative": "a", "actions": []any{"grant"}}); err == nil {
		t.Error("expected non-object action error")
	}
	if err := validateRaw(rawResponse{"narrative": "a", "actions": []any{map[string]any{"params": map[string]any{}}}}); err == nil {
		t.Error("expected missing-type action error")
	}
}
