package bundle

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mirelark/storyloom/internal/document"
	apperrors "github.com/mirelark/storyloom/internal/errors"
)

func TestExpandParams(t *testing.T) {
	params := map[string]string{"ruleset": "combat", "npc": "npc-02"}
	cases := map[string]string{
		"ruleset.rules.@ruleset": "ruleset.rules.combat",
		"world.factions":         "world.factions",
		"npcs.@npc.persona":      "npcs.npc-02.persona",
		"ruleset.@missing":       "ruleset.@missing",
	}
	for in, want := range cases {
		if got := expandParams(in, params); got != want {
			t.Errorf("expandParams(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResolvePath(t *testing.T) {
	root := map[string]any{
		"rules": map[string]any{"combat": "d20"},
		"tags":  []any{"grim"},
	}
	if value, ok := resolvePath(root, "rules.combat"); !ok || value != "d20" {
		t.Errorf("rules.combat = %v, %v", value, ok)
	}
	if value, ok := resolvePath(root, ""); !ok || value == nil {
		t.Errorf("empty path = %v, %v", value, ok)
	}
	if _, ok := resolvePath(root, "rules.social"); ok {
		t.Error("missing leaf resolved")
	}
	if _, ok := resolvePath(root, "tags.0"); ok {
		t.Error("indexing into an array resolved")
	}
}

func TestSetPathCreatesIntermediates(t *testing.T) {
	packet := NewTurnPacket()
	if err := setPath(packet, "world.regions.north.climate", "frozen"); err != nil {
		t.Fatalf("set: %v", err)
	}
	section, _ := packet.Get(SectionWorld)
	north := section.(map[string]any)["regions"].(map[string]any)["north"].(map[string]any)
	if north["climate"] != "frozen" {
		t.Fatalf("world section = %v", section)
	}

	// A second write under the same branch must not clobber siblings.
	if err := setPath(packet, "world.regions.north.peril", "high"); err != nil {
		t.Fatalf("second set: %v", err)
	}
	if north["climate"] != "frozen" || north["peril"] != "high" {
		t.Fatalf("north = %v", north)
	}
}

func TestSetPathRejectsUnknownSection(t *testing.T) {
	packet := NewTurnPacket()
	err := setPath(packet, "secrets.key", "x")
	if apperrors.CodeOf(err) != apperrors.CodeDocumentInvalid {
		t.Fatalf("code = %s, want DOCUMENT_INVALID", apperrors.CodeOf(err))
	}
}

func TestIsEmptyValue(t *testing.T) {
	for _, empty := range []any{nil, "", "  ", []any{}, map[string]any{}, 0.0} {
		if !isEmptyValue(empty) {
			t.Errorf("%#v not treated as empty", empty)
		}
	}
	for _, full := range []any{"x", []any{1.0}, map[string]any{"k": 1.0}, 2.0, true, false} {
		if isEmptyValue(full) {
			t.Errorf("%#v treated as empty", full)
		}
	}
}

func TestApplyLimit(t *testing.T) {
	list := []any{"a", "b", "c"}
	if got := applyLimit(list, 2).([]any); len(got) != 2 {
		t.Errorf("limited list = %v", got)
	}
	if got := applyLimit(list, 0).([]any); len(got) != 3 {
		t.Errorf("unlimited list = %v", got)
	}
	if got := applyLimit("abcdef", 4).(string); got != "abcd" {
		t.Errorf("limited string = %q", got)
	}
	if got := applyLimit(7.0, 2); got != 7.0 {
		t.Errorf("number changed: %v", got)
	}
}

func injectionFixture(t *testing.T, rules string) (*Assembler, Input) {
	t.Helper()
	store := fixtureStore(t, 1)
	store.add(t, document.Document{
		ID: "inj-base", Version: 1, Kind: document.KindInjectionMap,
		Content: json.RawMessage(rules),
	})
	in := fixtureInput(1)
	in.Refs.InjectionMap = document.Ref{ID: "inj-base", Version: 1}
	return NewAssembler(store, Config{MaxTokens: 100000, ActiveNPCCap: 5}), in
}

func TestAssembleAppliesInjectionRules(t *testing.T) {
	assembler, in := injectionFixture(t, `{"injections": [
		{"from": "ruleset.rules.@table", "to": "world.active_rule"}
	]}`)
	in.Params = map[string]string{"table": "combat"}

	result, err := assembler.Assemble(context.Background(), in)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	world, _ := result.Packet.Get(SectionWorld)
	if world.(map[string]any)["active_rule"] != "d20" {
		t.Fatalf("world section = %v", world)
	}
}

func TestAssembleInjectionFallbackAndSkip(t *testing.T) {
	assembler, in := injectionFixture(t, `{"injections": [
		{"from": "ruleset.rules.naval", "to": "world.naval_rule", "fallback": "none"},
		{"from": "ruleset.rules.aerial", "to": "world.aerial_rule", "skipIfEmpty": true}
	]}`)

	result, err := assembler.Assemble(context.Background(), in)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	world, _ := result.Packet.Get(SectionWorld)
	worldMap := world.(map[string]any)
	if worldMap["naval_rule"] != "none" {
		t.Errorf("fallback not applied: %v", worldMap)
	}
	if _, exists := worldMap["aerial_rule"]; exists {
		t.Errorf("skipIfEmpty rule wrote a value: %v", worldMap)
	}
}

func TestAssembleInjectionMissingSourceIsTyped(t *testing.T) {
	assembler, in := injectionFixture(t, `{"injections": [
		{"from": "ruleset.rules.naval", "to": "world.naval_rule"}
	]}`)

	_, err := assembler.Assemble(context.Background(), in)
	if apperrors.CodeOf(err) != apperrors.CodeBundleMissingDocument {
		t.Fatalf("code = %s, want BUNDLE_MISSING_DOCUMENT", apperrors.CodeOf(err))
	}
}
