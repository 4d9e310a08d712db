package turn

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Bounds on model output accepted by the validator.
const (
	maxChoices        = 12
	maxActions        = 8
	maxNarrativeBytes = 16384
	maxLabelBytes     = 256
)

// allowedKeys is the closed set of top-level keys a model response may carry.
// "text" and "story" are legacy narrative shapes accepted for normalization.
var allowedKeys = map[string]bool{
	"narrative": true,
	"text":      true,
	"story":     true,
	"choices":   true,
	"actions":   true,
	"emotion":   true,
	"warnings":  true,
}

// rawResponse is a parsed-but-unvalidated model response.
type rawResponse map[string]any

// parseRaw decodes one model response. The response must be a single JSON
// object; anything else is a validation failure fed back to the repair loop.
func parseRaw(text string) (rawResponse, error) {
	trimmed := strings.TrimSpace(text)
	var raw map[string]any
	decoder := json.NewDecoder(strings.NewReader(trimmed))
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %v", err)
	}
	if decoder.More() {
		return nil, fmt.Errorf("response contains trailing content after the JSON object")
	}
	return rawResponse(raw), nil
}

// validateRaw checks a parsed response against the output schema: key
// allowlist, at least one narrative source, and bounds on arrays and field
// sizes. The returned error text is sent verbatim to the model on repair.
func validateRaw(raw rawResponse) error {
	var unknown []string
	for key := range raw {
		if !allowedKeys[key] {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown keys %v; allowed keys are narrative, text, story, choices, actions, emotion, warnings", unknown)
	}

	if !hasNarrativeSource(raw) {
		return fmt.Errorf("one of narrative, text, or story must be present")
	}
	if narrative, ok := raw["narrative"]; ok {
		text, isString := narrative.(string)
		if !isString {
			return fmt.Errorf("narrative must be a string, got %T", narrative)
		}
		if len(text) > maxNarrativeBytes {
			return fmt.Errorf("narrative exceeds %d bytes", maxNarrativeBytes)
		}
	}

	if choices, ok := raw["choices"]; ok {
		list, isList := choices.([]any)
		if !isList {
			return fmt.Errorf("choices must be an array, got %T", choices)
		}
		if len(list) > maxChoices {
			return fmt.Errorf("choices has %d entries, maximum is %d", len(list), maxChoices)
		}
		for i, entry := range list {
			if err := validateChoice(entry); err != nil {
				return fmt.Errorf("choices[%d]: %v", i, err)
			}
		}
	}

	if actions, ok := raw["actions"]; ok {
		list, isList := actions.([]any)
		if !isList {
			return fmt.Errorf("actions must be an array, got %T", actions)
		}
		if len(list) > maxActions {
			return fmt.Errorf("actions has %d entries, maximum is %d", len(list), maxActions)
		}
		for i, entry := range list {
			action, isObject := entry.(map[string]any)
			if !isObject {
				return fmt.Errorf("actions[%d] must be an object, got %T", i, entry)
			}
			if _, hasType := action["type"].(string); !hasType {
				return fmt.Errorf("actions[%d] is missing a string type", i)
			}
		}
	}

	if emotion, ok := raw["emotion"]; ok {
		if _, isString := emotion.(string); !isString {
			return fmt.Errorf("emotion must be a string, got %T", emotion)
		}
	}
	return nil
}

func hasNarrativeSource(raw rawResponse) bool {
	for _, key := range []string{"narrative", "text"} {
		if _, ok := raw[key]; ok {
			return true
		}
	}
	if story, ok := raw["story"].(map[string]any); ok {
		if _, ok := story["text"]; ok {
			return true
		}
	}
	if _, ok := raw["story"].(string); ok {
		return true
	}
	return false
}

// validateChoice accepts the heterogeneous shapes normalization understands.
func validateChoice(entry any) error {
	switch choice := entry.(type) {
	case string:
		if len(choice) > maxLabelBytes {
			return fmt.Errorf("label exceeds %d bytes", maxLabelBytes)
		}
		return nil
	case map[string]any:
		label := choiceLabel(choice)
		if strings.TrimSpace(label) == "" {
			return fmt.Errorf("must carry a label, text, or choice field")
		}
		if len(label) > maxLabelBytes {
			return fmt.Errorf("label exceeds %d bytes", maxLabelBytes)
		}
		return nil
	default:
		return fmt.Errorf("must be a string or object, got %T", entry)
	}
}

// choiceLabel extracts the label from an object-shaped choice, trying the
// canonical field then the legacy aliases.
func choiceLabel(choice map[string]any) string {
	for _, key := range []string{"label", "text", "choice"} {
		if value, ok := choice[key].(string); ok && strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
