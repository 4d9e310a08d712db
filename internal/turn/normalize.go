package turn

import (
	"fmt"
	"strings"

	apperrors "github.com/mirelark/storyloom/internal/errors"
)

// normalize converts a validated raw response into the canonical Result.
// Every substitution or synthesis appends a warning code. The normalized
// result is re-checked before return; failing that check is an internal bug,
// not bad model output.
func normalize(raw rawResponse) (Result, error) {
	var result Result

	result.Narrative = narrativeFrom(raw, &result.Warnings)
	if strings.TrimSpace(result.Narrative) == "" {
		result.Narrative = FallbackNarrative
		result.Warnings = append(result.Warnings, WarnEmptyNarrative)
	}

	if list, ok := raw["choices"].([]any); ok {
		used := make(map[string]bool, len(list))
		for _, entry := range list {
			choice, ok := normalizeChoice(entry, &result.Warnings)
			if !ok {
				continue
			}
			// Colliding ids (duplicate labels, duplicate model ids) get a
			// numeric suffix so the result stays addressable.
			if used[choice.ID] {
				base := choice.ID
				for n := 2; ; n++ {
					candidate := fmt.Sprintf("%s_%d", base, n)
					if !used[candidate] {
						choice.ID = candidate
						break
					}
				}
			}
			used[choice.ID] = true
			result.Choices = append(result.Choices, choice)
		}
	}
	if len(result.Choices) == 0 {
		result.Choices = []Choice{{ID: FallbackChoiceID, Label: FallbackChoice}}
		result.Warnings = append(result.Warnings, WarnEmptyChoices)
	}

	if list, ok := raw["actions"].([]any); ok {
		for _, entry := range list {
			action, ok := normalizeAction(entry)
			if !ok {
				result.Warnings = append(result.Warnings, WarnActionDropped)
				continue
			}
			result.Actions = append(result.Actions, action)
		}
	}

	if emotion, ok := raw["emotion"].(string); ok {
		result.Emotion = strings.TrimSpace(emotion)
	}

	if err := checkNormalized(result); err != nil {
		return Result{}, apperrors.Wrap(apperrors.CodeInternalNormalization, err, "normalized turn failed validation")
	}
	return result, nil
}

// narrativeFrom sources narrative text by priority: the primary field, the
// legacy "text" alias, then the nested story shape. Alias use is recorded.
func narrativeFrom(raw rawResponse, warnings *[]string) string {
	if narrative, ok := raw["narrative"].(string); ok && strings.TrimSpace(narrative) != "" {
		return strings.TrimSpace(narrative)
	}
	if text, ok := raw["text"].(string); ok && strings.TrimSpace(text) != "" {
		*warnings = append(*warnings, WarnNarrativeFromAlias)
		return strings.TrimSpace(text)
	}
	if story, ok := raw["story"].(map[string]any); ok {
		if text, ok := story["text"].(string); ok && strings.TrimSpace(text) != "" {
			*warnings = append(*warnings, WarnNarrativeFromNested)
			return strings.TrimSpace(text)
		}
	}
	if story, ok := raw["story"].(string); ok && strings.TrimSpace(story) != "" {
		*warnings = append(*warnings, WarnNarrativeFromNested)
		return strings.TrimSpace(story)
	}
	return ""
}

// normalizeChoice accepts {id,label}, {text}, {choice}, and bare-string
// shapes. Missing ids are synthesized from a slug of the label.
func normalizeChoice(entry any, warnings *[]string) (Choice, bool) {
	switch value := entry.(type) {
	case string:
		label := strings.TrimSpace(value)
		if label == "" {
			return Choice{}, false
		}
		*warnings = append(*warnings, WarnChoiceIDSynthesized)
		return Choice{ID: "choice_" + slug(label), Label: label}, true
	case map[string]any:
		label := strings.TrimSpace(choiceLabel(value))
		if label == "" {
			return Choice{}, false
		}
		if id, ok := value["id"].(string); ok && strings.TrimSpace(id) != "" {
			return Choice{ID: strings.TrimSpace(id), Label: label}, true
		}
		*warnings = append(*warnings, WarnChoiceIDSynthesized)
		return Choice{ID: "choice_" + slug(label), Label: label}, true
	default:
		return Choice{}, false
	}
}

func normalizeAction(entry any) (Action, bool) {
	object, ok := entry.(map[string]any)
	if !ok {
		return Action{}, false
	}
	actionType, ok := object["type"].(string)
	if !ok || strings.TrimSpace(actionType) == "" {
		return Action{}, false
	}
	action := Action{Type: strings.TrimSpace(actionType)}
	if params, ok := object["params"].(map[string]any); ok {
		action.Params = params
	}
	return action, true
}

// slug lowercases a label and folds runs of non-alphanumerics into single
// underscores, truncated to keep synthesized ids short.
func slug(label string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(label) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
		if b.Len() >= 40 {
			break
		}
	}
	return strings.Trim(b.String(), "_")
}

// checkNormalized enforces the hard postconditions on a canonical Result.
func checkNormalized(result Result) error {
	if strings.TrimSpace(result.Narrative) == "" {
		return fmt.Errorf("narrative is empty")
	}
	if len(result.Choices) == 0 {
		return fmt.Errorf("choices is empty")
	}
	if len(result.Choices) > maxChoices {
		return fmt.Errorf("choices has %d entries, maximum is %d", len(result.Choices), maxChoices)
	}
	seen := make(map[string]bool, len(result.Choices))
	for i, choice := range result.Choices {
		if strings.TrimSpace(choice.ID) == "" || strings.TrimSpace(choice.Label) == "" {
			return fmt.Errorf("choice %d is missing an id or label", i)
		}
		if seen[choice.ID] {
			return fmt.Errorf("duplicate choice id %q", choice.ID)
		}
		seen[choice.ID] = true
	}
	if len(result.Actions) > maxActions {
		return fmt.Errorf("actions has %d entries, maximum is %d", len(result.Actions), maxActions)
	}
	return nil
}
