// Package turn converts raw model output into validated game turns and
// sequences one turn end-to-end.
package turn

// Warning codes appended when normalization substitutes content. Substitutions
// are never silent.
const (
	WarnEmptyNarrative      = "AI_EMPTY_NARRATIVE"
	WarnEmptyChoices        = "AI_EMPTY_CHOICES"
	WarnChoiceIDSynthesized = "AI_CHOICE_ID_SYNTHESIZED"
	WarnNarrativeFromAlias  = "AI_NARRATIVE_FROM_ALIAS"
	WarnNarrativeFromNested = "AI_NARRATIVE_FROM_NESTED"
	WarnActionDropped       = "AI_ACTION_DROPPED"
)

// Fallbacks substituted when the model returns empty required content.
const (
	FallbackNarrative = "The moment stretches on quietly, waiting for you to act."
	FallbackChoiceID  = "choice_fallback_continue"
	FallbackChoice    = "Continue"
)

// Choice is one player-selectable option.
type Choice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Action is one structured state mutation proposed by the model. The caller
// applies or rejects actions; the pipeline only bounds and passes them.
type Action struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

// Result is the canonical turn shape. Narrative and Choices are never empty
// after normalization.
type Result struct {
	Narrative string   `json:"narrative"`
	Choices   []Choice `json:"choices"`
	Actions   []Action `json:"actions,omitempty"`
	Emotion   string   `json:"emotion,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}
