package bundle

import (
	"encoding/json"
	"strings"

	apperrors "github.com/mirelark/storyloom/internal/errors"
)

// InjectionRule copies content from a loaded-document path into the packet.
//
// From is a dotted source path whose first segment names a loaded source
// (section name or "npc.<id>"); segments starting with '@' are substituted
// from the runtime parameter map before resolution, which is how a rule can
// target e.g. a ruleset module chosen per game. To is an absolute packet path
// written with path-set semantics: intermediate containers are created as
// needed.
type InjectionRule struct {
	From        string `json:"from"`
	To          string `json:"to"`
	SkipIfEmpty bool   `json:"skipIfEmpty,omitempty"`
	Fallback    any    `json:"fallback,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

// parseInjectionMap extracts rules from injection-map document content.
func parseInjectionMap(content json.RawMessage) ([]InjectionRule, error) {
	var wrapper struct {
		Injections []InjectionRule `json:"injections"`
	}
	if err := json.Unmarshal(content, &wrapper); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDocumentInvalid, err, "decode injection map")
	}
	return wrapper.Injections, nil
}

// expandParams substitutes "@name" path segments from params. Unknown
// parameters leave the segment as-is so resolution fails soft downstream.
func expandParams(path string, params map[string]string) string {
	segments := strings.Split(path, ".")
	for i, segment := range segments {
		if strings.HasPrefix(segment, "@") {
			if value, ok := params[segment[1:]]; ok {
				segments[i] = value
			}
		}
	}
	return strings.Join(segments, ".")
}

// resolvePath walks a dotted path into decoded JSON content.
func resolvePath(root any, path string) (any, bool) {
	if path == "" {
		return root, true
	}
	current := root
	for _, segment := range strings.Split(path, ".") {
		asMap, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = asMap[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// setPath writes value at a dotted path under the packet section, creating
// intermediate objects. The first segment of path names the section.
func setPath(packet *TurnPacket, path string, value any) error {
	segments := strings.Split(path, ".")
	if len(segments) == 0 || segments[0] == "" {
		return apperrors.New(apperrors.CodeDocumentInvalid, "injection target path is empty")
	}
	section := Section(segments[0])
	if !validSection(section) {
		return apperrors.New(apperrors.CodeDocumentInvalid, "injection target %q is not a packet section", segments[0])
	}
	if len(segments) == 1 {
		packet.Set(section, value)
		return nil
	}

	root, ok := packet.Get(section)
	rootMap, isMap := root.(map[string]any)
	if !ok || !isMap {
		rootMap = make(map[string]any)
		packet.Set(section, rootMap)
	}
	current := rootMap
	for _, segment := range segments[1 : len(segments)-1] {
		next, ok := current[segment].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[segment] = next
		}
		current = next
	}
	current[segments[len(segments)-1]] = value
	return nil
}

func validSection(section Section) bool {
	for _, known := range SectionOrder {
		if section == known {
			return true
		}
	}
	return false
}

// isEmptyValue mirrors skipIfEmpty semantics: nil, empty string, empty
// containers, and zero numbers count as empty.
func isEmptyValue(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	case float64:
		return v == 0
	default:
		return false
	}
}

// applyLimit truncates arrays and strings to rule limits; other values pass
// through untouched.
func applyLimit(value any, limit int) any {
	if limit <= 0 {
		return value
	}
	switch v := value.(type) {
	case []any:
		if len(v) > limit {
			return v[:limit]
		}
	case string:
		if len(v) > limit {
			return v[:limit]
		}
	}
	return value
}
