// Package guard implements the boolean rule language that gates narrative
// content against live game state.
//
// The JSON encoding of a Guard is the authored wire form and must stay
// byte-stable for previously authored content.
package guard

import (
	"encoding/json"
	"fmt"

	apperrors "github.com/mirelark/storyloom/internal/errors"
)

// Op discriminates the closed guard union.
type Op string

const (
	OpAll      Op = "all"
	OpAny      Op = "any"
	OpNot      Op = "not"
	OpEq       Op = "eq"
	OpNeq      Op = "neq"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpIn       Op = "in"
	OpIncludes Op = "includes"
	OpFlag     Op = "flag"
)

// MaxDepth caps guard nesting. Evaluation beyond it fails closed.
const MaxDepth = 4

// Guard is one node of the recursive guard expression.
//
// Exactly the fields relevant to Op are set: Guards for all/any, Guard for
// not, Left/Right for comparisons and includes, Left/Values for in, and
// Scope/Key/Want for flag checks. Operands are either literals or dotted
// state paths (see Resolve).
type Guard struct {
	Op     Op      `json:"op"`
	Guards []Guard `json:"guards,omitempty"`
	Guard  *Guard  `json:"guard,omitempty"`
	Left   any     `json:"left,omitempty"`
	Right  any     `json:"right,omitempty"`
	Values []any   `json:"values,omitempty"`
	Scope  string  `json:"scope,omitempty"`
	Key    string  `json:"key,omitempty"`
	Want   bool    `json:"want,omitempty"`
}

// Parse decodes a guard from its authored JSON form and checks it statically.
func Parse(raw json.RawMessage) (Guard, error) {
	var g Guard
	if err := json.Unmarshal(raw, &g); err != nil {
		return Guard{}, apperrors.Wrap(apperrors.CodeGuardInvalid, err, "decode guard")
	}
	if err := Check(g); err != nil {
		return Guard{}, err
	}
	return g, nil
}

// Check validates a guard statically: known ops, required fields, and the
// nesting depth cap. Authoring feedback only; evaluation never throws.
func Check(g Guard) error {
	return check(g, "$", 0)
}

func check(g Guard, path string, depth int) error {
	if depth > MaxDepth {
		return apperrors.New(apperrors.CodeGuardInvalid, "guard %s: nesting exceeds depth %d", path, MaxDepth)
	}
	switch g.Op {
	case OpAll, OpAny:
		for i, child := range g.Guards {
			if err := check(child, fmt.Sprintf("%s.%s[%d]", path, g.Op, i), depth+1); err != nil {
				return err
			}
		}
		return nil
	case OpNot:
		if g.Guard == nil {
			return apperrors.New(apperrors.CodeGuardInvalid, "guard %s: not requires a child guard", path)
		}
		return check(*g.Guard, path+".not", depth+1)
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte:
		if g.Left == nil || g.Right == nil {
			return apperrors.New(apperrors.CodeGuardInvalid, "guard %s: %s requires left and right operands", path, g.Op)
		}
		return nil
	case OpIn:
		if g.Left == nil {
			return apperrors.New(apperrors.CodeGuardInvalid, "guard %s: in requires a left operand", path)
		}
		return nil
	case OpIncludes:
		if g.Left == nil || g.Right == nil {
			return apperrors.New(apperrors.CodeGuardInvalid, "guard %s: includes requires left and right operands", path)
		}
		return nil
	case OpFlag:
		if g.Scope == "" || g.Key == "" {
			return apperrors.New(apperrors.CodeGuardInvalid, "guard %s: flag requires scope and key", path)
		}
		return nil
	default:
		return apperrors.New(apperrors.CodeGuardInvalid, "guard %s: unknown op %q", path, g.Op)
	}
}
