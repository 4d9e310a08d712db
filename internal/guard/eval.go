package guard

import (
	"encoding/json"
	"reflect"

	"github.com/mirelark/storyloom/internal/state"
)

// Eval evaluates g against ctx. Evaluation is pure and referentially
// transparent given (g, ctx): unknown ops and nesting beyond MaxDepth fail
// closed to false rather than erroring.
//
// All([]) is vacuously true; Any([]) is vacuously false.
func Eval(g Guard, ctx state.Context) bool {
	return eval(g, ctx, 0)
}

func eval(g Guard, ctx state.Context, depth int) bool {
	if depth > MaxDepth {
		return false
	}
	switch g.Op {
	case OpAll:
		for _, child := range g.Guards {
			if !eval(child, ctx, depth+1) {
				return false
			}
		}
		return true
	case OpAny:
		for _, child := range g.Guards {
			if eval(child, ctx, depth+1) {
				return true
			}
		}
		return false
	case OpNot:
		if g.Guard == nil {
			return false
		}
		return !eval(*g.Guard, ctx, depth+1)
	case OpEq:
		return operandsEqual(Resolve(g.Left, ctx), Resolve(g.Right, ctx))
	case OpNeq:
		return !operandsEqual(Resolve(g.Left, ctx), Resolve(g.Right, ctx))
	case OpGt, OpGte, OpLt, OpLte:
		left, leftOK := asNumber(Resolve(g.Left, ctx))
		right, rightOK := asNumber(Resolve(g.Right, ctx))
		if !leftOK || !rightOK {
			return false
		}
		switch g.Op {
		case OpGt:
			return left > right
		case OpGte:
			return left >= right
		case OpLt:
			return left < right
		default:
			return left <= right
		}
	case OpIn:
		needle := Resolve(g.Left, ctx)
		for _, candidate := range g.Values {
			if operandsEqual(needle, Resolve(candidate, ctx)) {
				return true
			}
		}
		return false
	case OpIncludes:
		collection, ok := Resolve(g.Left, ctx).([]any)
		if !ok {
			return false
		}
		needle := Resolve(g.Right, ctx)
		for _, element := range collection {
			if operandsEqual(element, needle) {
				return true
			}
		}
		return false
	case OpFlag:
		return ctx.Flag(state.Scope(g.Scope), g.Key) == g.Want
	default:
		return false
	}
}

// operandsEqual compares resolved operands, treating all numeric encodings as
// the same domain so authored literals match resolved state values.
func operandsEqual(left, right any) bool {
	leftNum, leftOK := asNumber(left)
	rightNum, rightOK := asNumber(right)
	if leftOK && rightOK {
		return leftNum == rightNum
	}
	if leftOK != rightOK {
		return false
	}
	return reflect.DeepEqual(left, right)
}

func asNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
