package guard

import (
	"strings"

	"github.com/mirelark/storyloom/internal/state"
)

// Resolve maps an operand to its value under ctx. A string containing "." is
// parsed as a state path under one of the fixed grammars:
//
//	rel.<npc>.<stat>
//	inv.player.<item>.qty
//	currency.player.<denom>
//	flag.<scope>.<key>
//	state.story.timeTicks / state.world.timeTicks
//
// Missing data resolves to the zero value (0 or false), never an error.
// Anything that is not a recognized path is returned as a literal.
func Resolve(operand any, ctx state.Context) any {
	path, ok := operand.(string)
	if !ok || !strings.Contains(path, ".") {
		return operand
	}

	parts := strings.Split(path, ".")
	switch parts[0] {
	case "rel":
		if len(parts) == 3 {
			return ctx.Relationship(parts[1], parts[2])
		}
	case "inv":
		if len(parts) == 4 && parts[1] == "player" && parts[3] == "qty" {
			return float64(ctx.ItemQty(parts[2]))
		}
	case "currency":
		if len(parts) == 3 && parts[1] == "player" {
			return float64(ctx.CurrencyAmount(parts[2]))
		}
	case "flag":
		if len(parts) == 3 {
			return ctx.Flag(state.Scope(parts[1]), parts[2])
		}
	case "state":
		if len(parts) == 3 && parts[2] == "timeTicks" {
			switch parts[1] {
			case "story":
				return float64(ctx.StoryTimeTicks)
			case "world":
				return float64(ctx.WorldTimeTicks)
			}
		}
	}
	return operand
}
