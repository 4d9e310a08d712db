// Package state exposes the read-only game-state snapshot guards evaluate
// against. A Context is derived fresh per turn and discarded after use.
package state

// Scope names a flag namespace.
type Scope string

const (
	ScopeStory  Scope = "story"
	ScopePlayer Scope = "player"
	ScopeWorld  Scope = "world"
)

// Context is one immutable state snapshot for guard evaluation and bundle
// assembly. Missing data reads as the zero value, never as an error.
type Context struct {
	// Relationships maps npc id -> stat name -> value.
	Relationships map[string]map[string]float64
	// Inventory maps item id -> quantity held by the player.
	Inventory map[string]int
	// Currency maps denomination -> amount held by the player.
	Currency map[string]int
	// Flags maps scope -> key -> value.
	Flags map[Scope]map[string]bool
	// StoryTimeTicks is the story clock.
	StoryTimeTicks int64
	// WorldTimeTicks is the world clock.
	WorldTimeTicks int64
}

// Relationship returns one relationship stat, or 0 when absent.
func (c Context) Relationship(npc, stat string) float64 {
	return c.Relationships[npc][stat]
}

// ItemQty returns the player's held quantity of an item, or 0.
func (c Context) ItemQty(item string) int {
	return c.Inventory[item]
}

// CurrencyAmount returns the player's holdings of a denomination, or 0.
func (c Context) CurrencyAmount(denom string) int {
	return c.Currency[denom]
}

// Flag returns one scoped flag, or false when absent.
func (c Context) Flag(scope Scope, key string) bool {
	return c.Flags[scope][key]
}
