package turn

import (
	"fmt"
	"hash/fnv"
)

// Seed derives the deterministic RNG seed for one turn from the session id
// and turn number. Re-evaluating a turn (for example during repair) sees the
// same seed.
func Seed(sessionID string, turnNumber int) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s:%d", sessionID, turnNumber)
	return h.Sum64()
}
