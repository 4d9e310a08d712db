package bundle

import "encoding/json"

// TokenEstimator approximates the token cost of serialized content. The
// default heuristic is deliberately crude but deterministic; swap it when a
// provider-accurate tokenizer matters more than reproducibility.
type TokenEstimator func(serialized []byte) int

// HeuristicEstimator counts one token per four characters, rounded up.
func HeuristicEstimator(serialized []byte) int {
	return (len(serialized) + 3) / 4
}

// estimatePacket serializes the packet and estimates its token cost.
func estimatePacket(packet *TurnPacket, estimate TokenEstimator) (int, error) {
	serialized, err := json.Marshal(packet)
	if err != nil {
		return 0, err
	}
	return estimate(serialized), nil
}
