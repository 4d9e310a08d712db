// Package modelprovider calls the external generative text model.
//
// The pipeline depends only on the Invoker interface; the OpenAI adapter is
// the production implementation and tests script their own.
package modelprovider

import (
	"context"
	"encoding/json"
)

// Request is one generation request.
type Request struct {
	// Model names the provider model.
	Model string
	// Instruction is the fixed system instruction.
	Instruction string
	// Payload is the serialized turn bundle.
	Payload json.RawMessage
	// Temperature is the sampling temperature; repair attempts lower it.
	Temperature float64
}

// Response carries the raw model output text. The caller owns parsing and
// validation; raw text never crosses the player-facing boundary.
type Response struct {
	Text string
}

// Invoker sends one generation request under the deadline carried by ctx.
// Implementations map deadline expiry to a MODEL_TIMEOUT coded error and
// never retry internally.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (Response, error)
}
