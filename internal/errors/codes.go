// Package errors defines the typed error taxonomy for the turn pipeline.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code. The player-facing layer only ever
// surfaces these codes, never raw model text or wrapped causes.
type Code string

const (
	// CodeUnknown represents an unclassified error.
	CodeUnknown Code = "UNKNOWN"

	// Document errors
	CodeDocumentNotFound Code = "DOCUMENT_NOT_FOUND"
	CodeDocumentInvalid  Code = "DOCUMENT_INVALID"

	// Guard errors
	CodeGuardInvalid Code = "GUARD_INVALID"

	// Scenario graph errors
	CodeGraphInvalid  Code = "GRAPH_INVALID"
	CodeGraphTooLarge Code = "GRAPH_TOO_LARGE"

	// Bundle errors
	CodeBundleMissingDocument Code = "BUNDLE_MISSING_DOCUMENT"
	CodeBundleOverBudget      Code = "BUNDLE_OVER_BUDGET"

	// Model errors
	CodeModelTimeout           Code = "MODEL_TIMEOUT"
	CodeModelResponseMalformed Code = "MODEL_RESPONSE_MALFORMED"

	// Orchestrator errors
	CodeInternalNormalization Code = "INTERNAL_NORMALIZATION_ERROR"
	CodeTurnConflict          Code = "TURN_CONFLICT"
)

// GRPCCode maps domain codes to gRPC status codes for the transport layer.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - authored content that fails validation
	case CodeDocumentInvalid,
		CodeGuardInvalid,
		CodeGraphInvalid,
		CodeGraphTooLarge:
		return codes.InvalidArgument

	// FailedPrecondition - state does not allow the operation
	case CodeBundleOverBudget,
		CodeTurnConflict:
		return codes.FailedPrecondition

	case CodeDocumentNotFound,
		CodeBundleMissingDocument:
		return codes.NotFound

	case CodeModelTimeout:
		return codes.DeadlineExceeded

	case CodeModelResponseMalformed:
		return codes.Unavailable

	default:
		return codes.Internal
	}
}

// Retryable reports whether the caller may retry the operation that produced
// this code. Author-facing validation errors are never retryable.
func (c Code) Retryable() bool {
	return c == CodeModelTimeout
}
