package classifier

import (
	"context"
	"fmt"
)

// FailureKind buckets backend failures for the retry policy.
type FailureKind int

const (
	// FailureUnclassified covers failures with no explicit status signal
	// (network faults, malformed payloads). Possibly transient, so retried.
	FailureUnclassified FailureKind = iota
	// FailureRateLimited is an explicit too-many-requests signal. Retried.
	FailureRateLimited
	// FailurePermanent is any other explicit error status. Never retried.
	FailurePermanent
)

func (k FailureKind) String() string {
	switch k {
	case FailureRateLimited:
		return "rate-limited"
	case FailurePermanent:
		return "permanent"
	default:
		return "unclassified"
	}
}

// BackendError carries the failure taxonomy across the backend boundary.
type BackendError struct {
	Kind   FailureKind
	Status int
	Err    error
}

func (e *BackendError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("inference backend: %s (status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("inference backend: %s: %v", e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Retryable reports whether the retry loop may attempt the call again.
func (e *BackendError) Retryable() bool { return e.Kind != FailurePermanent }

// Citation is a grounding reference surfaced by the backend.
type Citation struct {
	Title string
	URI   string
}

// InferenceRequest is the structured-inference call contract: a fixed system
// instruction, the raw report text, a strict output schema, and an optional
// grounding capability.
type InferenceRequest struct {
	Text      string
	Grounding bool
}

// InferenceResult carries the schema-conformant JSON payload plus any
// grounding citations the backend extracted from response metadata.
type InferenceResult struct {
	Payload   []byte
	Citations []Citation
}

// Backend is the opaque inference transport. Implementations must return
// *BackendError for every failure so the client can apply its retry policy.
type Backend interface {
	Generate(ctx context.Context, req InferenceRequest) (InferenceResult, error)
	Probe(ctx context.Context) error
}
