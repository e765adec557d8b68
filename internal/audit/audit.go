// Package audit records one provenance event per processed request:
// which expert handled it, with what confidence, and how long it took.
// Events are delivered off the request path.
package audit

import (
	"context"
	"time"
)

// Outcome is the final disposition of a request from the pipeline's
// perspective.
type Outcome string

const (
	OutcomeOK              Outcome = "ok"
	OutcomeUnknownExpert   Outcome = "unknown_expert"
	OutcomeUnsupportedTask Outcome = "unsupported_task"
	OutcomeExpertFailure   Outcome = "expert_failure"
	OutcomeCanceled        Outcome = "canceled"
)

// Event is one routing-decision record.
type Event struct {
	Timestamp  time.Time `json:"ts"`
	RequestID  string    `json:"request_id,omitempty"`
	Task       string    `json:"task"`
	Expert     string    `json:"expert,omitempty"`
	Confidence float32   `json:"confidence,omitempty"`
	Forced     bool      `json:"forced,omitempty"`
	IsBinary   bool      `json:"is_binary,omitempty"`
	DurationMS float64   `json:"duration_ms"`
	Outcome    Outcome   `json:"outcome"`
}

// Sink consumes audit events (stdout, file, etc.).
type Sink interface {
	Name() string
	Deliver(context.Context, *Event) error
	Close(context.Context) error
}
