package resolve

import (
	"context"
	"errors"

	"github.com/sells-group/gedmap/internal/resilience"
)

// Reason classifies why a place stayed unresolved.
type Reason string

const (
	ReasonNotFound     Reason = "not_found"
	ReasonTimeout      Reason = "timeout"
	ReasonServiceError Reason = "service_error"
	ReasonCircuitOpen  Reason = "circuit_open"
	ReasonCancelled    Reason = "cancelled"
)

// Failure records an unresolved place. It is never fatal to a run.
type Failure struct {
	Key    string
	Reason Reason
	Err    error
}

func (f *Failure) Error() string {
	msg := "resolve: " + string(f.Reason) + " for " + `"` + f.Key + `"`
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

func (f *Failure) Unwrap() error { return f.Err }

// classify maps a live-lookup error to a Reason. parent is the run context,
// so a per-request deadline is a timeout while run cancellation is not.
func classify(parent context.Context, err error) Reason {
	switch {
	case parent.Err() != nil:
		return ReasonCancelled
	case errors.Is(err, resilience.ErrCircuitOpen):
		return ReasonCircuitOpen
	case resilience.IsTimeout(err):
		return ReasonTimeout
	default:
		return ReasonServiceError
	}
}
