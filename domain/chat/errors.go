package chat

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Stage names a network call of the routing pipeline.
type Stage string

const (
	StageRouting    Stage = "routing"
	StageCompletion Stage = "completion"
)

var (
	// ErrMalformedRequest rejects inbound bodies before the router runs.
	ErrMalformedRequest = errors.New("malformed request")

	// ErrRoutingParse means the meta-model output was not a JSON object naming a model.
	ErrRoutingParse = errors.New("routing response could not be parsed")

	// ErrRoutingUnknownModel means the meta-model named a model outside the catalog.
	ErrRoutingUnknownModel = errors.New("routing response named a model outside the catalog")

	// ErrNoChoices is returned when a provider answers with an empty choices list.
	ErrNoChoices = errors.New("upstream response contained no choices")

	// ErrUpstreamUnavailable is wrapped by transports that refuse to call upstream at all.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// UpstreamError wraps any failure of the meta-model or target-model call.
type UpstreamError struct {
	Stage      Stage
	Model      string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s call to %s failed with status %d: %v", e.Stage, e.Model, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s call to %s failed: %v", e.Stage, e.Model, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the call ran out of time.
func (e *UpstreamError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// Summary names the stage, model and outcome without the wrapped error, which may carry a
// raw upstream response body.
func (e *UpstreamError) Summary() string {
	switch {
	case e.Timeout():
		return fmt.Sprintf("%s call to %s timed out", e.Stage, e.Model)
	case errors.Is(e.Err, ErrUpstreamUnavailable):
		return fmt.Sprintf("%s call to %s is unavailable", e.Stage, e.Model)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s call to %s failed with status %d", e.Stage, e.Model, e.StatusCode)
	default:
		return fmt.Sprintf("%s call to %s failed", e.Stage, e.Model)
	}
}

// StatusCoder is implemented by transport errors that carry an upstream HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

// NewUpstreamError builds an UpstreamError, lifting the HTTP status out of err when present.
func NewUpstreamError(stage Stage, model string, err error) *UpstreamError {
	ue := &UpstreamError{Stage: stage, Model: model, Err: err}
	var sc StatusCoder
	if errors.As(err, &sc) {
		ue.StatusCode = sc.HTTPStatus()
	}
	return ue
}

// IsUpstreamError checks if an error is an upstream failure
func IsUpstreamError(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
