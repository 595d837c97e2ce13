package routing

import (
	"context"
	"time"
)

// FallbackReason explains why a decision did not come from the meta-model.
type FallbackReason string

const (
	FallbackNone         FallbackReason = ""
	FallbackParseError   FallbackReason = "parse_error"
	FallbackUnknownModel FallbackReason = "unknown_model"
)

// Decision is the validated routing outcome. Model is always a catalog id.
type Decision struct {
	Model          string         `json:"model"`
	Reasoning      string         `json:"reasoning"`
	Fallback       bool           `json:"fallback"`
	FallbackReason FallbackReason `json:"fallback_reason,omitempty"`
	MetaModel      string         `json:"meta_model"`
}

// Outcome labels a decision for metrics.
func (d Decision) Outcome() string {
	if d.Fallback {
		return "fallback"
	}
	return "routed"
}

// Observer receives pipeline measurements. Implementations must be safe for concurrent use.
type Observer interface {
	ObserveDecision(d Decision)
	ObserveStage(stage string, elapsed time.Duration)
	ObserveUpstreamError(stage string)
	ObserveRequest(status string)
	ObserveUsage(model string, promptTokens, completionTokens int, costUSD float64)
}

// Router chooses a catalog model for a message.
type Router interface {
	Route(ctx context.Context, message string) (Decision, error)
}

// NopObserver discards every measurement.
type NopObserver struct{}

func (NopObserver) ObserveDecision(Decision)               {}
func (NopObserver) ObserveStage(string, time.Duration)     {}
func (NopObserver) ObserveUpstreamError(string)            {}
func (NopObserver) ObserveRequest(string)                  {}
func (NopObserver) ObserveUsage(string, int, int, float64) {}
