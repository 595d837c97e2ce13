package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/noor188/Intelligent-LLM-Router/domain/chat"
	"github.com/noor188/Intelligent-LLM-Router/domain/persistence"
	"github.com/noor188/Intelligent-LLM-Router/domain/routing"

	"github.com/google/uuid"
)

// RequestTracker implements persistence.RequestTracker using the event processor
type RequestTracker struct {
	processor   persistence.EventProcessor
	requestRepo persistence.RequestRepository
	lookupDelay time.Duration
}

// NewRequestTracker queues audit events on processor. When requestRepo is set, feedback for
// an unknown request is rejected before it is queued.
func NewRequestTracker(processor persistence.EventProcessor, requestRepo persistence.RequestRepository) persistence.RequestTracker {
	return newRequestTracker(processor, requestRepo)
}

func newRequestTracker(processor persistence.EventProcessor, requestRepo persistence.RequestRepository) *RequestTracker {
	return &RequestTracker{
		processor:   processor,
		requestRepo: requestRepo,
		lookupDelay: 200 * time.Millisecond,
	}
}

// StartTracking records the inbound message together with the routing decision, if any
func (rt *RequestTracker) StartTracking(ctx context.Context, requestID uuid.UUID, content string, decision *routing.Decision) error {
	event := persistence.CreateRequestEvent{
		RequestID: requestID,
		Content:   content,
	}
	if decision != nil {
		event.Model = decision.Model
		event.Reasoning = decision.Reasoning
		event.Fallback = decision.Fallback
		event.FallbackReason = string(decision.FallbackReason)
		event.MetaModel = decision.MetaModel
	}

	return rt.processor.ProcessEvent(event)
}

// CompleteTracking stores the reply and queues the metrics row
func (rt *RequestTracker) CompleteTracking(ctx context.Context, requestID uuid.UUID, reply string, metrics persistence.RequestMetrics) error {
	updateEvent := persistence.UpdateRequestEvent{
		RequestID: requestID,
		Status:    persistence.RequestStatusCompleted,
		Reply:     reply,
	}
	if err := rt.processor.ProcessEvent(updateEvent); err != nil {
		return fmt.Errorf("failed to process update request event: %w", err)
	}

	metricsEvent := persistence.CreateMetricsEvent{
		RequestID:           requestID,
		RoutingLatencyMs:    metrics.RoutingLatencyMs,
		CompletionLatencyMs: metrics.CompletionLatencyMs,
		TotalLatencyMs:      metrics.TotalLatencyMs,
		PromptTokens:        metrics.PromptTokens,
		CompletionTokens:    metrics.CompletionTokens,
		TotalTokens:         metrics.TotalTokens,
		TotalCost:           metrics.TotalCost,
		CostSource:          metrics.CostSource,
	}
	if err := rt.processor.ProcessEvent(metricsEvent); err != nil {
		return fmt.Errorf("failed to process create metrics event: %w", err)
	}

	return nil
}

// FailTracking marks a request as failed at the given stage
func (rt *RequestTracker) FailTracking(ctx context.Context, requestID uuid.UUID, stage chat.Stage, errorMsg string) error {
	return rt.processor.ProcessEvent(persistence.UpdateRequestEvent{
		RequestID:    requestID,
		Status:       persistence.RequestStatusFailed,
		ErrorMessage: errorMsg,
		FailedStage:  string(stage),
	})
}

// SubmitFeedback returns an error wrapping persistence.ErrNotFound when the request is unknown
func (rt *RequestTracker) SubmitFeedback(ctx context.Context, requestID uuid.UUID, feedbackText string, score float64) error {
	if rt.requestRepo != nil {
		if _, err := findRequest(ctx, rt.requestRepo, requestID, rt.lookupDelay, "feedback"); err != nil {
			return err
		}
	}

	return rt.processor.ProcessEvent(persistence.CreateFeedbackEvent{
		RequestID:    requestID,
		FeedbackText: feedbackText,
		Score:        score,
	})
}
