package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/noor188/Intelligent-LLM-Router/domain/catalog"
	"github.com/noor188/Intelligent-LLM-Router/domain/chat"
	"github.com/noor188/Intelligent-LLM-Router/domain/persistence"
	"github.com/noor188/Intelligent-LLM-Router/domain/routing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const DefaultMaxContentLength = 50000

// Service runs the strictly linear pipeline: route, complete, reply.
type Service struct {
	router           routing.Router
	completer        Completer
	catalog          *catalog.Catalog
	tracker          persistence.RequestTracker
	observer         routing.Observer
	maxContentLength int
}

func NewService(router routing.Router, completer Completer, c *catalog.Catalog, tracker persistence.RequestTracker, observer routing.Observer) *Service {
	if observer == nil {
		observer = routing.NopObserver{}
	}
	return &Service{
		router:           router,
		completer:        completer,
		catalog:          c,
		tracker:          tracker,
		observer:         observer,
		maxContentLength: DefaultMaxContentLength,
	}
}

// NewServiceWithoutTracking creates a service that keeps no audit trail
func NewServiceWithoutTracking(router routing.Router, completer Completer, c *catalog.Catalog) *Service {
	return NewService(router, completer, c, nil, nil)
}

// WithMaxContentLength overrides the inbound content limit; n <= 0 keeps the default.
func (s *Service) WithMaxContentLength(n int) *Service {
	if n > 0 {
		s.maxContentLength = n
	}
	return s
}

// Validate rejects requests that must not reach the router.
func (s *Service) Validate(req *chat.ChatRequest) error {
	if req == nil || strings.TrimSpace(req.Content) == "" {
		return fmt.Errorf("%w: content cannot be empty", chat.ErrMalformedRequest)
	}
	if len(req.Content) > s.maxContentLength {
		return fmt.Errorf("%w: content too long (%d chars, max %d)", chat.ErrMalformedRequest, len(req.Content), s.maxContentLength)
	}
	return nil
}

// Chat routes the message, dispatches it to the chosen model and returns the structured reply.
func (s *Service) Chat(ctx context.Context, req *chat.ChatRequest) (*chat.Reply, error) {
	if err := s.Validate(req); err != nil {
		return nil, err
	}

	requestID, ok := chat.RequestIDFrom(ctx)
	if !ok {
		requestID = uuid.New()
		ctx = chat.WithRequestID(ctx, requestID)
	}
	logger := logrus.WithField("request_id", requestID.String())
	start := time.Now()

	decision, err := s.router.Route(ctx, req.Content)
	routingLatency := time.Since(start)
	s.observer.ObserveStage(string(chat.StageRouting), routingLatency)
	if err != nil {
		s.observeFailure(chat.StageRouting, err)
		s.track(ctx, requestID, req.Content, nil, func(ctx context.Context) error {
			return s.tracker.FailTracking(ctx, requestID, chat.StageRouting, err.Error())
		})
		return nil, err
	}

	completionStart := time.Now()
	completion, err := s.completer.Complete(ctx, decision.Model, req.Content)
	completionLatency := time.Since(completionStart)
	s.observer.ObserveStage(string(chat.StageCompletion), completionLatency)
	if err != nil {
		s.observeFailure(chat.StageCompletion, err)
		s.track(ctx, requestID, req.Content, &decision, func(ctx context.Context) error {
			return s.tracker.FailTracking(ctx, requestID, chat.StageCompletion, err.Error())
		})
		return nil, err
	}

	cost, source := s.calculateCost(decision.Model, completion.Usage)
	costUSD, _ := cost.Float64()
	s.observer.ObserveUsage(decision.Model, completion.Usage.PromptTokens, completion.Usage.CompletionTokens, costUSD)

	reply := &chat.Reply{
		RequestID:         requestID,
		Model:             decision.Model,
		Reasoning:         decision.Reasoning,
		Fallback:          decision.Fallback,
		Text:              completion.Text,
		Usage:             completion.Usage,
		RoutingLatency:    routingLatency,
		CompletionLatency: completionLatency,
	}

	s.track(ctx, requestID, req.Content, &decision, func(ctx context.Context) error {
		return s.tracker.CompleteTracking(ctx, requestID, reply.Messages(), persistence.RequestMetrics{
			RoutingLatencyMs:    routingLatency.Milliseconds(),
			CompletionLatencyMs: completionLatency.Milliseconds(),
			TotalLatencyMs:      time.Since(start).Milliseconds(),
			PromptTokens:        completion.Usage.PromptTokens,
			CompletionTokens:    completion.Usage.CompletionTokens,
			TotalTokens:         completion.Usage.TotalTokens,
			TotalCost:           cost,
			CostSource:          source,
		})
	})

	logger.WithFields(logrus.Fields{
		"model":         reply.Model,
		"fallback":      reply.Fallback,
		"total_tokens":  reply.Usage.TotalTokens,
		"latency_ms":    time.Since(start).Milliseconds(),
		"routing_ms":    routingLatency.Milliseconds(),
		"completion_ms": completionLatency.Milliseconds(),
	}).Info("Chat request completed")

	return reply, nil
}

// SubmitFeedback records a user score in [0, 1] for an earlier request.
func (s *Service) SubmitFeedback(ctx context.Context, requestID uuid.UUID, text string, score float64) error {
	if s.tracker == nil {
		return ErrTrackingDisabled
	}
	if score < 0 || score > 1 {
		return fmt.Errorf("%w: score must be between 0 and 1", chat.ErrMalformedRequest)
	}
	return s.tracker.SubmitFeedback(ctx, requestID, text, score)
}

// ErrTrackingDisabled is returned by operations that need the audit store.
var ErrTrackingDisabled = errors.New("request tracking is disabled")

// track enqueues the request record and then the outcome. Both calls only enqueue.
func (s *Service) track(ctx context.Context, requestID uuid.UUID, content string, decision *routing.Decision, outcome func(ctx context.Context) error) {
	if s.tracker == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	logger := logrus.WithField("request_id", requestID.String())

	if err := s.tracker.StartTracking(ctx, requestID, content, decision); err != nil {
		logger.WithError(err).Warn("Failed to start tracking request")
		return
	}
	if err := outcome(ctx); err != nil {
		logger.WithError(err).Warn("Failed to record request outcome")
	}
}

func (s *Service) observeFailure(stage chat.Stage, err error) {
	if chat.IsUpstreamError(err) {
		s.observer.ObserveUpstreamError(string(stage))
	}
}

// calculateCost prefers the provider-reported cost and falls back to catalog prices.
func (s *Service) calculateCost(model string, usage chat.Usage) (decimal.Decimal, persistence.CostSource) {
	if usage.Cost != nil {
		return decimal.NewFromFloat(*usage.Cost), persistence.CostSourceProvider
	}
	if s.catalog != nil {
		if desc, ok := s.catalog.Lookup(model); ok {
			return desc.EstimateCost(usage.PromptTokens, usage.CompletionTokens), persistence.CostSourceEstimated
		}
	}
	return decimal.Zero, persistence.CostSourceEstimated
}
