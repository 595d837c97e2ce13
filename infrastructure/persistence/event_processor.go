package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/noor188/Intelligent-LLM-Router/domain/persistence"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// EventProcessor implements persistence.EventProcessor
type EventProcessor struct {
	requestRepo  persistence.RequestRepository
	metricsRepo  persistence.MetricsRepository
	feedbackRepo persistence.FeedbackRepository
	eventChan    chan any
	workerCount  int
	bufferSize   int
	lookupDelay  time.Duration

	// State management
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	sendMu         sync.RWMutex // held for writing while the channel is closed
	isRunning      atomic.Bool
	processedCount atomic.Int64
	errorCount     atomic.Int64

	// Health monitoring
	lastProcessedTime atomic.Value
}

// NewEventProcessor creates a new event processor
func NewEventProcessor(
	requestRepo persistence.RequestRepository,
	metricsRepo persistence.MetricsRepository,
	feedbackRepo persistence.FeedbackRepository,
	workerCount int,
	bufferSize int,
) *EventProcessor {
	if workerCount <= 0 {
		workerCount = 5 // Default worker count
	}
	if bufferSize <= 0 {
		bufferSize = 1000 // Default buffer size
	}

	return &EventProcessor{
		requestRepo:  requestRepo,
		metricsRepo:  metricsRepo,
		feedbackRepo: feedbackRepo,
		eventChan:    make(chan any, bufferSize),
		workerCount:  workerCount,
		bufferSize:   bufferSize,
		lookupDelay:  200 * time.Millisecond,
	}
}

var _ persistence.EventProcessor = (*EventProcessor)(nil)

// Start begins processing events from the channel
func (ep *EventProcessor) Start(ctx context.Context) error {
	ep.sendMu.Lock()
	defer ep.sendMu.Unlock()

	if ep.isRunning.Load() {
		return fmt.Errorf("event processor is already running")
	}

	// a previous Stop closed the channel
	if ep.cancel != nil {
		ep.eventChan = make(chan any, ep.bufferSize)
	}

	ep.ctx, ep.cancel = context.WithCancel(ctx)
	ep.isRunning.Store(true)
	ep.lastProcessedTime.Store(time.Now())

	// Start worker goroutines
	for i := 0; i < ep.workerCount; i++ {
		ep.wg.Add(1)
		go ep.worker(i)
	}

	logrus.WithFields(logrus.Fields{
		"worker_count": ep.workerCount,
		"buffer_size":  ep.bufferSize,
	}).Info("Event processor started")

	return nil
}

// Stop refuses new events, lets the workers drain the queue and then shuts them down
func (ep *EventProcessor) Stop() error {
	ep.sendMu.Lock()
	if !ep.isRunning.Load() {
		ep.sendMu.Unlock()
		return nil
	}
	ep.isRunning.Store(false)
	close(ep.eventChan)
	ep.sendMu.Unlock()

	logrus.WithField("pending", len(ep.eventChan)).Info("Stopping event processor...")

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logrus.Info("Event processor stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Event processor stop timed out")
	}

	ep.cancel()
	return nil
}

// ProcessEvent sends an event to be processed asynchronously
func (ep *EventProcessor) ProcessEvent(event any) error {
	ep.sendMu.RLock()
	defer ep.sendMu.RUnlock()

	if !ep.isRunning.Load() {
		return fmt.Errorf("event processor is not running")
	}

	select {
	case ep.eventChan <- event:
		return nil
	case <-ep.ctx.Done():
		return fmt.Errorf("event processor is shutting down")
	default:
		// Channel is full, increment error count but don't block
		ep.errorCount.Add(1)
		logrus.Warn("Event processor queue is full, dropping event")
		return fmt.Errorf("event processor queue is full")
	}
}

// Health returns the health status of the processor
func (ep *EventProcessor) Health() persistence.ProcessorHealth {
	queueSize := len(ep.eventChan)

	return persistence.ProcessorHealth{
		IsRunning:      ep.isRunning.Load(),
		QueueSize:      queueSize,
		ProcessedCount: ep.processedCount.Load(),
		ErrorCount:     ep.errorCount.Load(),
	}
}

// worker processes events from the channel
func (ep *EventProcessor) worker(workerID int) {
	defer ep.wg.Done()

	logger := logrus.WithField("worker_id", workerID)
	logger.Info("Event processor worker started")

	for {
		select {
		case event, ok := <-ep.eventChan:
			if !ok {
				logger.Info("Event channel closed, worker stopping")
				return
			}

			// Use processor context and add a per-op timeout to avoid long hangs
			opCtx, cancel := context.WithTimeout(ep.ctx, 10*time.Second)
			if err := ep.processEvent(opCtx, event); err != nil {
				ep.errorCount.Add(1)
				logger.WithError(err).Error("Failed to process event")
			} else {
				ep.processedCount.Add(1)
				ep.lastProcessedTime.Store(time.Now())
			}
			cancel()

		case <-ep.ctx.Done():
			logger.Info("Context cancelled, worker stopping")
			return
		}
	}
}

// processEvent handles individual events
func (ep *EventProcessor) processEvent(ctx context.Context, event any) error {
	switch e := event.(type) {
	case persistence.PersistenceEvent[persistence.CreateRequestEvent]:
		return ep.handleCreateRequest(ctx, e.Data)

	case persistence.PersistenceEvent[persistence.UpdateRequestEvent]:
		return ep.handleUpdateRequest(ctx, e.Data)

	case persistence.PersistenceEvent[persistence.CreateMetricsEvent]:
		return ep.handleCreateMetrics(ctx, e.Data)

	case persistence.PersistenceEvent[persistence.CreateFeedbackEvent]:
		return ep.handleCreateFeedback(ctx, e.Data)

	// Handle direct event types for convenience
	case persistence.CreateRequestEvent:
		return ep.handleCreateRequest(ctx, e)

	case persistence.UpdateRequestEvent:
		return ep.handleUpdateRequest(ctx, e)

	case persistence.CreateMetricsEvent:
		return ep.handleCreateMetrics(ctx, e)

	case persistence.CreateFeedbackEvent:
		return ep.handleCreateFeedback(ctx, e)

	default:
		return fmt.Errorf("unknown event type: %T", event)
	}
}

// handleCreateRequest inserts the audit row for a new request
func (ep *EventProcessor) handleCreateRequest(ctx context.Context, event persistence.CreateRequestEvent) error {
	record := &persistence.RequestRecord{
		ID:             event.RequestID,
		Content:        event.Content,
		Model:          event.Model,
		Reasoning:      event.Reasoning,
		Fallback:       event.Fallback,
		FallbackReason: event.FallbackReason,
		MetaModel:      event.MetaModel,
		Status:         persistence.RequestStatusPending,
	}

	if err := ep.requestRepo.Create(ctx, record); err != nil {
		return fmt.Errorf("failed to create request record: %w", err)
	}
	return nil
}

// handleUpdateRequest finalizes a request with its reply or failure
func (ep *EventProcessor) handleUpdateRequest(ctx context.Context, event persistence.UpdateRequestEvent) error {
	record, err := ep.waitForRequest(ctx, event.RequestID, "update")
	if err != nil {
		return err
	}

	record.Status = event.Status
	record.Reply = event.Reply
	record.ErrorMessage = event.ErrorMessage
	record.FailedStage = event.FailedStage

	return ep.requestRepo.Update(ctx, record)
}

// handleCreateMetrics creates or updates the metrics row of a request
func (ep *EventProcessor) handleCreateMetrics(ctx context.Context, event persistence.CreateMetricsEvent) error {
	if _, err := ep.waitForRequest(ctx, event.RequestID, "metrics"); err != nil {
		return err
	}

	metrics := &persistence.RequestMetrics{
		RequestID:           event.RequestID,
		RoutingLatencyMs:    event.RoutingLatencyMs,
		CompletionLatencyMs: event.CompletionLatencyMs,
		TotalLatencyMs:      event.TotalLatencyMs,
		PromptTokens:        event.PromptTokens,
		CompletionTokens:    event.CompletionTokens,
		TotalTokens:         event.TotalTokens,
		TotalCost:           event.TotalCost,
		CostSource:          event.CostSource,
	}

	return ep.metricsRepo.CreateOrUpdate(ctx, metrics)
}

// handleCreateFeedback attaches feedback to an existing request
func (ep *EventProcessor) handleCreateFeedback(ctx context.Context, event persistence.CreateFeedbackEvent) error {
	if _, err := ep.waitForRequest(ctx, event.RequestID, "feedback"); err != nil {
		return err
	}

	feedback := &persistence.RequestFeedback{
		RequestID:    event.RequestID,
		FeedbackText: event.FeedbackText,
		Score:        event.Score,
	}

	return ep.feedbackRepo.Create(ctx, feedback)
}

// waitForRequest looks the request up, retrying while another worker may still be inserting it
func (ep *EventProcessor) waitForRequest(ctx context.Context, requestID uuid.UUID, purpose string) (*persistence.RequestRecord, error) {
	record, err := findRequest(ctx, ep.requestRepo, requestID, ep.lookupDelay, purpose)
	if errors.Is(err, persistence.ErrNotFound) {
		logrus.WithError(err).WithField("request_id", requestID).Warnf("Cannot apply %s: request not found after retries", purpose)
	}
	return record, err
}

const requestLookupAttempts = 3

// findRequest retries ErrNotFound with a growing delay because the create event for the
// request may still be queued. Other lookup errors fail at once.
func findRequest(ctx context.Context, repo persistence.RequestRepository, requestID uuid.UUID, delay time.Duration, purpose string) (*persistence.RequestRecord, error) {
	var err error
	for attempt := 0; attempt < requestLookupAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		var record *persistence.RequestRecord
		record, err = repo.FindByID(ctx, requestID)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, persistence.ErrNotFound) {
			return nil, fmt.Errorf("failed to find request for %s: %w", purpose, err)
		}

		logrus.WithError(err).WithFields(logrus.Fields{
			"request_id": requestID,
			"attempt":    attempt + 1,
		}).Debugf("Request not found for %s", purpose)
	}

	return nil, fmt.Errorf("cannot apply %s to non-existent request: %w", purpose, err)
}
