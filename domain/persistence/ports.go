package persistence

import (
	"context"
	"errors"

	"github.com/noor188/Intelligent-LLM-Router/domain/chat"
	"github.com/noor188/Intelligent-LLM-Router/domain/routing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNotFound is wrapped by repositories when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Repository defines the generic repository interface using Go generics
type Repository[T any] interface {
	Create(ctx context.Context, entity *T) error
	Update(ctx context.Context, entity *T) error
	FindByID(ctx context.Context, id uuid.UUID) (*T, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// RequestRepository defines operations specific to request records
type RequestRepository interface {
	Repository[RequestRecord]

	FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*RequestRecord, error)
	FindByStatus(ctx context.Context, status RequestStatus, limit int) ([]*RequestRecord, error)
	FindRecent(ctx context.Context, limit int) ([]*RequestRecord, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status RequestStatus) error
	CountByModel(ctx context.Context) ([]ModelUsage, error)
}

// MetricsRepository defines operations for request metrics
type MetricsRepository interface {
	Repository[RequestMetrics]

	FindByRequestID(ctx context.Context, requestID uuid.UUID) (*RequestMetrics, error)
	CreateOrUpdate(ctx context.Context, metrics *RequestMetrics) error
	GetAggregatedMetrics(ctx context.Context, limit int) (*AggregatedMetrics, error)
}

// FeedbackRepository defines operations for request feedback
type FeedbackRepository interface {
	Repository[RequestFeedback]

	FindByRequestID(ctx context.Context, requestID uuid.UUID) ([]*RequestFeedback, error)
	GetAverageScore(ctx context.Context, requestID *uuid.UUID) (float64, error)
	FindRecentFeedback(ctx context.Context, limit int) ([]*RequestFeedback, error)
}

// EventProcessor defines the interface for processing persistence events asynchronously
type EventProcessor interface {
	// Start begins processing events from the channel
	Start(ctx context.Context) error

	// Stop gracefully shuts down the event processor
	Stop() error

	// ProcessEvent queues an event without blocking; a full queue rejects it
	ProcessEvent(event any) error

	Health() ProcessorHealth
}

// ProcessorHealth represents the health status of the event processor
type ProcessorHealth struct {
	IsRunning      bool  `json:"is_running"`
	QueueSize      int   `json:"queue_size"`
	ProcessedCount int64 `json:"processed_count"`
	ErrorCount     int64 `json:"error_count"`
}

// AggregatedMetrics summarizes completed requests
type AggregatedMetrics struct {
	TotalRequests              int64           `json:"total_requests"`
	AverageCost                decimal.Decimal `json:"average_cost"`
	AverageTokens              float64         `json:"average_tokens"`
	AverageRoutingLatencyMs    float64         `json:"average_routing_latency_ms"`
	AverageCompletionLatencyMs float64         `json:"average_completion_latency_ms"`
	AverageLatencyMs           float64         `json:"average_latency_ms"`
	AverageFeedback            float64         `json:"average_feedback"`
	TotalCost                  decimal.Decimal `json:"total_cost"`
	TotalTokens                int64           `json:"total_tokens"`
}

// ModelUsage counts audited requests per routed model.
type ModelUsage struct {
	Model     string `json:"model"`
	Requests  int64  `json:"requests"`
	Fallbacks int64  `json:"fallbacks"`
	Failures  int64  `json:"failures"`
}

// DatabaseManager defines the interface for database management operations
type DatabaseManager interface {
	Connect(ctx context.Context, driver, dsn string) error
	Close() error
	Migrate() error
	Health(ctx context.Context) error
	GetRepositories() (RequestRepository, MetricsRepository, FeedbackRepository)
}

// TransactionManager defines interface for database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// RequestTracker turns pipeline milestones into persistence events
type RequestTracker interface {
	// StartTracking records the inbound message; decision is nil when routing failed
	StartTracking(ctx context.Context, requestID uuid.UUID, content string, decision *routing.Decision) error

	// CompleteTracking stores the reply and its metrics
	CompleteTracking(ctx context.Context, requestID uuid.UUID, reply string, metrics RequestMetrics) error

	// FailTracking marks a request as failed at the given stage
	FailTracking(ctx context.Context, requestID uuid.UUID, stage chat.Stage, errorMsg string) error

	SubmitFeedback(ctx context.Context, requestID uuid.UUID, feedbackText string, score float64) error
}
