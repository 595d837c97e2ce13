package persistence

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RequestRecord is the audit row for one routed chat request. It is never read when routing.
type RequestRecord struct {
	ID             uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	Content        string        `gorm:"type:text;not null" json:"content"`
	Model          string        `gorm:"type:varchar(255);index" json:"model"`
	Reasoning      string        `gorm:"type:text" json:"reasoning,omitempty"`
	Fallback       bool          `gorm:"default:false;index" json:"fallback"`
	FallbackReason string        `gorm:"type:varchar(50)" json:"fallback_reason,omitempty"`
	MetaModel      string        `gorm:"type:varchar(255)" json:"meta_model"`
	Reply          string        `gorm:"type:text" json:"reply,omitempty"`
	ErrorMessage   string        `gorm:"type:text" json:"error_message,omitempty"`
	FailedStage    string        `gorm:"type:varchar(50)" json:"failed_stage,omitempty"`
	Status         RequestStatus `gorm:"type:varchar(50);not null;default:'pending';index" json:"status"`
	CreatedAt      time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time     `gorm:"autoUpdateTime" json:"updated_at"`

	// Relations
	Metrics  *RequestMetrics   `gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE" json:"metrics,omitempty"`
	Feedback []RequestFeedback `gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE" json:"feedback,omitempty"`
}

// RequestStatus represents the status of a request
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusCompleted RequestStatus = "completed"
	RequestStatusFailed    RequestStatus = "failed"
)

// CostSource records whether TotalCost came from the provider or the catalog price list.
type CostSource string

const (
	CostSourceProvider  CostSource = "provider"
	CostSourceEstimated CostSource = "estimated"
)

// RequestMetrics stores latency, usage and cost for a completed request
type RequestMetrics struct {
	ID                  uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	RequestID           uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex" json:"request_id"`
	RoutingLatencyMs    int64           `gorm:"default:0" json:"routing_latency_ms"`
	CompletionLatencyMs int64           `gorm:"default:0" json:"completion_latency_ms"`
	TotalLatencyMs      int64           `gorm:"default:0" json:"total_latency_ms"`
	PromptTokens        int             `gorm:"default:0" json:"prompt_tokens"`
	CompletionTokens    int             `gorm:"default:0" json:"completion_tokens"`
	TotalTokens         int             `gorm:"default:0" json:"total_tokens"`
	TotalCost           decimal.Decimal `gorm:"type:decimal(14,8);default:0" json:"total_cost"`
	CostSource          CostSource      `gorm:"type:varchar(20)" json:"cost_source,omitempty"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// RequestFeedback stores user feedback for each request
type RequestFeedback struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RequestID    uuid.UUID `gorm:"type:uuid;not null;index" json:"request_id"`
	FeedbackText string    `gorm:"type:text" json:"feedback_text"`
	Score        float64   `gorm:"type:decimal(3,2);check:score >= 0 AND score <= 1" json:"score"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// BeforeCreate hook for RequestRecord
func (r *RequestRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = RequestStatusPending
	}
	return nil
}

// BeforeCreate hook for RequestMetrics
func (m *RequestMetrics) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// BeforeCreate hook for RequestFeedback
func (f *RequestFeedback) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

func (RequestRecord) TableName() string {
	return "requests"
}

func (RequestMetrics) TableName() string {
	return "request_metrics"
}

func (RequestFeedback) TableName() string {
	return "request_feedback"
}

// PersistenceEvent represents events that can be processed asynchronously
type PersistenceEvent[T any] struct {
	Type EventType `json:"type"`
	Data T         `json:"data"`
}

// EventType represents the type of persistence event
type EventType string

const (
	EventTypeCreateRequest  EventType = "create_request"
	EventTypeUpdateRequest  EventType = "update_request"
	EventTypeCreateMetrics  EventType = "create_metrics"
	EventTypeCreateFeedback EventType = "create_feedback"
)

// CreateRequestEvent records an inbound message and, when routing succeeded, its decision.
type CreateRequestEvent struct {
	RequestID      uuid.UUID `json:"request_id"`
	Content        string    `json:"content"`
	Model          string    `json:"model"`
	Reasoning      string    `json:"reasoning"`
	Fallback       bool      `json:"fallback"`
	FallbackReason string    `json:"fallback_reason"`
	MetaModel      string    `json:"meta_model"`
}

// UpdateRequestEvent finalizes a request with its reply or failure.
type UpdateRequestEvent struct {
	RequestID    uuid.UUID     `json:"request_id"`
	Status       RequestStatus `json:"status"`
	Reply        string        `json:"reply,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	FailedStage  string        `json:"failed_stage,omitempty"`
}

// CreateMetricsEvent data for creating request metrics
type CreateMetricsEvent struct {
	RequestID           uuid.UUID       `json:"request_id"`
	RoutingLatencyMs    int64           `json:"routing_latency_ms"`
	CompletionLatencyMs int64           `json:"completion_latency_ms"`
	TotalLatencyMs      int64           `json:"total_latency_ms"`
	PromptTokens        int             `json:"prompt_tokens"`
	CompletionTokens    int             `json:"completion_tokens"`
	TotalTokens         int             `json:"total_tokens"`
	TotalCost           decimal.Decimal `json:"total_cost"`
	CostSource          CostSource      `json:"cost_source"`
}

// CreateFeedbackEvent data for creating request feedback
type CreateFeedbackEvent struct {
	RequestID    uuid.UUID `json:"request_id"`
	FeedbackText string    `json:"feedback_text"`
	Score        float64   `json:"score"`
}
