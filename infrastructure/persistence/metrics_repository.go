package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/noor188/Intelligent-LLM-Router/domain/persistence"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MetricsRepository implements persistence.MetricsRepository
type MetricsRepository struct {
	db *gorm.DB
}

func NewMetricsRepository(db *gorm.DB) persistence.MetricsRepository {
	return &MetricsRepository{db: db}
}

func (r *MetricsRepository) Create(ctx context.Context, entity *persistence.RequestMetrics) error {
	if err := dbFrom(ctx, r.db).Create(entity).Error; err != nil {
		return fmt.Errorf("failed to create metrics record: %w", err)
	}
	return nil
}

func (r *MetricsRepository) Update(ctx context.Context, entity *persistence.RequestMetrics) error {
	if err := dbFrom(ctx, r.db).Save(entity).Error; err != nil {
		return fmt.Errorf("failed to update metrics record: %w", err)
	}
	return nil
}

func (r *MetricsRepository) FindByID(ctx context.Context, id uuid.UUID) (*persistence.RequestMetrics, error) {
	var record persistence.RequestMetrics
	if err := dbFrom(ctx, r.db).First(&record, "id = ?", id).Error; err != nil {
		if nf := notFound("metrics record", err); nf != nil {
			return nil, nf
		}
		return nil, fmt.Errorf("failed to find metrics record: %w", err)
	}
	return &record, nil
}

func (r *MetricsRepository) FindByRequestID(ctx context.Context, requestID uuid.UUID) (*persistence.RequestMetrics, error) {
	var record persistence.RequestMetrics
	if err := dbFrom(ctx, r.db).First(&record, "request_id = ?", requestID).Error; err != nil {
		if nf := notFound("metrics record for request", err); nf != nil {
			return nil, nf
		}
		return nil, fmt.Errorf("failed to find metrics record by request ID: %w", err)
	}
	return &record, nil
}

// CreateOrUpdate keeps a single metrics row per request
func (r *MetricsRepository) CreateOrUpdate(ctx context.Context, metrics *persistence.RequestMetrics) error {
	db := dbFrom(ctx, r.db)

	var existing persistence.RequestMetrics
	err := db.First(&existing, "request_id = ?", metrics.RequestID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := db.Create(metrics).Error; err != nil {
			return fmt.Errorf("failed to create metrics record: %w", err)
		}
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to check existing metrics: %w", err)
	}

	metrics.ID = existing.ID
	metrics.CreatedAt = existing.CreatedAt
	if err := db.Save(metrics).Error; err != nil {
		return fmt.Errorf("failed to update existing metrics: %w", err)
	}
	return nil
}

// GetAggregatedMetrics summarizes the most recent limit requests, or all when limit <= 0
func (r *MetricsRepository) GetAggregatedMetrics(ctx context.Context, limit int) (*persistence.AggregatedMetrics, error) {
	db := dbFrom(ctx, r.db)

	var result struct {
		TotalRequests              int64
		AverageCost                decimal.Decimal
		AverageTokens              float64
		AverageRoutingLatencyMs    float64
		AverageCompletionLatencyMs float64
		AverageLatencyMs           float64
		TotalCost                  decimal.Decimal
		TotalTokens                int64
	}

	query := db.Model(&persistence.RequestMetrics{}).
		Select(`
			COUNT(*) AS total_requests,
			COALESCE(AVG(total_cost), 0) AS average_cost,
			COALESCE(AVG(total_tokens), 0) AS average_tokens,
			COALESCE(AVG(routing_latency_ms), 0) AS average_routing_latency_ms,
			COALESCE(AVG(completion_latency_ms), 0) AS average_completion_latency_ms,
			COALESCE(AVG(total_latency_ms), 0) AS average_latency_ms,
			COALESCE(SUM(total_cost), 0) AS total_cost,
			COALESCE(SUM(total_tokens), 0) AS total_tokens
		`)

	recent := func() *gorm.DB {
		return db.Model(&persistence.RequestMetrics{}).
			Select("request_id").
			Order("created_at DESC").
			Limit(limit)
	}
	if limit > 0 {
		query = query.Where("request_id IN (?)", recent())
	}

	if err := query.Scan(&result).Error; err != nil {
		return nil, fmt.Errorf("failed to get aggregated metrics: %w", err)
	}

	var avgFeedback float64
	feedbackQuery := db.Model(&persistence.RequestFeedback{}).Select("COALESCE(AVG(score), 0)")
	if limit > 0 {
		feedbackQuery = feedbackQuery.Where("request_id IN (?)", recent())
	}
	if err := feedbackQuery.Scan(&avgFeedback).Error; err != nil {
		return nil, fmt.Errorf("failed to get average feedback: %w", err)
	}

	return &persistence.AggregatedMetrics{
		TotalRequests:              result.TotalRequests,
		AverageCost:                result.AverageCost,
		AverageTokens:              result.AverageTokens,
		AverageRoutingLatencyMs:    result.AverageRoutingLatencyMs,
		AverageCompletionLatencyMs: result.AverageCompletionLatencyMs,
		AverageLatencyMs:           result.AverageLatencyMs,
		AverageFeedback:            avgFeedback,
		TotalCost:                  result.TotalCost,
		TotalTokens:                result.TotalTokens,
	}, nil
}

func (r *MetricsRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := dbFrom(ctx, r.db).Delete(&persistence.RequestMetrics{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete metrics record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("metrics record for deletion: %w", persistence.ErrNotFound)
	}
	return nil
}
