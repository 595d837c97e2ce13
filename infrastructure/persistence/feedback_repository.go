package persistence

import (
	"context"
	"fmt"

	"github.com/noor188/Intelligent-LLM-Router/domain/persistence"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FeedbackRepository implements persistence.FeedbackRepository
type FeedbackRepository struct {
	db *gorm.DB
}

func NewFeedbackRepository(db *gorm.DB) persistence.FeedbackRepository {
	return &FeedbackRepository{db: db}
}

func (r *FeedbackRepository) Create(ctx context.Context, entity *persistence.RequestFeedback) error {
	if err := dbFrom(ctx, r.db).Create(entity).Error; err != nil {
		return fmt.Errorf("failed to create feedback record: %w", err)
	}
	return nil
}

func (r *FeedbackRepository) Update(ctx context.Context, entity *persistence.RequestFeedback) error {
	if err := dbFrom(ctx, r.db).Save(entity).Error; err != nil {
		return fmt.Errorf("failed to update feedback record: %w", err)
	}
	return nil
}

func (r *FeedbackRepository) FindByID(ctx context.Context, id uuid.UUID) (*persistence.RequestFeedback, error) {
	var record persistence.RequestFeedback
	if err := dbFrom(ctx, r.db).First(&record, "id = ?", id).Error; err != nil {
		if nf := notFound("feedback record", err); nf != nil {
			return nil, nf
		}
		return nil, fmt.Errorf("failed to find feedback record: %w", err)
	}
	return &record, nil
}

// FindByRequestID finds all feedback records for a specific request, newest first
func (r *FeedbackRepository) FindByRequestID(ctx context.Context, requestID uuid.UUID) ([]*persistence.RequestFeedback, error) {
	var records []*persistence.RequestFeedback
	if err := dbFrom(ctx, r.db).Where("request_id = ?", requestID).Order("created_at DESC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to find feedback records by request ID: %w", err)
	}
	return records, nil
}

// GetAverageScore averages feedback for one request, or across all requests when requestID is nil
func (r *FeedbackRepository) GetAverageScore(ctx context.Context, requestID *uuid.UUID) (float64, error) {
	query := dbFrom(ctx, r.db).Model(&persistence.RequestFeedback{})
	if requestID != nil {
		query = query.Where("request_id = ?", *requestID)
	}

	var avgScore float64
	if err := query.Select("COALESCE(AVG(score), 0)").Scan(&avgScore).Error; err != nil {
		return 0, fmt.Errorf("failed to calculate average feedback score: %w", err)
	}
	return avgScore, nil
}

func (r *FeedbackRepository) FindRecentFeedback(ctx context.Context, limit int) ([]*persistence.RequestFeedback, error) {
	var records []*persistence.RequestFeedback
	query := dbFrom(ctx, r.db).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to find recent feedback records: %w", err)
	}
	return records, nil
}

func (r *FeedbackRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := dbFrom(ctx, r.db).Delete(&persistence.RequestFeedback{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete feedback record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("feedback record for deletion: %w", persistence.ErrNotFound)
	}
	return nil
}
