package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/noor188/Intelligent-LLM-Router/domain/persistence"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txKey struct{}

// withTx stores an open transaction in ctx for repositories to pick up.
func withTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// dbFrom returns the transaction carried by ctx, or db bound to ctx.
func dbFrom(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return db.WithContext(ctx)
}

func notFound(kind string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", kind, persistence.ErrNotFound)
	}
	return nil
}

// RequestRepository implements persistence.RequestRepository
type RequestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) persistence.RequestRepository {
	return &RequestRepository{db: db}
}

func (r *RequestRepository) Create(ctx context.Context, entity *persistence.RequestRecord) error {
	if err := dbFrom(ctx, r.db).Create(entity).Error; err != nil {
		return fmt.Errorf("failed to create request record: %w", err)
	}
	return nil
}

func (r *RequestRepository) Update(ctx context.Context, entity *persistence.RequestRecord) error {
	if err := dbFrom(ctx, r.db).Save(entity).Error; err != nil {
		return fmt.Errorf("failed to update request record: %w", err)
	}
	return nil
}

func (r *RequestRepository) FindByID(ctx context.Context, id uuid.UUID) (*persistence.RequestRecord, error) {
	var record persistence.RequestRecord
	if err := dbFrom(ctx, r.db).First(&record, "id = ?", id).Error; err != nil {
		if nf := notFound("request record", err); nf != nil {
			return nil, nf
		}
		return nil, fmt.Errorf("failed to find request record: %w", err)
	}
	return &record, nil
}

// FindByIDWithRelations finds a request record with its related metrics and feedback
func (r *RequestRepository) FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*persistence.RequestRecord, error) {
	var record persistence.RequestRecord
	err := dbFrom(ctx, r.db).
		Preload("Metrics").
		Preload("Feedback", func(db *gorm.DB) *gorm.DB { return db.Order("created_at DESC") }).
		First(&record, "id = ?", id).Error
	if err != nil {
		if nf := notFound("request record", err); nf != nil {
			return nil, nf
		}
		return nil, fmt.Errorf("failed to find request record with relations: %w", err)
	}
	return &record, nil
}

func (r *RequestRepository) FindByStatus(ctx context.Context, status persistence.RequestStatus, limit int) ([]*persistence.RequestRecord, error) {
	var records []*persistence.RequestRecord
	query := dbFrom(ctx, r.db).Where("status = ?", status).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to find request records by status: %w", err)
	}
	return records, nil
}

func (r *RequestRepository) FindRecent(ctx context.Context, limit int) ([]*persistence.RequestRecord, error) {
	var records []*persistence.RequestRecord
	query := dbFrom(ctx, r.db).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to find recent request records: %w", err)
	}
	return records, nil
}

func (r *RequestRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status persistence.RequestStatus) error {
	result := dbFrom(ctx, r.db).Model(&persistence.RequestRecord{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to update request status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("request record for status update: %w", persistence.ErrNotFound)
	}
	return nil
}

// CountByModel groups routed requests by model. Requests that failed before routing
// carry no model and are excluded.
func (r *RequestRepository) CountByModel(ctx context.Context) ([]persistence.ModelUsage, error) {
	var usage []persistence.ModelUsage
	err := dbFrom(ctx, r.db).Model(&persistence.RequestRecord{}).
		Select(`
			model,
			COUNT(*) AS requests,
			SUM(CASE WHEN fallback THEN 1 ELSE 0 END) AS fallbacks,
			SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS failures
		`, persistence.RequestStatusFailed).
		Where("model <> ''").
		Group("model").
		Order("requests DESC, model").
		Scan(&usage).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count requests by model: %w", err)
	}
	return usage, nil
}

func (r *RequestRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := dbFrom(ctx, r.db).Delete(&persistence.RequestRecord{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete request record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("request record for deletion: %w", persistence.ErrNotFound)
	}
	return nil
}
