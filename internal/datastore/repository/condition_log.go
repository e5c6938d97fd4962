package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/fleetwatch/fleetwatch/internal/datastore/entities"
)

// ConditionLogRepository stores activation and deactivation records.
type ConditionLogRepository interface {
	Save(ctx context.Context, entry *entities.ConditionLog) error
	List(ctx context.Context, filter ConditionLogFilter) ([]entities.ConditionLog, int64, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ConditionLogFilter controls log listing queries.
type ConditionLogFilter struct {
	ConditionID uint
	Kind        string
	Limit       int
	Offset      int
}

type conditionLogRepository struct {
	db *gorm.DB
}

// NewConditionLogRepository creates a new ConditionLogRepository.
func NewConditionLogRepository(db *gorm.DB) ConditionLogRepository {
	return &conditionLogRepository{db: db}
}

func (r *conditionLogRepository) Save(ctx context.Context, entry *entities.ConditionLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to save condition log: %w", err)
	}
	return nil
}

// List returns log entries newest first along with the unpaginated total.
func (r *conditionLogRepository) List(ctx context.Context, filter ConditionLogFilter) ([]entities.ConditionLog, int64, error) {
	var total int64
	if err := r.filtered(ctx, filter).Model(&entities.ConditionLog{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count condition log: %w", err)
	}

	query := r.filtered(ctx, filter).Order("fired_at DESC, id DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	var entries []entities.ConditionLog
	if err := query.Find(&entries).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list condition log: %w", err)
	}
	return entries, total, nil
}

func (r *conditionLogRepository) filtered(ctx context.Context, filter ConditionLogFilter) *gorm.DB {
	query := r.db.WithContext(ctx)
	if filter.ConditionID > 0 {
		query = query.Where("condition_id = ?", filter.ConditionID)
	}
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	return query
}

// DeleteBefore removes entries fired before the cutoff.
func (r *conditionLogRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("fired_at < ?", before).Delete(&entities.ConditionLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete condition log before %s: %w", before.Format(time.RFC3339), result.Error)
	}
	return result.RowsAffected, nil
}
