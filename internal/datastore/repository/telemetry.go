package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/fleetwatch/fleetwatch/internal/datastore/entities"
)

// TelemetryRepository persists incoming telemetry so the current-value lookups
// reflect what the cache has seen.
type TelemetryRepository interface {
	SaveNumeric(ctx context.Context, rows []entities.MeasurementDataNumeric) error
	SaveTraits(ctx context.Context, rows []entities.MeasurementDataTrait) error
	// RecordAvailability closes the open interval of the resource and opens a new one.
	RecordAvailability(ctx context.Context, resourceID uint, availType string, at time.Time) error
	SaveConfiguration(ctx context.Context, resourceID uint, props map[string]string) error
	// ScheduleIDs returns the schedule ids that exist among ids.
	ScheduleIDs(ctx context.Context, ids []uint) ([]uint, error)
}

type telemetryRepository struct {
	db *gorm.DB
}

// NewTelemetryRepository creates a new TelemetryRepository.
func NewTelemetryRepository(db *gorm.DB) TelemetryRepository {
	return &telemetryRepository{db: db}
}

const telemetryBatchSize = 200

func (r *telemetryRepository) SaveNumeric(ctx context.Context, rows []entities.MeasurementDataNumeric) error {
	if len(rows) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(rows, telemetryBatchSize).Error; err != nil {
		return fmt.Errorf("failed to save numeric data: %w", err)
	}
	return nil
}

func (r *telemetryRepository) SaveTraits(ctx context.Context, rows []entities.MeasurementDataTrait) error {
	if len(rows) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(rows, telemetryBatchSize).Error; err != nil {
		return fmt.Errorf("failed to save trait data: %w", err)
	}
	return nil
}

func (r *telemetryRepository) RecordAvailability(ctx context.Context, resourceID uint, availType string, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entities.Availability{}).
			Where("resource_id = ? AND end_time IS NULL", resourceID).
			Update("end_time", at).Error; err != nil {
			return fmt.Errorf("failed to close availability of resource %d: %w", resourceID, err)
		}
		row := entities.Availability{ResourceID: resourceID, Type: availType, StartTime: at}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to record availability of resource %d: %w", resourceID, err)
		}
		return nil
	})
}

func (r *telemetryRepository) SaveConfiguration(ctx context.Context, resourceID uint, props map[string]string) error {
	row := entities.ResourceConfiguration{ResourceID: resourceID}
	if err := row.SetPropertyMap(props); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to save configuration of resource %d: %w", resourceID, err)
	}
	return nil
}

func (r *telemetryRepository) ScheduleIDs(ctx context.Context, ids []uint) ([]uint, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var found []uint
	if err := r.db.WithContext(ctx).Model(&entities.MeasurementSchedule{}).
		Where("id IN ?", ids).
		Pluck("id", &found).Error; err != nil {
		return nil, fmt.Errorf("failed to look up schedules: %w", err)
	}
	return found, nil
}
