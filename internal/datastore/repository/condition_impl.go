package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/fleetwatch/fleetwatch/internal/datastore/entities"
	"github.com/fleetwatch/fleetwatch/internal/errors"
)

// conditionRepository implements ConditionSource and CurrentValueLookup.
type conditionRepository struct {
	db *gorm.DB
}

// NewConditionRepository creates a new ConditionRepository.
func NewConditionRepository(db *gorm.DB) ConditionRepository {
	return &conditionRepository{db: db}
}

const baseColumns = "c.id AS condition_id, c.alert_definition_id AS definition_id, c.category, c.name, " +
	"c.comparator, c.option_value, c.threshold, r.agent_id, r.id AS resource_id, r.resource_type_id"

// conditionQuery builds the eligibility-filtered query for one category.
// Joins to optional context are LEFT joins so a condition with a missing
// schedule, baseline or operation still reaches construction and is reported there.
func (r *conditionRepository) conditionQuery(ctx context.Context, category entities.ConditionCategory, scope ConditionScope) (*gorm.DB, string) {
	q := r.db.WithContext(ctx).
		Table("alert_conditions AS c").
		Joins("JOIN alert_definitions d ON d.id = c.alert_definition_id").
		Joins("JOIN resources r ON r.id = d.resource_id").
		Where("c.category = ?", category).
		Where("d.enabled = ? AND d.deleted = ?", true, false).
		Where("(d.recovery_id IS NULL OR d.recovery_id = 0)")

	if scope.AgentID != 0 {
		q = q.Where("r.agent_id = ?", scope.AgentID)
	}
	if scope.DefinitionID != 0 {
		q = q.Where("d.id = ?", scope.DefinitionID)
	}

	columns := baseColumns
	switch category {
	case entities.CategoryThreshold, entities.CategoryChange, entities.CategoryTrait:
		q = q.Joins("LEFT JOIN measurement_schedules s ON s.resource_id = r.id AND s.definition_id = c.measurement_definition_id")
		columns += ", s.id AS schedule_id"
	case entities.CategoryBaseline:
		q = q.Joins("LEFT JOIN measurement_schedules s ON s.resource_id = r.id AND s.definition_id = c.measurement_definition_id").
			Joins("LEFT JOIN measurement_baselines b ON b.schedule_id = s.id")
		columns += ", s.id AS schedule_id, b.id AS baseline_id, b.min_value AS baseline_min, " +
			"b.mean_value AS baseline_mean, b.max_value AS baseline_max"
	case entities.CategoryControl:
		q = q.Joins("LEFT JOIN operation_definitions o ON o.resource_type_id = r.resource_type_id AND o.name = c.name")
		columns += ", o.id AS operation_definition_id"
	}
	return q, columns
}

// FindConditions returns one page of eligible conditions and the total row count.
func (r *conditionRepository) FindConditions(ctx context.Context, category entities.ConditionCategory, scope ConditionScope, offset, limit int) ([]ConditionComposite, int64, error) {
	var total int64
	countQuery, _ := r.conditionQuery(ctx, category, scope)
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, r.queryError(err, category, scope)
	}
	if total == 0 || int64(offset) >= total {
		return nil, total, nil
	}

	var rows []ConditionComposite
	pageQuery, columns := r.conditionQuery(ctx, category, scope)
	if err := pageQuery.Select(columns).Order("c.id ASC").Offset(offset).Limit(limit).Scan(&rows).Error; err != nil {
		return nil, 0, r.queryError(err, category, scope)
	}
	return rows, total, nil
}

func (r *conditionRepository) queryError(err error, category entities.ConditionCategory, scope ConditionScope) error {
	return errors.New(fmt.Errorf("failed to query %s conditions: %w", category, err)).
		Component("repository").
		Category(errors.CategoryDatabase).
		Context("agent_id", scope.AgentID).
		Context("definition_id", scope.DefinitionID).
		Build()
}

// ConditionIDsForDefinition returns all condition ids of a definition.
func (r *conditionRepository) ConditionIDsForDefinition(ctx context.Context, definitionID uint) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).Model(&entities.AlertCondition{}).
		Where("alert_definition_id = ?", definitionID).
		Order("id ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list conditions of definition %d: %w", definitionID, err)
	}
	return ids, nil
}

// GetCondition returns a single condition by id.
func (r *conditionRepository) GetCondition(ctx context.Context, id uint) (*entities.AlertCondition, error) {
	var cond entities.AlertCondition
	if err := r.db.WithContext(ctx).First(&cond, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlertConditionNotFound
		}
		return nil, fmt.Errorf("failed to get alert condition %d: %w", id, err)
	}
	return &cond, nil
}

// ListAgentIDs returns the ids of agents owning at least one resource.
func (r *conditionRepository) ListAgentIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).Model(&entities.Resource{}).
		Distinct("agent_id").
		Order("agent_id ASC").
		Pluck("agent_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	return ids, nil
}

// CurrentNumeric returns the newest numeric sample value of a schedule.
func (r *conditionRepository) CurrentNumeric(ctx context.Context, scheduleID uint) (*float64, error) {
	var row entities.MeasurementDataNumeric
	err := r.db.WithContext(ctx).Where("schedule_id = ?", scheduleID).Order("timestamp DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current numeric for schedule %d: %w", scheduleID, err)
	}
	return &row.Value, nil
}

// CurrentTrait returns the newest trait value of a schedule.
func (r *conditionRepository) CurrentTrait(ctx context.Context, scheduleID uint) (*string, error) {
	var row entities.MeasurementDataTrait
	err := r.db.WithContext(ctx).Where("schedule_id = ?", scheduleID).Order("timestamp DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current trait for schedule %d: %w", scheduleID, err)
	}
	return &row.Value, nil
}

// CurrentAvailability returns the type of the open availability interval of a resource.
func (r *conditionRepository) CurrentAvailability(ctx context.Context, resourceID uint) (string, error) {
	var row entities.Availability
	err := r.db.WithContext(ctx).
		Where("resource_id = ? AND end_time IS NULL", resourceID).
		Order("start_time DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get current availability for resource %d: %w", resourceID, err)
	}
	return row.Type, nil
}

// CurrentConfiguration returns the newest configuration snapshot of a resource.
func (r *conditionRepository) CurrentConfiguration(ctx context.Context, resourceID uint) (map[string]string, error) {
	var row entities.ResourceConfiguration
	err := r.db.WithContext(ctx).
		Where("resource_id = ?", resourceID).
		Order("created_at DESC, id DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current configuration for resource %d: %w", resourceID, err)
	}
	return row.PropertyMap()
}
