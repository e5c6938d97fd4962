package repository

import (
	"context"
	"errors"

	"github.com/fleetwatch/fleetwatch/internal/datastore/entities"
)

// ErrAlertConditionNotFound is returned when a condition id has no row.
var ErrAlertConditionNotFound = errors.New("alert condition not found")

// ConditionComposite is one eligible alert condition together with the context
// needed to build its cache element. Category-specific fields are nil when the
// category does not use them or when the referenced row is missing.
type ConditionComposite struct {
	ConditionID    uint
	DefinitionID   uint
	Category       entities.ConditionCategory
	Name           string
	Comparator     string
	Option         string `gorm:"column:option_value"`
	Threshold      *float64
	AgentID        uint
	ResourceID     uint
	ResourceTypeID uint

	// THRESHOLD, BASELINE, CHANGE, TRAIT
	ScheduleID *uint
	// BASELINE
	BaselineID   *uint
	BaselineMin  *float64
	BaselineMean *float64
	BaselineMax  *float64
	// CONTROL
	OperationDefinitionID *uint
}

// ConditionScope restricts a condition query. Zero fields do not filter.
type ConditionScope struct {
	AgentID      uint
	DefinitionID uint
}

// ConditionSource supplies eligible conditions page by page.
type ConditionSource interface {
	// FindConditions returns one page of conditions of the given category in
	// scope, ordered by condition id, and the total number of matching rows.
	FindConditions(ctx context.Context, category entities.ConditionCategory, scope ConditionScope, offset, limit int) ([]ConditionComposite, int64, error)
	// ConditionIDsForDefinition returns every condition id of a definition regardless of eligibility.
	ConditionIDsForDefinition(ctx context.Context, definitionID uint) ([]uint, error)
	// GetCondition returns a condition by id or ErrAlertConditionNotFound.
	GetCondition(ctx context.Context, id uint) (*entities.AlertCondition, error)
	// ListAgentIDs returns every agent that owns at least one resource.
	ListAgentIDs(ctx context.Context) ([]uint, error)
}

// ConditionRepository serves both the cache loader and change-detection seeding.
type ConditionRepository interface {
	ConditionSource
	CurrentValueLookup
}

// CurrentValueLookup answers "latest known value" queries used to seed change detection.
type CurrentValueLookup interface {
	// CurrentNumeric returns the latest numeric value of a schedule, nil when none exists.
	CurrentNumeric(ctx context.Context, scheduleID uint) (*float64, error)
	// CurrentTrait returns the latest trait value of a schedule, nil when none exists.
	CurrentTrait(ctx context.Context, scheduleID uint) (*string, error)
	// CurrentAvailability returns the open availability type of a resource, "" when unknown.
	CurrentAvailability(ctx context.Context, resourceID uint) (string, error)
	// CurrentConfiguration returns the latest configuration snapshot, nil when none exists.
	CurrentConfiguration(ctx context.Context, resourceID uint) (map[string]string, error)
}
