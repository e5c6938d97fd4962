package alertcache

import (
	"context"
	"fmt"
	"math"

	"github.com/fleetwatch/fleetwatch/internal/datastore/entities"
	"github.com/fleetwatch/fleetwatch/internal/datastore/repository"
)

// construct turns one condition row into an element and the places it must be inserted.
func (c *Cache) construct(ctx context.Context, row *repository.ConditionComposite) (element, []placement, error) {
	op, err := operatorFor(row.Category, row.Comparator, row.Option)
	if err != nil {
		return nil, nil, err
	}
	own := elementOwner{conditionID: row.ConditionID, definitionID: row.DefinitionID, agentID: row.AgentID}

	switch row.Category {
	case entities.CategoryThreshold:
		if row.ScheduleID == nil {
			return nil, nil, fmt.Errorf("%w: missing measurement schedule", ErrInvalidElement)
		}
		e, err := newNumericElement(op, row.Threshold, own)
		if err != nil {
			return nil, nil, err
		}
		return e, []placement{{CacheMeasurement, *row.ScheduleID}}, nil

	case entities.CategoryBaseline:
		if row.ScheduleID == nil || row.BaselineID == nil {
			return nil, nil, fmt.Errorf("%w: missing measurement baseline", ErrInvalidElement)
		}
		if row.Threshold == nil {
			return nil, nil, fmt.Errorf("%w: baseline condition without threshold", ErrInvalidElement)
		}
		value, err := baselineThreshold(*row.Threshold, row.Option, row.BaselineMin, row.BaselineMean, row.BaselineMax)
		if err != nil {
			return nil, nil, err
		}
		e, err := newNumericElement(op, &value, own)
		if err != nil {
			return nil, nil, err
		}
		e.baselineID = *row.BaselineID
		e.baselineOption = row.Option
		e.baselinePercent = *row.Threshold
		return e, []placement{{CacheMeasurement, *row.ScheduleID}, {CacheBaseline, *row.BaselineID}}, nil

	case entities.CategoryChange:
		if row.ScheduleID == nil {
			return nil, nil, fmt.Errorf("%w: missing measurement schedule", ErrInvalidElement)
		}
		current, err := c.lookup.CurrentNumeric(ctx, *row.ScheduleID)
		if err != nil {
			return nil, nil, err
		}
		e, err := newNumericElement(op, current, own)
		if err != nil {
			return nil, nil, err
		}
		return e, []placement{{CacheMeasurement, *row.ScheduleID}}, nil

	case entities.CategoryTrait:
		if row.ScheduleID == nil {
			return nil, nil, fmt.Errorf("%w: missing trait schedule", ErrInvalidElement)
		}
		var current *string
		if op == OpChanges {
			// a trait not yet reported leaves the reference empty until the first value
			if current, err = c.lookup.CurrentTrait(ctx, *row.ScheduleID); err != nil {
				return nil, nil, err
			}
		}
		e, err := newTraitElement(op, current, row.Option, own)
		if err != nil {
			return nil, nil, err
		}
		return e, []placement{{CacheTrait, *row.ScheduleID}}, nil

	case entities.CategoryControl:
		if row.OperationDefinitionID == nil {
			return nil, nil, fmt.Errorf("%w: operation %q not defined for resource type %d",
				ErrInvalidElement, row.Name, row.ResourceTypeID)
		}
		status, err := ParseOperationStatus(row.Option)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrInvalidElement, err)
		}
		e, err := newOperationElement(op, status, own)
		if err != nil {
			return nil, nil, err
		}
		key := operationKey{ResourceID: row.ResourceID, OperationDefinitionID: *row.OperationDefinitionID}
		return e, []placement{{CacheOperation, key}}, nil

	case entities.CategoryAvailability:
		current, err := c.lookup.CurrentAvailability(ctx, row.ResourceID)
		if err != nil {
			return nil, nil, err
		}
		// a stored type that does not parse seeds nothing
		seed, _ := ParseAvailabilityType(current)
		e, err := newAvailabilityElement(op, AvailabilityUp, seed, own)
		if err != nil {
			return nil, nil, err
		}
		return e, []placement{{CacheAvailability, row.ResourceID}}, nil

	case entities.CategoryEvent:
		severity, err := ParseSeverity(row.Name)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrInvalidElement, err)
		}
		e, err := newEventElement(op, severity, row.Option, own)
		if err != nil {
			return nil, nil, err
		}
		return e, []placement{{CacheEvent, row.ResourceID}}, nil

	case entities.CategoryResourceConfig:
		current, err := c.lookup.CurrentConfiguration(ctx, row.ResourceID)
		if err != nil {
			return nil, nil, err
		}
		e, err := newConfigElement(op, current, own)
		if err != nil {
			return nil, nil, err
		}
		return e, []placement{{CacheConfig, row.ResourceID}}, nil

	default:
		return nil, nil, fmt.Errorf("%w: category %q", ErrUnsupportedOperator, row.Category)
	}
}

// baselineThreshold resolves "percent of baseline statistic" into an absolute threshold.
func baselineThreshold(percent float64, option string, minV, meanV, maxV *float64) (float64, error) {
	var stat *float64
	switch option {
	case "min":
		stat = minV
	case "mean":
		stat = meanV
	case "max":
		stat = maxV
	default:
		return 0, fmt.Errorf("%w: unrecognized baseline option %q", ErrInvalidElement, option)
	}
	if stat == nil || math.IsNaN(*stat) || math.IsInf(*stat, 0) {
		return 0, fmt.Errorf("%w: baseline %s is not available", ErrInvalidElement, option)
	}
	if math.IsNaN(percent) || math.IsInf(percent, 0) {
		return 0, fmt.Errorf("%w: baseline percentage is not finite", ErrInvalidElement)
	}
	return percent / 100 * *stat, nil
}
