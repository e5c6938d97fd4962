// Package alertcache holds every active alert condition in memory and evaluates
// incoming telemetry against the conditions registered for its source.
package alertcache

import (
	"fmt"
	"strings"

	"github.com/fleetwatch/fleetwatch/internal/datastore/entities"
)

// Operator is the comparison an element applies to incoming values.
type Operator int

const (
	OpLessThan Operator = iota + 1
	OpGreaterThan
	OpEquals
	OpGreaterThanOrEqualTo
	OpChanges
	OpChangesTo
	OpChangesFrom
	OpRegex
)

// OperatorType says whether an operator's non-match can deactivate a condition.
type OperatorType int

const (
	// Stateless operators only ever activate.
	Stateless OperatorType = iota
	// Stateful operators deactivate when an active element stops matching.
	Stateful
)

var operatorNames = map[Operator]string{
	OpLessThan:             "LESS_THAN",
	OpGreaterThan:          "GREATER_THAN",
	OpEquals:               "EQUALS",
	OpGreaterThanOrEqualTo: "GREATER_THAN_OR_EQUAL_TO",
	OpChanges:              "CHANGES",
	OpChangesTo:            "CHANGES_TO",
	OpChangesFrom:          "CHANGES_FROM",
	OpRegex:                "REGEX",
}

func (o Operator) String() string {
	if name, ok := operatorNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Operator(%d)", int(o))
}

// Type returns the operator's STATEFUL/STATELESS tag.
func (o Operator) Type() OperatorType {
	switch o {
	case OpLessThan, OpGreaterThan, OpChangesTo, OpChangesFrom:
		return Stateful
	default:
		return Stateless
	}
}

func (t OperatorType) String() string {
	if t == Stateful {
		return "STATEFUL"
	}
	return "STATELESS"
}

// changesReference reports whether evaluating the operator replaces the stored reference.
func (o Operator) changesReference() bool {
	return o == OpChanges || o == OpChangesTo || o == OpChangesFrom
}

// comparatorRegex selects the pattern operator for trait conditions.
const comparatorRegex = "regex"

// operatorFor maps a persisted condition's category, comparator and option to an operator.
func operatorFor(category entities.ConditionCategory, comparator, option string) (Operator, error) {
	switch category {
	case entities.CategoryControl:
		return OpEquals, nil
	case entities.CategoryEvent:
		return OpGreaterThanOrEqualTo, nil
	case entities.CategoryChange, entities.CategoryResourceConfig:
		return OpChanges, nil
	case entities.CategoryTrait:
		if strings.EqualFold(comparator, comparatorRegex) {
			return OpRegex, nil
		}
		return OpChanges, nil
	case entities.CategoryAvailability:
		switch strings.ToUpper(option) {
		case entities.AvailabilityDown:
			// "goes DOWN" also fires when UP turns into UNKNOWN
			return OpChangesFrom, nil
		case entities.AvailabilityUp:
			return OpChangesTo, nil
		default:
			return 0, fmt.Errorf("%w: availability option %q", ErrUnsupportedOperator, option)
		}
	case entities.CategoryThreshold, entities.CategoryBaseline:
		switch comparator {
		case "<":
			return OpLessThan, nil
		case ">":
			return OpGreaterThan, nil
		case "=":
			return OpEquals, nil
		default:
			return 0, fmt.Errorf("%w: comparator %q for %s", ErrUnsupportedOperator, comparator, category)
		}
	default:
		return 0, fmt.Errorf("%w: category %q", ErrUnsupportedOperator, category)
	}
}
