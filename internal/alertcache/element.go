package alertcache

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"regexp"
	"sync"
	"sync/atomic"
)

// element is one evaluable condition instance living in one or more element lists.
// Process may replace the element's reference value as a side effect; the
// active flag is only touched by the matching engine.
type element interface {
	ConditionID() uint
	Operator() Operator
	Process(value any, extra ...any) (bool, error)
	// Reference renders the current reference value for introspection.
	Reference() string

	owner() *elementOwner
	isActive() bool
	activate()
	// deactivate clears the active flag and reports whether it was set.
	deactivate() bool
}

// elementOwner identifies the condition an element came from.
type elementOwner struct {
	conditionID  uint
	definitionID uint
	agentID      uint
}

// elementBase carries what every element variant shares.
type elementBase struct {
	op     Operator
	own    elementOwner
	active atomic.Bool
	mu     sync.Mutex // guards the variant's reference value
}

func (b *elementBase) ConditionID() uint    { return b.own.conditionID }
func (b *elementBase) Operator() Operator   { return b.op }
func (b *elementBase) owner() *elementOwner { return &b.own }
func (b *elementBase) isActive() bool       { return b.active.Load() }
func (b *elementBase) activate()            { b.active.Store(true) }
func (b *elementBase) deactivate() bool     { return b.active.CompareAndSwap(true, false) }
func (b *elementBase) describe() string {
	return fmt.Sprintf("condition=%d operator=%s active=%t", b.own.conditionID, b.op, b.active.Load())
}

func invalidOperator(kind string, op Operator) error {
	return fmt.Errorf("%w: %s element does not support %s", ErrInvalidElement, kind, op)
}

// errUnusableValue marks a sample that cannot be evaluated. The engine skips
// the element without touching its state.
var errUnusableValue = errors.New("unusable value")

func valueTypeError(kind string, value any) error {
	return fmt.Errorf("%s element cannot evaluate value of type %T", kind, value)
}

// numericElement compares measurement values against a threshold, a resolved
// baseline threshold, or the previous value.
type numericElement struct {
	elementBase
	ref *float64

	// set only for baseline-derived elements
	baselineID      uint
	baselineOption  string
	baselinePercent float64
}

func newNumericElement(op Operator, ref *float64, own elementOwner) (*numericElement, error) {
	switch op {
	case OpLessThan, OpGreaterThan, OpEquals:
		if ref == nil {
			return nil, fmt.Errorf("%w: %s requires a reference value", ErrInvalidElement, op)
		}
		if math.IsNaN(*ref) || math.IsInf(*ref, 0) {
			return nil, fmt.Errorf("%w: reference value %v is not finite", ErrInvalidElement, *ref)
		}
	case OpChanges:
	default:
		return nil, invalidOperator("numeric", op)
	}
	e := &numericElement{elementBase: elementBase{op: op, own: own}}
	if ref != nil {
		v := *ref
		e.ref = &v
	}
	return e, nil
}

func (e *numericElement) Process(value any, _ ...any) (bool, error) {
	v, ok := value.(float64)
	if !ok {
		return false, valueTypeError("numeric", value)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false, fmt.Errorf("%w: %v", errUnusableValue, v)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.op {
	case OpLessThan:
		return v < *e.ref, nil
	case OpGreaterThan:
		return v > *e.ref, nil
	case OpEquals:
		return v == *e.ref, nil
	case OpChanges:
		prev := e.ref
		e.ref = &v
		// the first value seen only seeds the reference
		return prev != nil && *prev != v, nil
	default:
		return false, invalidOperator("numeric", e.op)
	}
}

func (e *numericElement) Reference() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ref == nil {
		return "<none>"
	}
	return fmt.Sprintf("%g", *e.ref)
}

// setReference replaces the threshold; used when a baseline is recalculated.
func (e *numericElement) setReference(v float64) {
	e.mu.Lock()
	e.ref = &v
	e.mu.Unlock()
}

func (e *numericElement) String() string {
	return fmt.Sprintf("numeric{%s ref=%s}", e.describe(), e.Reference())
}

// traitElement detects trait changes or matches traits against a pattern.
type traitElement struct {
	elementBase
	ref     *string
	pattern *regexp.Regexp
}

func newTraitElement(op Operator, ref *string, pattern string, own elementOwner) (*traitElement, error) {
	e := &traitElement{elementBase: elementBase{op: op, own: own}}
	switch op {
	case OpChanges:
		if ref != nil {
			v := *ref
			e.ref = &v
		}
	case OpRegex:
		if pattern == "" {
			return nil, fmt.Errorf("%w: REGEX requires a pattern", ErrInvalidElement)
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid pattern %q: %w", ErrInvalidElement, pattern, err)
		}
		e.pattern = re
	default:
		return nil, invalidOperator("trait", op)
	}
	return e, nil
}

func (e *traitElement) Process(value any, _ ...any) (bool, error) {
	v, ok := value.(string)
	if !ok {
		return false, valueTypeError("trait", value)
	}
	if e.op == OpRegex {
		return e.pattern.MatchString(v), nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	prev := e.ref
	e.ref = &v
	return prev != nil && *prev != v, nil
}

func (e *traitElement) Reference() string {
	if e.pattern != nil {
		return e.pattern.String()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ref == nil {
		return "<none>"
	}
	return *e.ref
}

func (e *traitElement) String() string {
	return fmt.Sprintf("trait{%s ref=%q}", e.describe(), e.Reference())
}

// availabilityElement fires when availability moves to or away from target.
type availabilityElement struct {
	elementBase
	target   AvailabilityType
	previous AvailabilityType // "" when unknown
}

func newAvailabilityElement(op Operator, target, current AvailabilityType, own elementOwner) (*availabilityElement, error) {
	if op != OpChangesTo && op != OpChangesFrom {
		return nil, invalidOperator("availability", op)
	}
	if !target.Valid() {
		return nil, fmt.Errorf("%w: availability target %q", ErrInvalidElement, target)
	}
	if !current.Valid() {
		current = ""
	}
	return &availabilityElement{
		elementBase: elementBase{op: op, own: own},
		target:      target,
		previous:    current,
	}, nil
}

func (e *availabilityElement) Process(value any, _ ...any) (bool, error) {
	v, ok := value.(AvailabilityType)
	if !ok {
		return false, valueTypeError("availability", value)
	}
	if !v.Valid() {
		return false, fmt.Errorf("%w: availability type %q", errUnusableValue, v)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	prev := e.previous
	e.previous = v

	switch e.op {
	case OpChangesTo:
		return prev != e.target && v == e.target, nil
	case OpChangesFrom:
		return prev == e.target && v != e.target, nil
	default:
		return false, invalidOperator("availability", e.op)
	}
}

func (e *availabilityElement) Reference() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	prev := e.previous
	if prev == "" {
		prev = "<unknown>"
	}
	return fmt.Sprintf("%s (previous %s)", e.target, prev)
}

func (e *availabilityElement) String() string {
	return fmt.Sprintf("availability{%s ref=%s}", e.describe(), e.Reference())
}

// operationElement fires when an operation finishes with the expected status.
type operationElement struct {
	elementBase
	status OperationStatus
}

func newOperationElement(op Operator, status OperationStatus, own elementOwner) (*operationElement, error) {
	if op != OpEquals {
		return nil, invalidOperator("operation", op)
	}
	if _, ok := operationStatusNames[status]; !ok {
		return nil, fmt.Errorf("%w: unknown operation status %d", ErrInvalidElement, status)
	}
	return &operationElement{elementBase: elementBase{op: op, own: own}, status: status}, nil
}

func (e *operationElement) Process(value any, _ ...any) (bool, error) {
	v, ok := value.(OperationStatus)
	if !ok {
		return false, valueTypeError("operation", value)
	}
	return v == e.status, nil
}

func (e *operationElement) Reference() string { return e.status.String() }

func (e *operationElement) String() string {
	return fmt.Sprintf("operation{%s ref=%s}", e.describe(), e.Reference())
}

// eventElement fires for events at or above a severity whose detail matches an optional pattern.
type eventElement struct {
	elementBase
	severity Severity
	detail   *regexp.Regexp
}

func newEventElement(op Operator, severity Severity, detailPattern string, own elementOwner) (*eventElement, error) {
	if op != OpGreaterThanOrEqualTo {
		return nil, invalidOperator("event", op)
	}
	if _, ok := severityNames[severity]; !ok {
		return nil, fmt.Errorf("%w: unknown severity %d", ErrInvalidElement, severity)
	}
	e := &eventElement{elementBase: elementBase{op: op, own: own}, severity: severity}
	if detailPattern != "" {
		re, err := regexp.Compile(detailPattern)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid detail pattern %q: %w", ErrInvalidElement, detailPattern, err)
		}
		e.detail = re
	}
	return e, nil
}

// Process expects the event severity as value and the event detail as the first extra parameter.
func (e *eventElement) Process(value any, extra ...any) (bool, error) {
	v, ok := value.(Severity)
	if !ok {
		return false, valueTypeError("event", value)
	}
	if v < e.severity {
		return false, nil
	}
	if e.detail == nil {
		return true, nil
	}
	var detail string
	if len(extra) > 0 {
		if d, ok := extra[0].(string); ok {
			detail = d
		}
	}
	return e.detail.MatchString(detail), nil
}

func (e *eventElement) Reference() string {
	if e.detail == nil {
		return e.severity.String()
	}
	return fmt.Sprintf("%s detail~%s", e.severity, e.detail)
}

func (e *eventElement) String() string {
	return fmt.Sprintf("event{%s ref=%s}", e.describe(), e.Reference())
}

// configElement detects changes to a resource's configuration snapshot.
type configElement struct {
	elementBase
	ref map[string]string
}

func newConfigElement(op Operator, current map[string]string, own elementOwner) (*configElement, error) {
	if op != OpChanges {
		return nil, invalidOperator("configuration", op)
	}
	return &configElement{elementBase: elementBase{op: op, own: own}, ref: maps.Clone(current)}, nil
}

func (e *configElement) Process(value any, _ ...any) (bool, error) {
	v, ok := value.(map[string]string)
	if !ok {
		return false, valueTypeError("configuration", value)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	prev := e.ref
	e.ref = maps.Clone(v)
	if e.ref == nil {
		e.ref = map[string]string{}
	}
	return prev != nil && !maps.Equal(prev, v), nil
}

func (e *configElement) Reference() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ref == nil {
		return "<none>"
	}
	return fmt.Sprintf("%d properties", len(e.ref))
}

func (e *configElement) String() string {
	return fmt.Sprintf("configuration{%s ref=%s}", e.describe(), e.Reference())
}
