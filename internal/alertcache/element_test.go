package alertcache

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testOwner = elementOwner{conditionID: 1, definitionID: 1, agentID: 1}

func TestNumericElement_Thresholds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		op    Operator
		ref   float64
		value float64
		want  bool
	}{
		{OpGreaterThan, 80, 85, true},
		{OpGreaterThan, 80, 80, false},
		{OpLessThan, 10, 9.5, true},
		{OpLessThan, 10, 10, false},
		{OpEquals, 3, 3, true},
		{OpEquals, 3, 3.1, false},
	}
	for _, tt := range tests {
		e, err := newNumericElement(tt.op, ptr(tt.ref), testOwner)
		require.NoError(t, err)
		got, err := e.Process(tt.value)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s %v vs %v", tt.op, tt.value, tt.ref)
	}
}

func TestNumericElement_Validation(t *testing.T) {
	t.Parallel()

	_, err := newNumericElement(OpGreaterThan, nil, testOwner)
	require.ErrorIs(t, err, ErrInvalidElement)

	_, err = newNumericElement(OpRegex, ptr(1.0), testOwner)
	require.ErrorIs(t, err, ErrInvalidElement)

	e, err := newNumericElement(OpGreaterThan, ptr(1.0), testOwner)
	require.NoError(t, err)
	_, err = e.Process("not a number")
	require.Error(t, err)

	matched, err := e.Process(nan())
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestNumericElement_ChangesUpdatesReference(t *testing.T) {
	t.Parallel()

	e, err := newNumericElement(OpChanges, ptr(1.0), testOwner)
	require.NoError(t, err)

	for _, step := range []struct {
		value float64
		want  bool
	}{
		{2, true},
		{2, false},
		{3, true},
		{3, false},
	} {
		got, err := e.Process(step.value)
		require.NoError(t, err)
		assert.Equal(t, step.want, got, "value %v", step.value)
	}
	assert.Equal(t, "3", e.Reference())
}

func TestNumericElement_ChangesWithoutSeed(t *testing.T) {
	t.Parallel()

	e, err := newNumericElement(OpChanges, nil, testOwner)
	require.NoError(t, err)
	assert.Equal(t, "<none>", e.Reference())

	got, err := e.Process(5.0)
	require.NoError(t, err)
	assert.False(t, got, "first value only seeds the reference")

	got, err = e.Process(6.0)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestTraitElement(t *testing.T) {
	t.Parallel()

	changes, err := newTraitElement(OpChanges, ptr("1.0"), "", testOwner)
	require.NoError(t, err)
	got, err := changes.Process("1.0")
	require.NoError(t, err)
	assert.False(t, got)
	got, err = changes.Process("1.1")
	require.NoError(t, err)
	assert.True(t, got)

	re, err := newTraitElement(OpRegex, nil, `^2\.\d+$`, testOwner)
	require.NoError(t, err)
	got, err = re.Process("2.4")
	require.NoError(t, err)
	assert.True(t, got)
	got, err = re.Process("1.9")
	require.NoError(t, err)
	assert.False(t, got)

	_, err = newTraitElement(OpRegex, nil, "(", testOwner)
	require.ErrorIs(t, err, ErrInvalidElement)
	_, err = newTraitElement(OpRegex, nil, "", testOwner)
	require.ErrorIs(t, err, ErrInvalidElement)
	_, err = newTraitElement(OpLessThan, nil, "", testOwner)
	require.ErrorIs(t, err, ErrInvalidElement)
}

func TestAvailabilityElement_GoesDown(t *testing.T) {
	t.Parallel()

	e, err := newAvailabilityElement(OpChangesFrom, "UP", "UP", testOwner)
	require.NoError(t, err)

	for _, step := range []struct {
		value AvailabilityType
		want  bool
	}{
		{"UP", false},
		{"UNKNOWN", true}, // an agent going silent counts as leaving UP
		{"DOWN", false},
		{"UP", false},
		{"DOWN", true},
	} {
		got, err := e.Process(step.value)
		require.NoError(t, err)
		assert.Equal(t, step.want, got, "to %s", step.value)
	}
}

func TestAvailabilityElement_GoesUp(t *testing.T) {
	t.Parallel()

	e, err := newAvailabilityElement(OpChangesTo, "UP", "", testOwner)
	require.NoError(t, err)

	for _, step := range []struct {
		value AvailabilityType
		want  bool
	}{
		{"UP", true}, // unknown to UP
		{"UP", false},
		{"DOWN", false},
		{"UP", true},
	} {
		got, err := e.Process(step.value)
		require.NoError(t, err)
		assert.Equal(t, step.want, got, "to %s", step.value)
	}

	_, err = newAvailabilityElement(OpEquals, "UP", "", testOwner)
	require.ErrorIs(t, err, ErrInvalidElement)
}

func TestAvailabilityElement_RejectsUnknownTypes(t *testing.T) {
	t.Parallel()

	e, err := newAvailabilityElement(OpChangesTo, AvailabilityUp, AvailabilityUp, testOwner)
	require.NoError(t, err)

	for _, v := range []any{AvailabilityType("up"), AvailabilityType("sideways"), "DOWN"} {
		got, err := e.Process(v)
		require.Error(t, err, "%v", v)
		assert.False(t, got)
	}
	got, err := e.Process(AvailabilityUp)
	require.NoError(t, err)
	assert.False(t, got, "rejected values must not move the reference")

	seeded, err := newAvailabilityElement(OpChangesTo, AvailabilityUp, "garbage", testOwner)
	require.NoError(t, err)
	assert.Contains(t, seeded.Reference(), "<unknown>")

	_, err = newAvailabilityElement(OpChangesTo, "up", "", testOwner)
	require.ErrorIs(t, err, ErrInvalidElement)
}

func TestParseAvailabilityType(t *testing.T) {
	t.Parallel()

	got, err := ParseAvailabilityType(" down ")
	require.NoError(t, err)
	assert.Equal(t, AvailabilityDown, got)

	_, err = ParseAvailabilityType("sideways")
	require.Error(t, err)

	var change AvailabilityChange
	require.NoError(t, json.Unmarshal([]byte(`{"resourceId":3,"type":"disabled"}`), &change))
	assert.Equal(t, AvailabilityDisabled, change.Type)
	require.Error(t, json.Unmarshal([]byte(`{"type":"sideways"}`), &change))
}

func TestNumericElement_NonFiniteValuesAreUnusable(t *testing.T) {
	t.Parallel()

	e, err := newNumericElement(OpGreaterThan, ptr(80.0), testOwner)
	require.NoError(t, err)
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := e.Process(v)
		require.ErrorIs(t, err, errUnusableValue)
	}
}

func TestOperationElement(t *testing.T) {
	t.Parallel()

	e, err := newOperationElement(OpEquals, OperationFailure, testOwner)
	require.NoError(t, err)

	got, err := e.Process(OperationFailure)
	require.NoError(t, err)
	assert.True(t, got)
	got, err = e.Process(OperationSuccess)
	require.NoError(t, err)
	assert.False(t, got)
	_, err = e.Process("FAILURE")
	require.Error(t, err)

	_, err = newOperationElement(OpEquals, OperationStatus(42), testOwner)
	require.ErrorIs(t, err, ErrInvalidElement)
}

func TestEventElement(t *testing.T) {
	t.Parallel()

	plain, err := newEventElement(OpGreaterThanOrEqualTo, SeverityWarn, "", testOwner)
	require.NoError(t, err)
	for _, step := range []struct {
		sev  Severity
		want bool
	}{
		{SeverityDebug, false},
		{SeverityInfo, false},
		{SeverityWarn, true},
		{SeverityFatal, true},
	} {
		got, err := plain.Process(step.sev, "anything")
		require.NoError(t, err)
		assert.Equal(t, step.want, got, step.sev.String())
	}

	filtered, err := newEventElement(OpGreaterThanOrEqualTo, SeverityError, "disk .* full", testOwner)
	require.NoError(t, err)
	got, err := filtered.Process(SeverityError, "disk /var full")
	require.NoError(t, err)
	assert.True(t, got)
	got, err = filtered.Process(SeverityFatal, "out of memory")
	require.NoError(t, err)
	assert.False(t, got)
	got, err = filtered.Process(SeverityError)
	require.NoError(t, err)
	assert.False(t, got, "missing detail does not match a detail pattern")

	_, err = newEventElement(OpGreaterThanOrEqualTo, SeverityError, "[", testOwner)
	require.ErrorIs(t, err, ErrInvalidElement)
}

func TestConfigElement(t *testing.T) {
	t.Parallel()

	e, err := newConfigElement(OpChanges, map[string]string{"port": "80"}, testOwner)
	require.NoError(t, err)

	got, err := e.Process(map[string]string{"port": "80"})
	require.NoError(t, err)
	assert.False(t, got)
	got, err = e.Process(map[string]string{"port": "443"})
	require.NoError(t, err)
	assert.True(t, got)
	got, err = e.Process(map[string]string{"port": "443", "tls": "on"})
	require.NoError(t, err)
	assert.True(t, got)

	unseeded, err := newConfigElement(OpChanges, nil, testOwner)
	require.NoError(t, err)
	got, err = unseeded.Process(map[string]string{"a": "b"})
	require.NoError(t, err)
	assert.False(t, got)
}

func TestSeverityAndStatusJSON(t *testing.T) {
	t.Parallel()

	var ev Event
	require.NoError(t, json.Unmarshal([]byte(`{"severity":"error","detail":"x"}`), &ev))
	assert.Equal(t, SeverityError, ev.Severity)

	var op OperationResult
	require.NoError(t, json.Unmarshal([]byte(`{"resourceId":1,"operationDefinitionId":2,"status":"CANCELED"}`), &op))
	assert.Equal(t, OperationCanceled, op.Status)

	require.Error(t, json.Unmarshal([]byte(`{"severity":"LOUD"}`), &ev))

	b, err := json.Marshal(Event{Severity: SeverityFatal})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"severity":"FATAL"`)
}

func nan() float64 {
	var zero float64
	return zero / zero
}
