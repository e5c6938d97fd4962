package alertcache

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidElement is returned when a condition cannot be turned into an element.
	ErrInvalidElement = errors.New("invalid cache element")
	// ErrUnsupportedOperator is returned for operator and category combinations the cache does not evaluate.
	ErrUnsupportedOperator = errors.New("unsupported alert condition operator")
	// ErrUnknownCache is returned by introspection calls given an unknown cache name.
	ErrUnknownCache = errors.New("unknown cache")
	// ErrUnknownDefinitionEvent is returned by UpdateConditions for an unrecognized event.
	ErrUnknownDefinitionEvent = errors.New("unknown alert definition event")
)

// MeasurementValue is one numeric sample.
type MeasurementValue struct {
	ScheduleID uint      `json:"scheduleId"`
	Timestamp  time.Time `json:"timestamp"`
	Value      float64   `json:"value"`
}

// TraitValue is one trait sample.
type TraitValue struct {
	ScheduleID uint      `json:"scheduleId"`
	Timestamp  time.Time `json:"timestamp"`
	Value      string    `json:"value"`
}

// OperationStatus is the outcome of an operation request.
type OperationStatus int

const (
	OperationInProgress OperationStatus = iota + 1
	OperationSuccess
	OperationFailure
	OperationCanceled
)

var operationStatusNames = map[OperationStatus]string{
	OperationInProgress: "INPROGRESS",
	OperationSuccess:    "SUCCESS",
	OperationFailure:    "FAILURE",
	OperationCanceled:   "CANCELED",
}

func (s OperationStatus) String() string {
	if name, ok := operationStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("OperationStatus(%d)", int(s))
}

// ParseOperationStatus accepts the status names case-insensitively.
func ParseOperationStatus(s string) (OperationStatus, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for status, name := range operationStatusNames {
		if name == upper {
			return status, nil
		}
	}
	return 0, fmt.Errorf("unknown operation status %q", s)
}

// OperationResult reports how an operation on a resource finished.
type OperationResult struct {
	ResourceID            uint            `json:"resourceId"`
	OperationDefinitionID uint            `json:"operationDefinitionId"`
	Status                OperationStatus `json:"status"`
	Timestamp             time.Time       `json:"timestamp"`
}

// AvailabilityType is the availability state of a resource.
type AvailabilityType string

const (
	AvailabilityUp       AvailabilityType = "UP"
	AvailabilityDown     AvailabilityType = "DOWN"
	AvailabilityDisabled AvailabilityType = "DISABLED"
	AvailabilityUnknown  AvailabilityType = "UNKNOWN"
)

// Valid reports whether t is one of the known availability types.
func (t AvailabilityType) Valid() bool {
	switch t {
	case AvailabilityUp, AvailabilityDown, AvailabilityDisabled, AvailabilityUnknown:
		return true
	}
	return false
}

// ParseAvailabilityType accepts the availability names case-insensitively.
func ParseAvailabilityType(s string) (AvailabilityType, error) {
	t := AvailabilityType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown availability type %q", s)
	}
	return t, nil
}

// AvailabilityChange reports a resource's new availability type.
type AvailabilityChange struct {
	ResourceID uint             `json:"resourceId"`
	Type       AvailabilityType `json:"type"`
	Timestamp  time.Time        `json:"timestamp"`
}

// Severity orders events from DEBUG to FATAL.
type Severity int

const (
	SeverityDebug Severity = iota + 1
	SeverityInfo
	SeverityWarn
	SeverityError
	SeverityFatal
)

var severityNames = map[Severity]string{
	SeverityDebug: "DEBUG",
	SeverityInfo:  "INFO",
	SeverityWarn:  "WARN",
	SeverityError: "ERROR",
	SeverityFatal: "FATAL",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// ParseSeverity accepts the severity names case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for sev, name := range severityNames {
		if name == upper {
			return sev, nil
		}
	}
	return 0, fmt.Errorf("unknown event severity %q", s)
}

// EventSource identifies where a batch of events came from.
type EventSource struct {
	ResourceID uint   `json:"resourceId"`
	Location   string `json:"location"`
}

// Event is one discrete event.
type Event struct {
	Severity  Severity  `json:"severity"`
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
}

// ConfigurationUpdate is a new configuration snapshot for a resource.
type ConfigurationUpdate struct {
	ResourceID uint              `json:"resourceId"`
	Properties map[string]string `json:"properties"`
	Timestamp  time.Time         `json:"timestamp"`
}

// DefinitionEvent is a structural change to an alert definition.
type DefinitionEvent string

const (
	DefinitionCreated  DefinitionEvent = "CREATED"
	DefinitionUpdated  DefinitionEvent = "UPDATED"
	DefinitionEnabled  DefinitionEvent = "ENABLED"
	DefinitionDisabled DefinitionEvent = "DISABLED"
	DefinitionDeleted  DefinitionEvent = "DELETED"
)

// BaselineUpdate carries freshly computed statistics for one baseline.
type BaselineUpdate struct {
	BaselineID uint     `json:"baselineId"`
	Min        *float64 `json:"min"`
	Mean       *float64 `json:"mean"`
	Max        *float64 `json:"max"`
}

func (s OperationStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *OperationStatus) UnmarshalText(b []byte) error {
	parsed, err := ParseOperationStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Severity) UnmarshalText(b []byte) error {
	parsed, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (t *AvailabilityType) UnmarshalText(b []byte) error {
	parsed, err := ParseAvailabilityType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
