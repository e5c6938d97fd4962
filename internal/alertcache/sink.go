package alertcache

import (
	"time"

	"github.com/fleetwatch/fleetwatch/internal/datastore/entities"
)

// Sink receives activation and deactivation signals. Calls must not block;
// the cache does not retry a failed delivery.
type Sink interface {
	Activate(conditionID uint, timestamp time.Time, value any, extra ...any) error
	Deactivate(conditionID uint, timestamp time.Time) error
}

// Observer receives cache instrumentation. Implementations must be safe for concurrent use.
type Observer interface {
	ObserveCheck(cache string, elapsed time.Duration, stats Stats)
	ObserveSignal(cache string, kind string)
	ObserveLoad(category entities.ConditionCategory, stats Stats)
	ObserveReload(elapsed time.Duration, err error)
	ObserveCounts(counts map[string]int)
}

// Signal kinds passed to Observer.ObserveSignal.
const (
	SignalActivate   = "activate"
	SignalDeactivate = "deactivate"
)

type nopObserver struct{}

func (nopObserver) ObserveCheck(string, time.Duration, Stats)     {}
func (nopObserver) ObserveSignal(string, string)                  {}
func (nopObserver) ObserveLoad(entities.ConditionCategory, Stats) {}
func (nopObserver) ObserveReload(time.Duration, error)            {}
func (nopObserver) ObserveCounts(map[string]int)                  {}
