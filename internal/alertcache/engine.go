package alertcache

import (
	"errors"
	"fmt"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/logger"
)

// CheckMeasurements evaluates numeric samples against threshold, baseline and
// change conditions registered for each sample's schedule.
func (c *Cache) CheckMeasurements(data ...MeasurementValue) Stats {
	stats := newStats()
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := range data {
		d := &data[i]
		if list := c.stores.measurement[d.ScheduleID]; list != nil {
			c.processList(CacheMeasurement, list, d.Timestamp, d.Value, nil, &stats)
		}
	}
	return c.finishCheck(CacheMeasurement, stats)
}

// CheckTraits evaluates trait samples against the trait conditions of each schedule.
func (c *Cache) CheckTraits(data ...TraitValue) Stats {
	stats := newStats()
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := range data {
		d := &data[i]
		if list := c.stores.trait[d.ScheduleID]; list != nil {
			c.processList(CacheTrait, list, d.Timestamp, d.Value, nil, &stats)
		}
	}
	return c.finishCheck(CacheTrait, stats)
}

// CheckOperation evaluates a finished operation against the control conditions
// of its resource and operation definition.
func (c *Cache) CheckOperation(result OperationResult) Stats {
	stats := newStats()
	c.mu.RLock()
	defer c.mu.RUnlock()

	key := operationKey{ResourceID: result.ResourceID, OperationDefinitionID: result.OperationDefinitionID}
	if list := c.stores.operation[key]; list != nil {
		c.processList(CacheOperation, list, result.Timestamp, result.Status, nil, &stats)
	}
	return c.finishCheck(CacheOperation, stats)
}

// CheckAvailability evaluates availability changes against each resource's availability conditions.
func (c *Cache) CheckAvailability(changes ...AvailabilityChange) Stats {
	stats := newStats()
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := range changes {
		a := &changes[i]
		if list := c.stores.availability[a.ResourceID]; list != nil {
			c.processList(CacheAvailability, list, a.Timestamp, a.Type, nil, &stats)
		}
	}
	return c.finishCheck(CacheAvailability, stats)
}

// CheckEvents evaluates events from one source against the source resource's event conditions.
func (c *Cache) CheckEvents(source EventSource, events ...Event) Stats {
	stats := newStats()
	c.mu.RLock()
	defer c.mu.RUnlock()

	list := c.stores.event[source.ResourceID]
	if list != nil {
		for i := range events {
			ev := &events[i]
			c.processList(CacheEvent, list, ev.Timestamp, ev.Severity, []any{ev.Detail}, &stats)
		}
	}
	return c.finishCheck(CacheEvent, stats)
}

// CheckConfiguration evaluates a configuration snapshot against the resource's change conditions.
func (c *Cache) CheckConfiguration(update ConfigurationUpdate) Stats {
	stats := newStats()
	c.mu.RLock()
	defer c.mu.RUnlock()

	if list := c.stores.config[update.ResourceID]; list != nil {
		c.processList(CacheConfig, list, update.Timestamp, update.Properties, nil, &stats)
	}
	return c.finishCheck(CacheConfig, stats)
}

func (c *Cache) finishCheck(cache string, stats Stats) Stats {
	stats = stats.finish()
	c.observer.ObserveCheck(cache, stats.Age, stats)
	if stats.Matched > 0 || stats.Errors > 0 {
		c.log.Debug("conditions checked",
			logger.String("cache", cache),
			logger.Int("matched", stats.Matched),
			logger.Int("errors", stats.Errors),
			logger.Duration("elapsed", stats.Age))
	}
	return stats
}

// processList evaluates every element of list. A failing element is counted
// and logged; it never stops evaluation of its siblings.
func (c *Cache) processList(cache string, list *elementList, ts time.Time, value any, extra []any, stats *Stats) {
	for _, e := range list.elems {
		c.processElement(cache, e, ts, value, extra, stats)
	}
}

func (c *Cache) processElement(cache string, e element, ts time.Time, value any, extra []any, stats *Stats) {
	defer func() {
		if r := recover(); r != nil {
			stats.Errors++
			c.log.Error("panic while processing cache element",
				logger.String("cache", cache),
				logger.Uint64("condition_id", uint64(e.ConditionID())),
				logger.String("panic", fmt.Sprint(r)))
		}
	}()

	matched, err := e.Process(value, extra...)
	if errors.Is(err, errUnusableValue) {
		c.log.Debug("skipped cache element",
			logger.String("cache", cache),
			logger.Uint64("condition_id", uint64(e.ConditionID())),
			logger.Error(err))
		return
	}
	if err != nil {
		stats.Errors++
		c.log.Error("failed to process cache element",
			logger.String("cache", cache),
			logger.Uint64("condition_id", uint64(e.ConditionID())),
			logger.String("operator", e.Operator().String()),
			logger.Error(err))
		return
	}

	if matched {
		// active is set before dispatch so a failed dispatch cannot desync the cache
		e.activate()
		stats.Matched++
		c.observer.ObserveSignal(cache, SignalActivate)
		if err := c.sink.Activate(e.ConditionID(), ts, value, extra...); err != nil {
			stats.Errors++
			c.log.Error("failed to send activation",
				logger.Uint64("condition_id", uint64(e.ConditionID())),
				logger.Error(err))
		}
		return
	}

	if e.Operator().Type() == Stateful && e.deactivate() {
		c.observer.ObserveSignal(cache, SignalDeactivate)
		if err := c.sink.Deactivate(e.ConditionID(), ts); err != nil {
			stats.Errors++
			c.log.Error("failed to send deactivation",
				logger.Uint64("condition_id", uint64(e.ConditionID())),
				logger.Error(err))
		}
	}
}
