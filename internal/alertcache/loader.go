package alertcache

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/datastore/entities"
	"github.com/fleetwatch/fleetwatch/internal/datastore/repository"
	"github.com/fleetwatch/fleetwatch/internal/errors"
	"github.com/fleetwatch/fleetwatch/internal/logger"
)

// LoadCachesForAgent loads every eligible condition on resources owned by agentID.
// Elements already loaded for the agent are not removed; use ReloadCachesForAgent
// to replace them.
func (c *Cache) LoadCachesForAgent(ctx context.Context, agentID uint) (Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadLocked(ctx, repository.ConditionScope{AgentID: agentID})
}

// UnloadCachesForAgent removes every element that was loaded for agentID.
func (c *Cache) UnloadCachesForAgent(agentID uint) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := newStats()
	c.unloadAgentLocked(agentID, &stats)
	c.observer.ObserveCounts(c.countsLocked())
	return stats.finish()
}

// ReloadCachesForAgent replaces the agent's elements with a fresh load. The write
// lock is held across unload and load so no evaluation sees a partial agent.
// The load runs to completion even if ctx is canceled; timeouts belong to the caller.
func (c *Cache) ReloadCachesForAgent(ctx context.Context, agentID uint) (Stats, error) {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := newStats()
	c.unloadAgentLocked(agentID, &stats)
	loaded, err := c.loadLocked(ctx, repository.ConditionScope{AgentID: agentID})
	stats.Add(loaded)

	c.observer.ObserveReload(time.Since(start), err)
	c.log.Info("reloaded alert condition caches for agent",
		logger.Uint64("agent_id", uint64(agentID)),
		logger.Int("created", stats.Created),
		logger.Int("deleted", stats.Deleted),
		logger.Int("errors", stats.Errors),
		logger.Duration("elapsed", time.Since(start)))
	return stats.finish(), err
}

// LoadCaches clears the cache and loads the conditions of every agent.
func (c *Cache) LoadCaches(ctx context.Context) (Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
	stats, err := c.loadLocked(ctx, repository.ConditionScope{})
	c.log.Info("loaded alert condition caches",
		logger.Int("created", stats.Created),
		logger.Int("errors", stats.Errors),
		logger.Duration("elapsed", stats.Age))
	return stats, err
}

// loadLocked pages through every category in scope. A query failure stops the
// load; whatever was inserted before it stays cached and consistent.
func (c *Cache) loadLocked(ctx context.Context, scope repository.ConditionScope) (Stats, error) {
	ctx = context.WithoutCancel(ctx)
	stats := newStats()

	for _, category := range entities.AllCategories {
		catStats := newStats()
		cursor := repository.NewConditionCursor(c.source, category, scope, c.pageSize)
		for {
			page, err := cursor.Next(ctx)
			if err != nil {
				stats.Add(catStats)
				stats.Errors++
				c.observer.ObserveCounts(c.countsLocked())
				return stats.finish(), errors.New(fmt.Errorf("failed to load %s conditions: %w", category, err)).
					Component("alertcache").
					Category(errors.CategoryDatabase).
					Context("agent_id", scope.AgentID).
					Context("definition_id", scope.DefinitionID).
					Context("rows_processed", cursor.Processed()).
					Build()
			}
			if page == nil {
				break
			}
			for i := range page {
				c.insertLocked(ctx, &page[i], &catStats)
			}
		}
		c.observer.ObserveLoad(category, catStats.finish())
		stats.Add(catStats)
	}

	c.observer.ObserveCounts(c.countsLocked())
	return stats.finish(), nil
}

// insertLocked builds and stores one condition. Construction failures skip the condition.
func (c *Cache) insertLocked(ctx context.Context, row *repository.ConditionComposite, stats *Stats) {
	e, places, err := c.construct(ctx, row)
	if err != nil {
		stats.Errors++
		c.log.Warn("skipping alert condition",
			logger.Uint64("condition_id", uint64(row.ConditionID)),
			logger.String("category", string(row.Category)),
			logger.String("comparator", row.Comparator),
			logger.String("option", row.Option),
			logger.Any("threshold", row.Threshold),
			logger.Error(err))
		return
	}
	for _, p := range places {
		list, err := c.stores.add(p, e)
		if err != nil {
			stats.Errors++
			c.log.Error("failed to insert cache element",
				logger.Uint64("condition_id", uint64(row.ConditionID)),
				logger.String("cache", p.store),
				logger.Error(err))
			continue
		}
		c.inverse.record(e, list)
		stats.Created++
	}
}

// unloadAgentLocked removes all conditions listed for the agent. The agent's
// id list is dropped only after every condition has been handled.
func (c *Cache) unloadAgentLocked(agentID uint, stats *Stats) {
	ids, ok := c.inverse.byAgent[agentID]
	if !ok {
		return
	}
	for _, id := range ids {
		c.removeConditionLocked(id, stats)
	}
	delete(c.inverse.byAgent, agentID)
}

// removeConditionLocked removes every element of one condition. An id with no
// recorded locations is a stale entry and is ignored.
func (c *Cache) removeConditionLocked(conditionID uint, stats *Stats) {
	locs, ok := c.inverse.byCondition[conditionID]
	if !ok {
		return
	}
	var definitionID uint
	for _, loc := range locs {
		definitionID = loc.elem.owner().definitionID
		if loc.list.remove(loc.elem) {
			stats.Deleted++
			continue
		}
		stats.Errors++
		c.log.Warn("cached element missing from its list",
			logger.Uint64("condition_id", uint64(conditionID)),
			logger.String("cache", loc.list.store))
	}
	delete(c.inverse.byCondition, conditionID)

	if ids, ok := c.inverse.byDefinition[definitionID]; ok {
		ids = slices.DeleteFunc(ids, func(id uint) bool { return id == conditionID })
		if len(ids) == 0 {
			delete(c.inverse.byDefinition, definitionID)
		} else {
			c.inverse.byDefinition[definitionID] = ids
		}
	}
}

// UpdateConditions applies a structural change of one alert definition.
func (c *Cache) UpdateConditions(ctx context.Context, definitionID uint, event DefinitionEvent) (Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := newStats()
	switch event {
	case DefinitionCreated, DefinitionEnabled, DefinitionUpdated:
		c.removeDefinitionLocked(definitionID, &stats)
		loaded, err := c.loadLocked(ctx, repository.ConditionScope{DefinitionID: definitionID})
		stats.Add(loaded)
		if err != nil {
			return stats.finish(), err
		}
	case DefinitionDisabled, DefinitionDeleted:
		c.removeDefinitionLocked(definitionID, &stats)
		c.observer.ObserveCounts(c.countsLocked())
	default:
		return stats.finish(), fmt.Errorf("%w: %q", ErrUnknownDefinitionEvent, event)
	}

	c.log.Debug("alert definition applied to cache",
		logger.Uint64("definition_id", uint64(definitionID)),
		logger.String("event", string(event)),
		logger.Int("created", stats.Created),
		logger.Int("deleted", stats.Deleted))
	return stats.finish(), nil
}

func (c *Cache) removeDefinitionLocked(definitionID uint, stats *Stats) {
	ids := slices.Clone(c.inverse.byDefinition[definitionID])
	for _, id := range ids {
		c.removeConditionLocked(id, stats)
	}
	delete(c.inverse.byDefinition, definitionID)
}

// UpdateBaselines recomputes the thresholds of baseline conditions bound to the
// given baselines. A baseline whose selected statistic is unusable leaves the
// element's threshold unchanged.
func (c *Cache) UpdateBaselines(updates ...BaselineUpdate) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := newStats()
	for _, u := range updates {
		list := c.stores.baseline[u.BaselineID]
		if list == nil {
			continue
		}
		for _, e := range list.elems {
			ne, ok := e.(*numericElement)
			if !ok {
				continue
			}
			value, err := baselineThreshold(ne.baselinePercent, ne.baselineOption, u.Min, u.Mean, u.Max)
			if err != nil {
				stats.Errors++
				c.log.Warn("baseline update left condition unchanged",
					logger.Uint64("condition_id", uint64(ne.ConditionID())),
					logger.Uint64("baseline_id", uint64(u.BaselineID)),
					logger.Error(err))
				continue
			}
			ne.setReference(value)
			stats.Updated++
		}
	}
	return stats.finish()
}
