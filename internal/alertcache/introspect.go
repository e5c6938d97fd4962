package alertcache

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/fleetwatch/fleetwatch/internal/logger"
)

// CacheNames returns the names accepted by PrintCache and reported by CacheCounts.
func CacheNames() []string {
	names := slices.Clone(storeNames)
	return append(names, CacheInverse, CacheAgent)
}

// CacheCounts returns the number of elements per store, the number of inverse
// locations and the number of agents with loaded conditions.
func (c *Cache) CacheCounts() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.countsLocked()
}

func (c *Cache) countsLocked() map[string]int {
	counts := make(map[string]int, len(storeNames)+2)
	for _, name := range storeNames {
		counts[name] = c.stores.count(name)
	}
	counts[CacheInverse] = c.inverse.locations()
	counts[CacheAgent] = len(c.inverse.byAgent)
	return counts
}

// PrintCache writes the contents of one cache to the debug log and returns the
// number of entries written.
func (c *Cache) PrintCache(name string) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.printLocked(name)
}

// PrintAllCaches writes every cache to the debug log.
func (c *Cache) PrintAllCaches() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total := 0
	for _, name := range CacheNames() {
		n, _ := c.printLocked(name)
		total += n
	}
	return total
}

func (c *Cache) printLocked(name string) (int, error) {
	log := c.log.With(logger.String("cache", name))
	switch name {
	case CacheInverse:
		for id, locs := range c.inverse.byCondition {
			for _, loc := range locs {
				log.Debug("inverse entry",
					logger.Uint64("condition_id", uint64(id)),
					logger.String("list", loc.list.store),
					logger.String("key", fmt.Sprint(loc.list.key)))
			}
		}
		return c.inverse.locations(), nil
	case CacheAgent:
		for agentID, ids := range c.inverse.byAgent {
			log.Debug("agent entry",
				logger.Uint64("agent_id", uint64(agentID)),
				logger.Any("condition_ids", ids))
		}
		return len(c.inverse.byAgent), nil
	}

	n := 0
	err := c.stores.each(name, func(key any, list *elementList) {
		for _, e := range list.elems {
			log.Debug("cache entry",
				logger.String("key", fmt.Sprint(key)),
				logger.String("element", fmt.Sprint(e)))
			n++
		}
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// ElementState describes one cached element of a condition.
type ElementState struct {
	Cache     string `json:"cache"`
	Key       string `json:"key"`
	Operator  string `json:"operator"`
	Type      string `json:"type"`
	Reference string `json:"reference"`
	Active    bool   `json:"active"`
}

// ConditionState returns the cached elements of a condition, or false when it is not cached.
func (c *Cache) ConditionState(conditionID uint) ([]ElementState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	locs, ok := c.inverse.byCondition[conditionID]
	if !ok {
		return nil, false
	}
	states := make([]ElementState, 0, len(locs))
	for _, loc := range locs {
		states = append(states, ElementState{
			Cache:     loc.list.store,
			Key:       fmt.Sprint(loc.list.key),
			Operator:  loc.elem.Operator().String(),
			Type:      loc.elem.Operator().Type().String(),
			Reference: loc.elem.Reference(),
			Active:    loc.elem.isActive(),
		})
	}
	slices.SortFunc(states, func(a, b ElementState) int { return cmp.Compare(a.Cache, b.Cache) })
	return states, true
}

// Validate checks that every stored element has exactly one matching inverse
// location and every inverse location points at a live list holding its element.
// It returns one message per violation.
func (c *Cache) Validate() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var problems []string
	for _, name := range storeNames {
		_ = c.stores.each(name, func(key any, list *elementList) {
			if len(list.elems) == 0 {
				problems = append(problems, fmt.Sprintf("%s[%v]: empty list still mapped", name, key))
			}
			for _, e := range list.elems {
				matches := 0
				for _, loc := range c.inverse.byCondition[e.ConditionID()] {
					if loc.elem == e && loc.list == list {
						matches++
					}
				}
				if matches != 1 {
					problems = append(problems, fmt.Sprintf("%s[%v]: condition %d has %d inverse entries",
						name, key, e.ConditionID(), matches))
				}
			}
		})
	}

	for id, locs := range c.inverse.byCondition {
		for _, loc := range locs {
			if c.stores.lookup(loc.list.store, loc.list.key) != loc.list {
				problems = append(problems, fmt.Sprintf("condition %d: list %s[%v] is no longer mapped",
					id, loc.list.store, loc.list.key))
				continue
			}
			if !loc.list.contains(loc.elem) {
				problems = append(problems, fmt.Sprintf("condition %d: element missing from %s[%v]",
					id, loc.list.store, loc.list.key))
			}
		}
		var agents []uint
		for _, loc := range locs {
			agentID := loc.elem.owner().agentID
			if slices.Contains(agents, agentID) {
				continue
			}
			agents = append(agents, agentID)
			if !slices.Contains(c.inverse.byAgent[agentID], id) {
				problems = append(problems, fmt.Sprintf("condition %d: not listed under agent %d", id, agentID))
			}
		}
	}
	slices.Sort(problems)
	return problems
}
