package alertcache

import (
	"fmt"
	"slices"
)

// Cache names used for counts and printing.
const (
	CacheMeasurement  = "measurementDataCache"
	CacheTrait        = "measurementTraitCache"
	CacheOperation    = "resourceOperationCache"
	CacheAvailability = "availabilityCache"
	CacheEvent        = "eventsCache"
	CacheConfig       = "resourceConfigCache"
	CacheBaseline     = "measurementBaselineCache"
	CacheInverse      = "inverseConditionCache"
	CacheAgent        = "agentConditionCache"
)

// storeNames lists the category stores in display order.
var storeNames = []string{
	CacheMeasurement,
	CacheTrait,
	CacheOperation,
	CacheAvailability,
	CacheEvent,
	CacheConfig,
	CacheBaseline,
}

// operationKey addresses the operation store.
type operationKey struct {
	ResourceID            uint
	OperationDefinitionID uint
}

func (k operationKey) String() string {
	return fmt.Sprintf("%d/%d", k.ResourceID, k.OperationDefinitionID)
}

// elementList is the list of elements registered under one key of one store.
// Lists are compared by identity.
type elementList struct {
	store string
	key   any
	elems []element
	// release unmaps the list from its store once it is empty
	release func()
}

// remove deletes elem by identity and reports whether it was present.
func (l *elementList) remove(elem element) bool {
	i := slices.IndexFunc(l.elems, func(e element) bool { return e == elem })
	if i < 0 {
		return false
	}
	l.elems = slices.Delete(l.elems, i, i+1)
	if len(l.elems) == 0 && l.release != nil {
		l.release()
	}
	return true
}

func (l *elementList) contains(elem element) bool {
	return slices.ContainsFunc(l.elems, func(e element) bool { return e == elem })
}

// placement names the store and key an element is inserted under.
type placement struct {
	store string
	key   any
}

// stores holds the seven category stores.
type stores struct {
	measurement  map[uint]*elementList
	trait        map[uint]*elementList
	operation    map[operationKey]*elementList
	availability map[uint]*elementList
	event        map[uint]*elementList
	config       map[uint]*elementList
	baseline     map[uint]*elementList
}

func newStores() *stores {
	return &stores{
		measurement:  make(map[uint]*elementList),
		trait:        make(map[uint]*elementList),
		operation:    make(map[operationKey]*elementList),
		availability: make(map[uint]*elementList),
		event:        make(map[uint]*elementList),
		config:       make(map[uint]*elementList),
		baseline:     make(map[uint]*elementList),
	}
}

func addTo[K comparable](m map[K]*elementList, store string, key K, e element) *elementList {
	list, ok := m[key]
	if !ok {
		list = &elementList{store: store, key: key}
		list.release = func() {
			if m[key] == list {
				delete(m, key)
			}
		}
		m[key] = list
	}
	list.elems = append(list.elems, e)
	return list
}

// add inserts e at p and returns the list it now lives in.
func (s *stores) add(p placement, e element) (*elementList, error) {
	switch p.store {
	case CacheOperation:
		key, ok := p.key.(operationKey)
		if !ok {
			return nil, fmt.Errorf("%s key must be operationKey, got %T", p.store, p.key)
		}
		return addTo(s.operation, p.store, key, e), nil
	default:
		m, err := s.uintStore(p.store)
		if err != nil {
			return nil, err
		}
		key, ok := p.key.(uint)
		if !ok {
			return nil, fmt.Errorf("%s key must be uint, got %T", p.store, p.key)
		}
		return addTo(m, p.store, key, e), nil
	}
}

func (s *stores) uintStore(name string) (map[uint]*elementList, error) {
	switch name {
	case CacheMeasurement:
		return s.measurement, nil
	case CacheTrait:
		return s.trait, nil
	case CacheAvailability:
		return s.availability, nil
	case CacheEvent:
		return s.event, nil
	case CacheConfig:
		return s.config, nil
	case CacheBaseline:
		return s.baseline, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCache, name)
	}
}

// lookup returns the list currently mapped at store/key.
func (s *stores) lookup(store string, key any) *elementList {
	if store == CacheOperation {
		k, ok := key.(operationKey)
		if !ok {
			return nil
		}
		return s.operation[k]
	}
	m, err := s.uintStore(store)
	if err != nil {
		return nil
	}
	k, ok := key.(uint)
	if !ok {
		return nil
	}
	return m[k]
}

// each visits every list of the named store.
func (s *stores) each(name string, fn func(key any, list *elementList)) error {
	if name == CacheOperation {
		for k, l := range s.operation {
			fn(k, l)
		}
		return nil
	}
	m, err := s.uintStore(name)
	if err != nil {
		return err
	}
	for k, l := range m {
		fn(k, l)
	}
	return nil
}

// count returns the number of elements in the named store.
func (s *stores) count(name string) int {
	n := 0
	_ = s.each(name, func(_ any, l *elementList) { n += len(l.elems) })
	return n
}

// location is one place an element lives.
type location struct {
	elem element
	list *elementList
}

// inverseIndex maps conditions, agents and definitions back to cached elements.
// byAgent and byDefinition may hold ids whose elements were already removed;
// removing such an id again is a no-op.
type inverseIndex struct {
	byCondition  map[uint][]location
	byAgent      map[uint][]uint
	byDefinition map[uint][]uint
}

func newInverseIndex() *inverseIndex {
	return &inverseIndex{
		byCondition:  make(map[uint][]location),
		byAgent:      make(map[uint][]uint),
		byDefinition: make(map[uint][]uint),
	}
}

// record registers a new location and lists the condition under the element's
// agent and definition unless they already list it.
func (ix *inverseIndex) record(e element, list *elementList) {
	own := e.owner()
	id := own.conditionID
	if !slices.Contains(ix.byAgent[own.agentID], id) {
		ix.byAgent[own.agentID] = append(ix.byAgent[own.agentID], id)
	}
	if !slices.Contains(ix.byDefinition[own.definitionID], id) {
		ix.byDefinition[own.definitionID] = append(ix.byDefinition[own.definitionID], id)
	}
	ix.byCondition[id] = append(ix.byCondition[id], location{elem: e, list: list})
}

// locations returns the total number of recorded locations.
func (ix *inverseIndex) locations() int {
	n := 0
	for _, locs := range ix.byCondition {
		n += len(locs)
	}
	return n
}
