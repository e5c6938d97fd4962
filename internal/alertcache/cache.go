package alertcache

import (
	"sync"

	"github.com/fleetwatch/fleetwatch/internal/datastore/repository"
	"github.com/fleetwatch/fleetwatch/internal/logger"
)

const defaultPageSize = 500

// Cache is the in-memory alert condition cache. One instance serves a process.
//
// A single read/write lock guards every store and the inverse index.
// Evaluation takes the read side; load, unload, reload, clear and the
// structural update calls take the write side, so a reload of one agent
// pauses evaluation for all agents until it completes.
type Cache struct {
	mu      sync.RWMutex
	stores  *stores
	inverse *inverseIndex

	source   repository.ConditionSource
	lookup   repository.CurrentValueLookup
	sink     Sink
	observer Observer
	pageSize int
	log      logger.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithPageSize sets the number of condition rows fetched per query.
func WithPageSize(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithObserver installs an instrumentation observer.
func WithObserver(o Observer) Option {
	return func(c *Cache) {
		if o != nil {
			c.observer = o
		}
	}
}

// New creates an empty cache. Call LoadCaches or ReloadCachesForAgent to populate it.
func New(source repository.ConditionSource, lookup repository.CurrentValueLookup, sink Sink, log logger.Logger, opts ...Option) *Cache {
	c := &Cache{
		stores:   newStores(),
		inverse:  newInverseIndex(),
		source:   source,
		lookup:   lookup,
		sink:     sink,
		observer: nopObserver{},
		pageSize: defaultPageSize,
		log:      log.Module("alertcache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close drops every cached element. The cache stays usable and can be reloaded.
func (c *Cache) Close() {
	c.ClearCaches()
	c.log.Info("alert condition cache closed")
}

// ClearCaches resets every store and the inverse index without reloading.
func (c *Cache) ClearCaches() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

func (c *Cache) clearLocked() {
	c.stores = newStores()
	c.inverse = newInverseIndex()
	c.observer.ObserveCounts(c.countsLocked())
}
