// Package tracker implements the job tracking engine: header registration,
// job lifecycle, hierarchy resolution, log tailing and progress metrics.
package tracker

import (
	"time"

	"github.com/kiranshivaraju/jobtracker/internal/cache"
	"github.com/kiranshivaraju/jobtracker/internal/store"
)

// Tracker bundles the engine services over one store.
type Tracker struct {
	Registry  *Registry
	Lifecycle *Lifecycle
	Hierarchy *Hierarchy
	Logs      *LogService
	Progress  *ProgressService
	Catalog   *Catalog
}

type options struct {
	cache  cache.Cache
	ttl    time.Duration
	strict bool
	now    func() time.Time
}

type Option func(*options)

// WithCache enables Redis caching of headers and finished jobs.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(o *options) {
		o.cache = c
		o.ttl = ttl
	}
}

// WithStrictFinish serialises Finish against concurrent child starts.
func WithStrictFinish(strict bool) Option {
	return func(o *options) {
		o.strict = strict
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func New(st store.Store, opts ...Option) *Tracker {
	o := &options{
		ttl: 24 * time.Hour,
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}

	// Postgres keeps microseconds; hand out times exactly as they will read back.
	clock := o.now
	o.now = func() time.Time { return clock().Truncate(time.Microsecond) }

	sc := &snapshotCache{c: o.cache, ttl: o.ttl}
	registry := &Registry{store: st, cache: sc}
	hierarchy := &Hierarchy{store: st, cache: sc}
	return &Tracker{
		Registry:  registry,
		Lifecycle: &Lifecycle{store: st, cache: sc, strict: o.strict, now: o.now},
		Hierarchy: hierarchy,
		Logs:      &LogService{store: st, hierarchy: hierarchy, now: o.now},
		Progress:  &ProgressService{store: st, hierarchy: hierarchy, now: o.now},
		Catalog:   &Catalog{store: st, registry: registry, now: o.now},
	}
}
