// Package desk keeps one pair of form controllers per authenticated session.
package desk

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/frontdesk/internal/service/patient"
	"github.com/jwalitptl/frontdesk/internal/service/visit"
	"github.com/jwalitptl/frontdesk/pkg/metrics"
)

// Desk is the working state owned by one session.
type Desk struct {
	Patients *patient.Form
	Visits   *visit.Form
}

// Close stops the desk's timers.
func (d *Desk) Close() {
	if d.Visits != nil {
		d.Visits.Close()
	}
}

// Factory builds a fresh desk for a session.
type Factory func(sessionID string) *Desk

// Registry creates desks lazily and closes them when they go unused for ttl.
type Registry struct {
	mu      sync.Mutex
	cache   *cache.Cache
	build   Factory
	metrics *metrics.Metrics
}

func NewRegistry(ttl, cleanupInterval time.Duration, build Factory, m *metrics.Metrics) *Registry {
	r := &Registry{
		cache:   cache.New(ttl, cleanupInterval),
		build:   build,
		metrics: m,
	}
	r.cache.OnEvicted(func(_ string, v interface{}) {
		if d, ok := v.(*Desk); ok {
			d.Close()
		}
		r.metrics.SetDesks(r.cache.ItemCount())
	})
	return r
}

// Get returns the session's desk, creating it on first use. Every call
// pushes the expiry back.
func (r *Registry) Get(sessionID string) *Desk {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.cache.Get(sessionID); ok {
		d := v.(*Desk)
		r.cache.SetDefault(sessionID, d)
		return d
	}

	// An expired desk may still be stored; evict it so it gets closed.
	r.cache.DeleteExpired()
	d := r.build(sessionID)
	r.cache.SetDefault(sessionID, d)
	r.metrics.SetDesks(r.cache.ItemCount())
	return d
}

// Drop closes and forgets the session's desk.
func (r *Registry) Drop(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Delete(sessionID)
}

// Len counts stored desks, including expired ones not yet evicted.
func (r *Registry) Len() int {
	return r.cache.ItemCount()
}

// Close drops every desk.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.DeleteExpired()
	for id := range r.cache.Items() {
		r.cache.Delete(id)
	}
}
