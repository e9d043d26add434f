package portal

import (
	"context"
	"log"
	"sync"
	"time"

	"schoolbridge/portal/internal/kv"
	"schoolbridge/portal/internal/metrics"
)

type entry struct {
	portal   *Portal
	lastUsed time.Time
}

// Registry keeps one Portal per installation, each on its own namespace of
// the shared store.
type Registry struct {
	mu      sync.Mutex
	store   kv.Store
	deps    Deps
	portals map[string]*entry
	now     func() time.Time
}

func NewRegistry(store kv.Store, deps Deps) *Registry {
	return &Registry{
		store:   store,
		deps:    deps,
		portals: make(map[string]*entry),
		now:     time.Now,
	}
}

// With runs fn on the installation's portal while holding its lock. The
// portal is built and started on first use.
func (r *Registry) With(ctx context.Context, installationID string, fn func(*Portal) error) error {
	r.mu.Lock()
	e, ok := r.portals[installationID]
	if !ok {
		e = &entry{portal: New(kv.Namespace(r.store, "installation:"+installationID), r.deps)}
		r.portals[installationID] = e
		metrics.ActiveInstallations.Set(float64(len(r.portals)))
	}
	e.lastUsed = r.now()
	p := e.portal
	r.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		p.Start(ctx)
	}
	return fn(p)
}

// Evict drops portals idle for longer than idle. Portals in use are kept.
// State stays in the store; the next call rebuilds the portal from it.
func (r *Registry) Evict(idle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-idle)
	evicted := 0
	for id, e := range r.portals {
		if e.lastUsed.After(cutoff) {
			continue
		}
		if !e.portal.mu.TryLock() {
			continue
		}
		e.portal.mu.Unlock()
		delete(r.portals, id)
		evicted++
	}
	metrics.ActiveInstallations.Set(float64(len(r.portals)))
	if evicted > 0 {
		log.Printf("evicted %d idle installations", evicted)
	}
	return evicted
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.portals)
}
