package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry tracks open map sessions.
type Registry struct {
	deps Deps

	mu   sync.RWMutex
	maps map[string]*Map
}

// NewRegistry creates an empty registry building sessions from deps.
func NewRegistry(deps Deps) *Registry {
	return &Registry{deps: deps, maps: make(map[string]*Map)}
}

// Create opens a session and applies p. The session is registered even when
// some layers fail to load; the returned error describes those failures.
func (r *Registry) Create(ctx context.Context, p Params) (*Map, error) {
	m := NewMap(uuid.NewString(), p.Controls, r.deps)

	r.mu.Lock()
	r.maps[m.ID] = m
	r.deps.Metrics.ActiveMaps.Set(float64(len(r.maps)))
	r.mu.Unlock()

	r.deps.Logger.Info("map created", "map_id", m.ID, "region", p.Region, "layers", p.Layers)
	return m, m.Init(ctx, p)
}

// Get returns an open session and marks it as accessed.
func (r *Registry) Get(id string) (*Map, bool) {
	r.mu.RLock()
	m, ok := r.maps[id]
	r.mu.RUnlock()
	if ok {
		m.Touch()
	}
	return m, ok
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.maps)
}

// Delete closes and forgets a session. It reports whether the session existed.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	m, ok := r.maps[id]
	delete(r.maps, id)
	r.deps.Metrics.ActiveMaps.Set(float64(len(r.maps)))
	r.mu.Unlock()

	if !ok {
		return false
	}
	m.Close()
	return true
}

// maxSweepInterval bounds how long an idle session can outlive its timeout.
const maxSweepInterval = time.Minute

// Sweep closes sessions not accessed within the idle timeout and returns how
// many it closed.
func (r *Registry) Sweep() int {
	idle := r.deps.Settings.SessionIdleTimeout
	if idle <= 0 {
		return 0
	}
	now := r.deps.Clock.Now()

	r.mu.RLock()
	var expired []string
	for id, m := range r.maps {
		if now.Sub(m.LastSeen()) >= idle {
			expired = append(expired, id)
		}
	}
	r.mu.RUnlock()

	closed := 0
	for _, id := range expired {
		if r.Delete(id) {
			r.deps.Metrics.SessionsExpired.Inc()
			r.deps.Logger.Info("idle map expired", "map_id", id, "idle_timeout", idle)
			closed++
		}
	}
	return closed
}

// RunSweeper expires idle sessions until ctx is cancelled. It returns
// immediately when expiry is disabled.
func (r *Registry) RunSweeper(ctx context.Context) {
	idle := r.deps.Settings.SessionIdleTimeout
	if idle <= 0 {
		return
	}
	ticker := r.deps.Clock.NewTicker(min(idle/2, maxSweepInterval))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			r.Sweep()
		}
	}
}

// Close closes every session.
func (r *Registry) Close() {
	r.mu.Lock()
	maps := r.maps
	r.maps = make(map[string]*Map)
	r.deps.Metrics.ActiveMaps.Set(0)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, m := range maps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Close()
		}()
	}
	wg.Wait()
}

// CheckReadiness reports whether sessions can be created.
func (r *Registry) CheckReadiness(_ context.Context) error {
	if r.deps.Catalog == nil {
		return errors.New("static catalog not loaded")
	}
	return nil
}
