// Package runs owns pipeline run lifecycles: the concurrent run table,
// the per-run progress broker, and the coordinator that drives a flow
// graph to a terminal status on its own goroutine.
package runs

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/esshva/quinn/internal/model"
)

// Registry is the concurrent run table. Memory is bounded: when the table
// grows past capacity, terminal runs are evicted least-recently-updated
// first. In-flight runs are never evicted, so the table can temporarily
// exceed capacity if everything in it is still running.
type Registry struct {
	capacity int

	mu   sync.RWMutex
	runs map[uuid.UUID]*model.Run
}

// NewRegistry creates a run table that retains up to capacity runs.
func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Registry{
		capacity: capacity,
		runs:     make(map[uuid.UUID]*model.Run),
	}
}

// Put inserts a run, evicting stale terminal runs if over capacity.
// Returns the ids of evicted runs so the caller can drop any retained
// progress state for them.
func (r *Registry) Put(run *model.Run) []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = run
	var evicted []uuid.UUID
	for len(r.runs) > r.capacity {
		id, ok := r.evictOldestTerminal()
		if !ok {
			break
		}
		evicted = append(evicted, id)
	}
	return evicted
}

// evictOldestTerminal removes the least-recently-updated terminal run.
// Caller holds the lock. Returns false when nothing is evictable.
func (r *Registry) evictOldestTerminal() (uuid.UUID, bool) {
	var victim uuid.UUID
	var oldest time.Time
	found := false
	for id, run := range r.runs {
		if !run.Status.Terminal() {
			continue
		}
		if !found || run.UpdatedAt.Before(oldest) {
			victim, oldest, found = id, run.UpdatedAt, true
		}
	}
	if found {
		delete(r.runs, victim)
	}
	return victim, found
}

// Get returns a snapshot copy of a run.
func (r *Registry) Get(id uuid.UUID) (model.Run, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return model.Run{}, false
	}
	return *run, true
}

// Update applies fn to a run under the lock and bumps UpdatedAt.
// Returns false if the run is not in the table.
func (r *Registry) Update(id uuid.UUID, fn func(*model.Run)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return false
	}
	fn(run)
	run.UpdatedAt = time.Now()
	return true
}

// Len reports the current table size.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs)
}
