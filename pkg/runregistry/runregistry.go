package runregistry

import (
	"sync"
	"time"
)

// Entry records one active run holding a target.
type Entry struct {
	Target       string
	Service      string
	DefinitionID string
	RunID        string
	AcquiredAt   time.Time
}

// Registry is the single source of truth for which targets are currently
// under chaos. Acquire/release is the only cross-run synchronisation
// point, guarded by one mutex so the check-and-set is atomic.
type Registry struct {
	mu      sync.Mutex
	active  map[string]Entry
	lastRun map[string]time.Time
}

func New() *Registry {
	return &Registry{
		active:  make(map[string]Entry),
		lastRun: make(map[string]time.Time),
	}
}

// TryAcquire claims the target for the given run. It fails when any run,
// including another run of the same definition, already holds the target.
func (r *Registry) TryAcquire(target, service, definitionID, runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, held := r.active[target]; held {
		return false
	}
	r.active[target] = Entry{
		Target:       target,
		Service:      service,
		DefinitionID: definitionID,
		RunID:        runID,
		AcquiredAt:   time.Now(),
	}
	return true
}

// ConflictForService returns the entry of any run currently holding a
// target of the given service. Used by the safety pre-check to refuse
// overlapping experiments.
func (r *Registry) ConflictForService(service string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.active {
		if entry.Service == service {
			return entry, true
		}
	}
	return Entry{}, false
}

// Release frees the target if it is held by the given run. Releasing a
// target held by a different run is a no-op.
func (r *Registry) Release(target, runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, held := r.active[target]
	if !held || entry.RunID != runID {
		return
	}
	delete(r.active, target)
	r.lastRun[entry.DefinitionID] = time.Now()
}

// Holder returns the entry currently holding the target, if any.
func (r *Registry) Holder(target string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, held := r.active[target]
	return entry, held
}

// ActiveRuns lists every held entry, for conflict checks and the admin
// surface.
func (r *Registry) ActiveRuns() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := make([]Entry, 0, len(r.active))
	for _, entry := range r.active {
		entries = append(entries, entry)
	}
	return entries
}

// LastRun returns when the definition last released a target. The
// scheduler uses it to enforce minimum re-run intervals.
func (r *Registry) LastRun(definitionID string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	last, ok := r.lastRun[definitionID]
	return last, ok
}

// RecordRun stamps the definition's last-run time. The coordinator
// calls it on every terminal state, including runs that never acquired
// a target.
func (r *Registry) RecordRun(definitionID string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastRun[definitionID] = at
}
