package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/steadystate/havoc/pkg/cerrors"
	"github.com/steadystate/havoc/pkg/log"
	"github.com/steadystate/havoc/pkg/runregistry"
	"github.com/steadystate/havoc/pkg/types"
)

const (
	defaultTickInterval = 30 * time.Second
	defaultWorkers      = 4
)

// Executor runs one experiment to a terminal state. Satisfied by the
// coordinator.
type Executor interface {
	Execute(ctx context.Context, definition *types.ExperimentDefinition) *types.ExperimentExecution
}

// Scheduler decides WHEN experiments fire. It only gates on time, a
// fired experiment still has to pass the safety pre-check before
// anything is disrupted. Not firing because the schedule says so is a
// schedule skip and leaves no run record, a safety refusal is recorded
// as a SKIPPED run by the executor.
type Scheduler struct {
	executor Executor
	runs     *runregistry.Registry

	tickInterval time.Duration
	now          func() time.Time
	sem          chan struct{}
	wg           sync.WaitGroup

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	definition *types.ExperimentDefinition
	fired      bool
	lastFired  time.Time
	inFlight   bool
}

// Option tweaks scheduler behaviour.
type Option func(*Scheduler)

// WithTickInterval overrides the schedule evaluation cadence.
func WithTickInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.tickInterval = interval
		}
	}
}

// WithWorkers bounds how many experiments may run concurrently.
func WithWorkers(workers int) Option {
	return func(s *Scheduler) {
		if workers > 0 {
			s.sem = make(chan struct{}, workers)
		}
	}
}

// WithClock injects the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

func New(executor Executor, runs *runregistry.Registry, opts ...Option) *Scheduler {
	s := &Scheduler{
		executor:     executor,
		runs:         runs,
		tickInterval: defaultTickInterval,
		now:          time.Now,
		sem:          make(chan struct{}, defaultWorkers),
		entries:      make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule registers a definition for time-based triggering. Scheduling
// the same id again replaces the previous definition and resets its
// one-time state, the last-fired bookkeeping survives via the run
// registry so a re-registered definition cannot dodge its minimum
// interval.
func (s *Scheduler) Schedule(definition *types.ExperimentDefinition) error {
	if !definition.Schedule.Type.Valid() {
		return cerrors.Error{
			ErrorCode: cerrors.ErrorTypeValidation,
			Target:    definition.ID,
			Reason:    "schedule type must be one-time or recurring",
		}
	}
	lastRun, _ := s.runs.LastRun(definition.ID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[definition.ID] = &entry{
		definition: definition,
		lastFired:  lastRun,
	}
	log.InfoWithValues("[Schedule]: Experiment scheduled", map[string]interface{}{
		"Experiment": definition.Name,
		"Type":       definition.Schedule.Type,
	})
	return nil
}

// Cancel removes a definition from the schedule. In-flight runs are not
// touched, force-cancel of a run goes through the coordinator.
func (s *Scheduler) Cancel(definitionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, definitionID)
}

// Scheduled lists the ids of every registered definition.
func (s *Scheduler) Scheduled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	return ids
}

// Run evaluates the schedule until ctx is cancelled, then waits for
// in-flight runs to reach a terminal state.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return
		case <-ticker.C:
			s.tick(ctx, s.now())
		}
	}
}

// tick fires every definition whose schedule is due at the given
// instant.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	var due []*entry
	for _, e := range s.entries {
		if s.eligible(e, now) {
			due = append(due, e)
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		s.fire(ctx, e, now)
	}
}

// eligible applies the schedule gates in order, called with the lock
// held.
func (s *Scheduler) eligible(e *entry, now time.Time) bool {
	if e.inFlight {
		return false
	}
	spec := e.definition.Schedule

	switch spec.Type {
	case types.ScheduleOneTime:
		if e.fired || now.Before(spec.FireAt) {
			return false
		}
		// a one-time schedule missed by more than its tolerance has
		// expired, it must not fire at some surprising later moment
		if spec.Tolerance > 0 && now.Sub(spec.FireAt) > spec.Tolerance {
			e.fired = true
			log.Warnf("one-time schedule for '%s' missed its window by %v, expiring it", e.definition.ID, now.Sub(spec.FireAt)-spec.Tolerance)
			return false
		}
		return true

	case types.ScheduleRecurring:
		if !spec.DayEnabled(now) || !spec.WithinWindow(now) {
			return false
		}
		if spec.Interval > 0 && !e.lastFired.IsZero() && now.Sub(e.lastFired) < spec.Interval {
			return false
		}
		if spec.MinInterval > 0 && !e.lastFired.IsZero() && now.Sub(e.lastFired) < spec.MinInterval {
			return false
		}
		return true
	}
	return false
}

// fire hands the definition to a worker. When every worker is busy the
// definition stays unfired and is reconsidered on the next tick.
func (s *Scheduler) fire(ctx context.Context, e *entry, now time.Time) {
	select {
	case s.sem <- struct{}{}:
	default:
		log.Warnf("all workers busy, deferring '%s' to the next tick", e.definition.ID)
		return
	}

	s.mu.Lock()
	if e.inFlight {
		s.mu.Unlock()
		<-s.sem
		return
	}
	e.fired = true
	e.lastFired = now
	e.inFlight = true
	definition := e.definition
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer func() {
			<-s.sem
			s.mu.Lock()
			e.inFlight = false
			s.mu.Unlock()
			s.wg.Done()
		}()
		s.executor.Execute(ctx, definition)
	}()
}

// TriggerNow fires a scheduled definition immediately, bypassing the
// time gates but not the safety pre-check. Used by the admin surface.
func (s *Scheduler) TriggerNow(ctx context.Context, definitionID string) (*types.ExperimentExecution, error) {
	s.mu.Lock()
	e, ok := s.entries[definitionID]
	if !ok {
		s.mu.Unlock()
		return nil, cerrors.Error{ErrorCode: cerrors.ErrorTypeGeneric, Target: definitionID, Reason: "no scheduled experiment with this id"}
	}
	if e.inFlight {
		s.mu.Unlock()
		return nil, cerrors.Error{ErrorCode: cerrors.ErrorTypeConflict, Target: definitionID, Reason: "a run of this experiment is already in flight"}
	}
	e.fired = true
	e.lastFired = s.now()
	e.inFlight = true
	definition := e.definition
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		e.inFlight = false
		s.mu.Unlock()
	}()
	return s.executor.Execute(ctx, definition), nil
}
