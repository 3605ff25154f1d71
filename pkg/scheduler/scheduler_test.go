package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/steadystate/havoc/pkg/runregistry"
	"github.com/steadystate/havoc/pkg/types"
)

type countingExecutor struct {
	mu    sync.Mutex
	runs  map[string]int
	block chan struct{}
}

func newCountingExecutor() *countingExecutor {
	return &countingExecutor{runs: make(map[string]int)}
}

func (c *countingExecutor) Execute(ctx context.Context, definition *types.ExperimentDefinition) *types.ExperimentExecution {
	c.mu.Lock()
	c.runs[definition.ID]++
	block := c.block
	c.mu.Unlock()
	if block != nil {
		<-block
	}
	return &types.ExperimentExecution{
		RunID:        "run-" + definition.ID,
		DefinitionID: definition.ID,
		Definition:   definition,
		Status:       types.StatusCompleted,
	}
}

func (c *countingExecutor) count(definitionID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs[definitionID]
}

func newTestScheduler(executor Executor) *Scheduler {
	return New(executor, runregistry.New(), WithWorkers(2))
}

// tickAndSettle runs one schedule evaluation and waits for the fired
// runs to finish.
func tickAndSettle(s *Scheduler, now time.Time) {
	s.tick(context.Background(), now)
	s.wg.Wait()
}

func TestScheduleRejectsUnknownType(t *testing.T) {
	s := newTestScheduler(newCountingExecutor())
	err := s.Schedule(&types.ExperimentDefinition{
		ID:       "bad",
		Schedule: types.ScheduleSpec{Type: "hourly"},
	})
	if err == nil {
		t.Fatal("expected a validation error for an unknown schedule type")
	}
}

func TestOneTimeFiresExactlyOnce(t *testing.T) {
	executor := newCountingExecutor()
	s := newTestScheduler(executor)

	fireAt := time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC)
	if err := s.Schedule(&types.ExperimentDefinition{
		ID:       "one-shot",
		Schedule: types.ScheduleSpec{Type: types.ScheduleOneTime, FireAt: fireAt},
	}); err != nil {
		t.Fatal(err)
	}

	// before the fire time nothing happens
	tickAndSettle(s, fireAt.Add(-time.Minute))
	if got := executor.count("one-shot"); got != 0 {
		t.Fatalf("fired before FireAt, runs=%v", got)
	}

	tickAndSettle(s, fireAt.Add(time.Second))
	if got := executor.count("one-shot"); got != 1 {
		t.Fatalf("expected exactly one run, got %v", got)
	}

	// later ticks must never fire it again
	for i := 1; i <= 3; i++ {
		tickAndSettle(s, fireAt.Add(time.Duration(i)*time.Hour))
	}
	if got := executor.count("one-shot"); got != 1 {
		t.Fatalf("one-time schedule fired again, runs=%v", got)
	}
}

func TestOneTimeExpiresOutsideTolerance(t *testing.T) {
	executor := newCountingExecutor()
	s := newTestScheduler(executor)

	fireAt := time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC)
	if err := s.Schedule(&types.ExperimentDefinition{
		ID: "missed",
		Schedule: types.ScheduleSpec{
			Type:      types.ScheduleOneTime,
			FireAt:    fireAt,
			Tolerance: 5 * time.Minute,
		},
	}); err != nil {
		t.Fatal(err)
	}

	// the first tick after the window must expire it, not fire it
	tickAndSettle(s, fireAt.Add(time.Hour))
	if got := executor.count("missed"); got != 0 {
		t.Fatalf("expired schedule fired, runs=%v", got)
	}
	tickAndSettle(s, fireAt.Add(2*time.Hour))
	if got := executor.count("missed"); got != 0 {
		t.Fatalf("expired schedule fired later, runs=%v", got)
	}
}

func TestRecurringHonoursInterval(t *testing.T) {
	executor := newCountingExecutor()
	s := newTestScheduler(executor)

	if err := s.Schedule(&types.ExperimentDefinition{
		ID: "hourly",
		Schedule: types.ScheduleSpec{
			Type:     types.ScheduleRecurring,
			Interval: time.Hour,
		},
	}); err != nil {
		t.Fatal(err)
	}

	start := time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)
	tickAndSettle(s, start)
	if got := executor.count("hourly"); got != 1 {
		t.Fatalf("expected the first tick to fire, runs=%v", got)
	}

	// ticks inside the interval must not fire
	tickAndSettle(s, start.Add(10*time.Minute))
	tickAndSettle(s, start.Add(59*time.Minute))
	if got := executor.count("hourly"); got != 1 {
		t.Fatalf("fired inside the interval, runs=%v", got)
	}

	tickAndSettle(s, start.Add(61*time.Minute))
	if got := executor.count("hourly"); got != 2 {
		t.Fatalf("expected a second run after the interval, runs=%v", got)
	}
}

func TestRecurringDayAndWindowGates(t *testing.T) {
	executor := newCountingExecutor()
	s := newTestScheduler(executor)

	if err := s.Schedule(&types.ExperimentDefinition{
		ID: "tuesday-chaos",
		Schedule: types.ScheduleSpec{
			Type:       types.ScheduleRecurring,
			DaysOfWeek: []time.Weekday{time.Tuesday},
			TimeOfDay:  "14:00",
			Tolerance:  15 * time.Minute,
		},
	}); err != nil {
		t.Fatal(err)
	}

	tuesday := time.Date(2026, time.March, 3, 14, 5, 0, 0, time.UTC) // a Tuesday
	wednesday := tuesday.Add(24 * time.Hour)

	tickAndSettle(s, tuesday.Add(-2*time.Hour)) // right day, outside window
	tickAndSettle(s, wednesday)                 // wrong day, right time
	if got := executor.count("tuesday-chaos"); got != 0 {
		t.Fatalf("fired outside its day/window gates, runs=%v", got)
	}

	tickAndSettle(s, tuesday)
	if got := executor.count("tuesday-chaos"); got != 1 {
		t.Fatalf("expected a run inside the window, runs=%v", got)
	}
}

// A tick cadence much shorter than the window tolerance must not refire
// within the same window, the min-interval gate is what keeps at most
// one run per day.
func TestRecurringMinIntervalOneRunPerWindow(t *testing.T) {
	executor := newCountingExecutor()
	s := newTestScheduler(executor)

	if err := s.Schedule(&types.ExperimentDefinition{
		ID: "daily",
		Schedule: types.ScheduleSpec{
			Type:        types.ScheduleRecurring,
			TimeOfDay:   "03:00",
			Tolerance:   30 * time.Minute,
			MinInterval: 24 * time.Hour,
		},
	}); err != nil {
		t.Fatal(err)
	}

	day := time.Date(2026, time.March, 3, 3, 0, 0, 0, time.UTC)
	for offset := -30 * time.Minute; offset <= 30*time.Minute; offset += time.Minute {
		tickAndSettle(s, day.Add(offset))
	}
	if got := executor.count("daily"); got != 1 {
		t.Fatalf("expected one run for the whole window, got %v", got)
	}

	// the next day's window fires again
	tickAndSettle(s, day.Add(24*time.Hour))
	if got := executor.count("daily"); got != 2 {
		t.Fatalf("expected the next day's run, got %v", got)
	}
}

// Re-registering a definition, say after a catalog reload, must not let
// it dodge its minimum interval, the last-run time is seeded from the
// run registry.
func TestScheduleSeedsLastRunFromRegistry(t *testing.T) {
	executor := newCountingExecutor()
	runs := runregistry.New()
	s := New(executor, runs, WithWorkers(2))

	window := time.Date(2026, time.March, 3, 3, 0, 0, 0, time.UTC)
	runs.RecordRun("daily", window.Add(-2*time.Hour))

	definition := &types.ExperimentDefinition{
		ID: "daily",
		Schedule: types.ScheduleSpec{
			Type:        types.ScheduleRecurring,
			TimeOfDay:   "03:00",
			Tolerance:   30 * time.Minute,
			MinInterval: 24 * time.Hour,
		},
	}
	if err := s.Schedule(definition); err != nil {
		t.Fatal(err)
	}

	// a run 2h ago is inside the 24h minimum, the window must stay quiet
	tickAndSettle(s, window)
	if got := executor.count("daily"); got != 0 {
		t.Fatalf("fired inside the seeded minimum interval, runs=%v", got)
	}

	// with the last run a day out, the same registration fires
	runs.RecordRun("daily", window.Add(-25*time.Hour))
	if err := s.Schedule(definition); err != nil {
		t.Fatal(err)
	}
	tickAndSettle(s, window)
	if got := executor.count("daily"); got != 1 {
		t.Fatalf("expected the window to fire after the interval lapsed, runs=%v", got)
	}
}

func TestCancelRemovesSchedule(t *testing.T) {
	executor := newCountingExecutor()
	s := newTestScheduler(executor)

	if err := s.Schedule(&types.ExperimentDefinition{
		ID:       "doomed",
		Schedule: types.ScheduleSpec{Type: types.ScheduleRecurring, Interval: time.Minute},
	}); err != nil {
		t.Fatal(err)
	}
	s.Cancel("doomed")

	tickAndSettle(s, time.Now())
	if got := executor.count("doomed"); got != 0 {
		t.Fatalf("cancelled schedule fired, runs=%v", got)
	}
	if got := len(s.Scheduled()); got != 0 {
		t.Fatalf("expected an empty schedule, got %v entries", got)
	}
}

func TestInFlightRunIsNotRetriggered(t *testing.T) {
	executor := newCountingExecutor()
	executor.block = make(chan struct{})
	s := newTestScheduler(executor)

	if err := s.Schedule(&types.ExperimentDefinition{
		ID:       "slow",
		Schedule: types.ScheduleSpec{Type: types.ScheduleRecurring, Interval: time.Nanosecond},
	}); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	s.tick(context.Background(), start)
	s.tick(context.Background(), start.Add(time.Minute))
	s.tick(context.Background(), start.Add(2*time.Minute))
	close(executor.block)
	s.wg.Wait()

	if got := executor.count("slow"); got != 1 {
		t.Fatalf("in-flight run was retriggered, runs=%v", got)
	}
}

func TestTriggerNowBypassesTimeGates(t *testing.T) {
	executor := newCountingExecutor()
	s := newTestScheduler(executor)

	if err := s.Schedule(&types.ExperimentDefinition{
		ID: "future",
		Schedule: types.ScheduleSpec{
			Type:   types.ScheduleOneTime,
			FireAt: time.Now().Add(24 * time.Hour),
		},
	}); err != nil {
		t.Fatal(err)
	}

	execution, err := s.TriggerNow(context.Background(), "future")
	if err != nil {
		t.Fatal(err)
	}
	if execution.Status != types.StatusCompleted {
		t.Fatalf("unexpected status %v", execution.Status)
	}
	if _, err := s.TriggerNow(context.Background(), "unknown"); err == nil {
		t.Error("expected an error for an unknown definition id")
	}
}
