package types

import (
	"testing"
	"time"
)

func TestBreachActionSeverityOrdering(t *testing.T) {
	if BreachHalt.Severity() <= BreachReduceBlast.Severity() {
		t.Error("halt must outrank reduce-blast-radius")
	}
	if BreachReduceBlast.Severity() <= BreachAlertOnly.Severity() {
		t.Error("reduce-blast-radius must outrank alert-only")
	}
	if BreachAction("explode").Valid() {
		t.Error("unknown breach action must not be valid")
	}
}

func TestDayEnabled_EmptySetMatchesEveryDay(t *testing.T) {
	spec := ScheduleSpec{Type: ScheduleRecurring}
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC) // a Monday
	if !spec.DayEnabled(now) {
		t.Error("empty day set should match every day")
	}
}

func TestDayEnabled_RespectsConfiguredDays(t *testing.T) {
	spec := ScheduleSpec{DaysOfWeek: []time.Weekday{time.Saturday, time.Sunday}}
	monday := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	sunday := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	if spec.DayEnabled(monday) {
		t.Error("monday should not be enabled for a weekend-only schedule")
	}
	if !spec.DayEnabled(sunday) {
		t.Error("sunday should be enabled for a weekend-only schedule")
	}
}

func TestWithinWindow(t *testing.T) {
	spec := ScheduleSpec{TimeOfDay: "14:30", Tolerance: 15 * time.Minute}
	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"exact", time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC), true},
		{"lower edge", time.Date(2025, 6, 2, 14, 15, 0, 0, time.UTC), true},
		{"upper edge", time.Date(2025, 6, 2, 14, 45, 0, 0, time.UTC), true},
		{"before window", time.Date(2025, 6, 2, 14, 14, 0, 0, time.UTC), false},
		{"after window", time.Date(2025, 6, 2, 14, 46, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		if got := spec.WithinWindow(tt.now); got != tt.want {
			t.Errorf("%s: WithinWindow(%v) = %v, want %v", tt.name, tt.now, got, tt.want)
		}
	}
}

func TestWithinWindow_UnsetAlwaysMatches(t *testing.T) {
	spec := ScheduleSpec{}
	if !spec.WithinWindow(time.Now()) {
		t.Error("unset time-of-day should always match")
	}
}

func TestExecutionStatusTerminal(t *testing.T) {
	terminal := []ExecutionStatus{StatusHalted, StatusCompleted, StatusFailed, StatusSkipped}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []ExecutionStatus{StatusPending, StatusSafetyCheck, StatusRunning} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
