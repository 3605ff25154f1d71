package types

import (
	"time"
)

const (
	// PreSafetyCheck initial stage, safety evaluation before any disruption is dispatched
	PreSafetyCheck string = "PreSafetyCheck"
	// ContinuousSafetyCheck stage covering the polling safety monitor during a run
	ContinuousSafetyCheck string = "ContinuousSafetyCheck"
	// ChaosInject this stage refer to the main disruption dispatch
	ChaosInject string = "ChaosInject"
	// Rollback stage covering cleanup and rollback after a halt or failure
	Rollback string = "Rollback"
	// Summary final stage, the run verdict is recorded
	Summary string = "Summary"
)

// ActionType tags the kind of disruption an experiment performs.
type ActionType string

const (
	InstanceTerminate ActionType = "instance-terminate"
	NetworkLatency    ActionType = "network-latency"
	ResourceExhaust   ActionType = "resource-exhaust"
	DependencyFailure ActionType = "dependency-failure"
	QueueDisruption   ActionType = "queue-disruption"
)

// BreachAction is what the engine does when a safety control trips.
type BreachAction string

const (
	BreachHalt        BreachAction = "halt"
	BreachReduceBlast BreachAction = "reduce-blast-radius"
	BreachAlertOnly   BreachAction = "alert-only"
)

// Severity orders breach actions, higher means more disruptive response.
// The continuous check returns the single most severe breach.
func (a BreachAction) Severity() int {
	switch a {
	case BreachHalt:
		return 3
	case BreachReduceBlast:
		return 2
	case BreachAlertOnly:
		return 1
	}
	return 0
}

// Valid reports whether the action is one of the three enumerated kinds.
func (a BreachAction) Valid() bool {
	return a.Severity() > 0
}

// Target identifies one unit of infrastructure an experiment can disrupt.
type Target struct {
	ID      string            `yaml:"id" json:"id"`
	Service string            `yaml:"service" json:"service"`
	Labels  map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
}

// TargetCriteria selects the blast radius for a run. Percentage and Count
// are mutually exclusive, Percentage wins when both are set.
type TargetCriteria struct {
	Service    string            `yaml:"service" json:"service" validate:"required"`
	Percentage int               `yaml:"percentage,omitempty" json:"percentage,omitempty" validate:"gte=0,lte=100"`
	Count      int               `yaml:"count,omitempty" json:"count,omitempty" validate:"gte=0"`
	Labels     map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
	Namespace  string            `yaml:"namespace,omitempty" json:"namespace,omitempty"`
}

// CircuitBreaker halts or mitigates a running experiment when a metric
// crosses its threshold.
type CircuitBreaker struct {
	Name      string       `yaml:"name" json:"name" validate:"required"`
	Metric    string       `yaml:"metric" json:"metric" validate:"required"`
	Threshold float64      `yaml:"threshold" json:"threshold"`
	Action    BreachAction `yaml:"action" json:"action" validate:"required"`
}

// ResourceMonitor guards a resource utilisation ceiling during a run.
type ResourceMonitor struct {
	Resource  string       `yaml:"resource" json:"resource" validate:"required"`
	Threshold float64      `yaml:"threshold" json:"threshold"`
	Action    BreachAction `yaml:"action" json:"action" validate:"required"`
}

// DependencyCheck probes the health of a dependency the target relies on.
// A probe that does not answer within Timeout counts as unhealthy.
type DependencyCheck struct {
	DependencyID string        `yaml:"dependencyID" json:"dependencyID" validate:"required"`
	ProbeURL     string        `yaml:"probeURL" json:"probeURL" validate:"required"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
	Action       BreachAction  `yaml:"action" json:"action" validate:"required"`
}

// SafetyControls groups every guard attached to one experiment definition.
// All controls are evaluated on every polling cycle, the most severe
// breach wins, first detected wins ties.
type SafetyControls struct {
	CircuitBreakers  []CircuitBreaker  `yaml:"circuitBreakers,omitempty" json:"circuitBreakers,omitempty" validate:"dive"`
	ResourceMonitors []ResourceMonitor `yaml:"resourceMonitors,omitempty" json:"resourceMonitors,omitempty" validate:"dive"`
	DependencyChecks []DependencyCheck `yaml:"dependencyChecks,omitempty" json:"dependencyChecks,omitempty" validate:"dive"`
}

// MetricCriterion is one success/failure comparison of the hypothesis.
type MetricCriterion struct {
	Metric   string  `yaml:"metric" json:"metric" validate:"required"`
	Criteria string  `yaml:"criteria" json:"criteria" validate:"required"`
	Value    float64 `yaml:"value" json:"value"`
}

// Hypothesis describes the steady state the experiment expects to hold.
type Hypothesis struct {
	SteadyState string            `yaml:"steadyState" json:"steadyState"`
	Criteria    []MetricCriterion `yaml:"criteria,omitempty" json:"criteria,omitempty" validate:"dive"`
}

// ScheduleType distinguishes one-shot from recurring experiments.
type ScheduleType string

const (
	ScheduleOneTime   ScheduleType = "one-time"
	ScheduleRecurring ScheduleType = "recurring"
)

// Valid reports whether the schedule type is one the scheduler knows.
func (t ScheduleType) Valid() bool {
	return t == ScheduleOneTime || t == ScheduleRecurring
}

// ScheduleSpec carries when an experiment is allowed to fire.
type ScheduleSpec struct {
	Type        ScheduleType   `yaml:"type" json:"type" validate:"required"`
	FireAt      time.Time      `yaml:"fireAt,omitempty" json:"fireAt,omitempty"`
	Interval    time.Duration  `yaml:"interval,omitempty" json:"interval,omitempty"`
	DaysOfWeek  []time.Weekday `yaml:"daysOfWeek,omitempty" json:"daysOfWeek,omitempty"`
	TimeOfDay   string         `yaml:"timeOfDay,omitempty" json:"timeOfDay,omitempty"`
	Tolerance   time.Duration  `yaml:"tolerance,omitempty" json:"tolerance,omitempty"`
	MinInterval time.Duration  `yaml:"minInterval,omitempty" json:"minInterval,omitempty"`
}

// DayEnabled reports whether now falls on one of the configured days.
// An empty day set means every day is eligible.
func (s ScheduleSpec) DayEnabled(now time.Time) bool {
	if len(s.DaysOfWeek) == 0 {
		return true
	}
	for _, day := range s.DaysOfWeek {
		if now.Weekday() == day {
			return true
		}
	}
	return false
}

// WithinWindow reports whether now lies inside the time-of-day window,
// TimeOfDay plus/minus Tolerance. An unset TimeOfDay always matches.
func (s ScheduleSpec) WithinWindow(now time.Time) bool {
	if s.TimeOfDay == "" {
		return true
	}
	tod, err := time.Parse("15:04", s.TimeOfDay)
	if err != nil {
		return false
	}
	anchor := time.Date(now.Year(), now.Month(), now.Day(), tod.Hour(), tod.Minute(), 0, 0, now.Location())
	diff := now.Sub(anchor)
	if diff < 0 {
		diff = -diff
	}
	return diff <= s.Tolerance
}

// ExperimentDefinition is the immutable description of one experiment.
// Edits are modelled as a replacement with a bumped Version.
type ExperimentDefinition struct {
	ID              string            `yaml:"id" json:"id" validate:"required"`
	Version         int               `yaml:"version" json:"version" validate:"gte=1"`
	Name            string            `yaml:"name" json:"name" validate:"required"`
	ActionType      ActionType        `yaml:"actionType" json:"actionType" validate:"required"`
	Targets         TargetCriteria    `yaml:"targets" json:"targets"`
	Hypothesis      Hypothesis        `yaml:"hypothesis" json:"hypothesis"`
	Safety          SafetyControls    `yaml:"safety" json:"safety"`
	Schedule        ScheduleSpec      `yaml:"schedule" json:"schedule"`
	Params          map[string]string `yaml:"params,omitempty" json:"params,omitempty"`
	Duration        time.Duration     `yaml:"duration" json:"duration"`
	CleanupRequired bool              `yaml:"cleanupRequired" json:"cleanupRequired"`
}

// ExecutionStatus is the lifecycle state of one triggered run.
type ExecutionStatus string

const (
	StatusPending     ExecutionStatus = "pending"
	StatusSafetyCheck ExecutionStatus = "safety-check"
	StatusRunning     ExecutionStatus = "running"
	StatusHalted      ExecutionStatus = "halted"
	StatusCompleted   ExecutionStatus = "completed"
	StatusFailed      ExecutionStatus = "failed"
	StatusSkipped     ExecutionStatus = "skipped"
)

// Terminal reports whether the status can never change again.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case StatusHalted, StatusCompleted, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// ChaosResult is the outcome of one dispatched disruption action.
type ChaosResult struct {
	Success         bool              `json:"success"`
	AffectedTargets []string          `json:"affectedTargets"`
	ActionMetadata  map[string]string `json:"actionMetadata,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
}

// HypothesisOutcome records the informational steady-state comparison
// attached to a completed run. It never changes the run status.
type HypothesisOutcome struct {
	Validated bool     `json:"validated"`
	Details   []string `json:"details,omitempty"`
}

// ExperimentExecution is one run of a definition. Created by the
// scheduler at trigger time, owned and mutated only by the coordinator.
type ExperimentExecution struct {
	RunID             string                `json:"runID"`
	DefinitionID      string                `json:"definitionID"`
	DefinitionVersion int                   `json:"definitionVersion"`
	Definition        *ExperimentDefinition `json:"-"`
	Status            ExecutionStatus       `json:"status"`
	StartedAt         time.Time             `json:"startedAt"`
	EndedAt           time.Time             `json:"endedAt,omitempty"`
	Targets           []Target              `json:"targets,omitempty"`
	Result            *ChaosResult          `json:"result,omitempty"`
	Hypothesis        *HypothesisOutcome    `json:"hypothesis,omitempty"`
	HaltReason        string                `json:"haltReason,omitempty"`
	FailStep          string                `json:"failStep,omitempty"`
}
