package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/steadystate/havoc/pkg/cerrors"
	"github.com/steadystate/havoc/pkg/events"
	"github.com/steadystate/havoc/pkg/history"
	"github.com/steadystate/havoc/pkg/log"
	"github.com/steadystate/havoc/pkg/metrics"
	"github.com/steadystate/havoc/pkg/registry"
	"github.com/steadystate/havoc/pkg/runregistry"
	"github.com/steadystate/havoc/pkg/safety"
	"github.com/steadystate/havoc/pkg/telemetry"
	"github.com/steadystate/havoc/pkg/types"
)

const (
	defaultPollInterval   = 10 * time.Second
	defaultCleanupTimeout = 30 * time.Second
)

// Coordinator drives experiment executions through their lifecycle state
// machine. During RUNNING it owns two goroutines, the dispatched action
// and the polling safety monitor, joined by a single cancellation.
type Coordinator struct {
	registry  *registry.Registry
	evaluator *safety.Evaluator
	runs      *runregistry.Registry
	history   *history.Store
	recorder  *events.Recorder

	pollInterval   time.Duration
	cleanupTimeout time.Duration

	mu     sync.Mutex
	active map[string]*activeRun
}

// Option tweaks coordinator behaviour.
type Option func(*Coordinator)

// WithPollInterval overrides the continuous safety check cadence.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Coordinator) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

// WithCleanupTimeout bounds cleanup and rollback after a run ends.
func WithCleanupTimeout(timeout time.Duration) Option {
	return func(c *Coordinator) {
		if timeout > 0 {
			c.cleanupTimeout = timeout
		}
	}
}

func New(reg *registry.Registry, evaluator *safety.Evaluator, runs *runregistry.Registry, store *history.Store, recorder *events.Recorder, opts ...Option) *Coordinator {
	c := &Coordinator{
		registry:       reg,
		evaluator:      evaluator,
		runs:           runs,
		history:        store,
		recorder:       recorder,
		pollInterval:   defaultPollInterval,
		cleanupTimeout: defaultCleanupTimeout,
		active:         make(map[string]*activeRun),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// activeRun is the coordinator's handle on one in-flight execution,
// shared between the run goroutine, the safety monitor, and force-cancel.
type activeRun struct {
	execution *types.ExperimentExecution
	cancel    context.CancelFunc
	acquired  []string

	mu         sync.Mutex
	haltReason string
}

// halt records the reason once and fires the shared cancellation. Later
// calls keep the first reason, halting an already-halting run is a no-op.
func (r *activeRun) halt(reason string) {
	r.mu.Lock()
	if r.haltReason == "" {
		r.haltReason = reason
	}
	r.mu.Unlock()
	r.cancel()
}

func (r *activeRun) reason() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.haltReason == "" {
		return "engine shutdown"
	}
	return r.haltReason
}

// Execute drives one run of the definition to a terminal state. It
// blocks for the lifetime of the run and never leaves the execution in
// RUNNING.
func (c *Coordinator) Execute(ctx context.Context, definition *types.ExperimentDefinition) *types.ExperimentExecution {
	execution := &types.ExperimentExecution{
		RunID:             uuid.New().String(),
		DefinitionID:      definition.ID,
		DefinitionVersion: definition.Version,
		Definition:        definition,
		Status:            types.StatusPending,
		StartedAt:         time.Now(),
	}

	ctx, span := telemetry.StartExperimentSpan(ctx, definition.ID, execution.RunID)
	defer span.End()

	log.InfoWithValues("[Trigger]: Experiment triggered", map[string]interface{}{
		"Experiment": definition.Name,
		"RunID":      execution.RunID,
		"ActionType": definition.ActionType,
	})
	c.recorder.Record(events.ReasonTriggered, "Experiment triggered", execution.RunID, definition.Name)

	// PENDING -> SAFETY_CHECK
	execution.Status = types.StatusSafetyCheck
	verdict := c.evaluator.PreCheck(ctx, definition)
	if !verdict.Go {
		return c.skip(execution, verdict.Reason)
	}

	dispatched, err := c.registry.Dispatch(ctx, definition)
	if err != nil {
		return c.fail(execution, types.ChaosInject, err)
	}
	execution.Targets = dispatched.Targets()

	// claim every selected target before any disruption starts, losing
	// the acquisition race is a conflict NO_GO, not a fault
	run := &activeRun{execution: execution}
	for _, target := range execution.Targets {
		if !c.runs.TryAcquire(target.ID, definition.Targets.Service, definition.ID, execution.RunID) {
			c.releaseAcquired(run)
			return c.skip(execution, cerrors.Error{
				ErrorCode: cerrors.ErrorTypeConflict,
				Phase:     types.PreSafetyCheck,
				Target:    target.ID,
				Reason:    "target already held by a concurrent run",
			}.Error())
		}
		run.acquired = append(run.acquired, target.ID)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	run.cancel = cancel
	c.track(run)
	defer c.untrack(execution.RunID)

	// SAFETY_CHECK -> RUNNING
	execution.Status = types.StatusRunning
	if err := dispatched.Start(runCtx); err != nil {
		c.rollback(execution, dispatched)
		c.releaseAcquired(run)
		return c.fail(execution, types.ChaosInject, err)
	}

	monitorDone := make(chan struct{})
	go c.monitor(runCtx, run, dispatched, monitorDone)

	result, waitErr := dispatched.Wait(runCtx, c.pollInterval)
	cancel()
	<-monitorDone

	execution.Result = result
	execution.Targets = dispatched.Targets()

	switch {
	case waitErr == nil:
		// RUNNING -> COMPLETED on natural expiry. The cleanup sub-phase
		// only runs when the definition asks for it, actions whose
		// disruption ends with the run have nothing to revert. Halts and
		// failures always roll back regardless.
		if definition.CleanupRequired {
			c.cleanup(execution, dispatched)
		}
		execution.Status = types.StatusCompleted
		execution.Hypothesis = c.evaluator.ValidateHypothesis(context.Background(), definition.Targets.Service, definition.Hypothesis)
	case waitErr == context.Canceled:
		// RUNNING -> HALTED on breach, force-cancel, or engine shutdown
		c.rollback(execution, dispatched)
		execution.Status = types.StatusHalted
		execution.HaltReason = run.reason()
		c.recorder.Record(events.ReasonHalted, execution.HaltReason, execution.RunID, definition.Name)
	default:
		// RUNNING -> FAILED on an unhandled action error, rollback is
		// still attempted
		c.rollback(execution, dispatched)
		execution.Status = types.StatusFailed
		rootCause, _ := cerrors.GetRootCauseAndErrorCode(waitErr)
		execution.FailStep = fmt.Sprintf("%s: %s", types.ChaosInject, rootCause)
		c.recorder.Record(events.ReasonFailed, rootCause, execution.RunID, definition.Name)
	}

	c.releaseAcquired(run)
	return c.finish(execution)
}

// monitor polls the continuous safety check for the lifetime of RUNNING
// and owns the halt signal.
func (c *Coordinator) monitor(ctx context.Context, run *activeRun, dispatched *registry.DispatchedAction, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			breach := c.evaluator.ContinuousCheck(ctx, run.execution)
			if breach == nil {
				continue
			}
			metrics.ObserveBreach(string(breach.Action))

			switch breach.Action {
			case types.BreachAlertOnly:
				log.Warnf("Safety control '%s' breached (alert-only): %v", breach.Control, breach.Reason)
				c.recorder.Record(events.ReasonSafetyAlert, breach.Reason, run.execution.RunID, run.execution.DefinitionID)
			case types.BreachReduceBlast:
				if !c.reduceBlastRadius(ctx, run, dispatched, breach) {
					return
				}
			default:
				run.halt(fmt.Sprintf("control '%s' breached: %s", breach.Control, breach.Reason))
				return
			}
		}
	}
}

// reduceBlastRadius halves the running disruption's target set. It
// reports false when the run was halted instead, either because the
// radius reached zero or because the executor cannot shrink.
func (c *Coordinator) reduceBlastRadius(ctx context.Context, run *activeRun, dispatched *registry.DispatchedAction, breach *safety.Breach) bool {
	targets := dispatched.Targets()
	keep := targets[:len(targets)/2]
	if len(keep) == 0 {
		run.halt(fmt.Sprintf("control '%s' breached and blast radius exhausted: %s", breach.Control, breach.Reason))
		return false
	}

	reducible, err := dispatched.Reduce(ctx, keep)
	if !reducible {
		run.halt(fmt.Sprintf("control '%s' breached and the executor cannot reduce its blast radius: %s", breach.Control, breach.Reason))
		return false
	}
	if err != nil {
		run.halt(fmt.Sprintf("control '%s' breached and blast radius reduction failed: %v", breach.Control, err))
		return false
	}

	// free the registry entries of the dropped targets
	for _, target := range targets[len(keep):] {
		c.runs.Release(target.ID, run.execution.RunID)
	}
	log.InfoWithValues("[Safety]: Blast radius reduced", map[string]interface{}{
		"Control":   breach.Control,
		"Remaining": len(keep),
	})
	return true
}

// Halt force-cancels a running execution, taking the same path as a
// safety breach. Halting an unknown or already terminal run is a no-op.
func (c *Coordinator) Halt(runID, reason string) error {
	c.mu.Lock()
	run, ok := c.active[runID]
	c.mu.Unlock()
	if !ok {
		if _, terminal := c.history.Get(runID); terminal {
			return nil
		}
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeGeneric, Target: runID, Reason: "no active run with this id"}
	}
	run.halt(reason)
	return nil
}

// ActiveRuns lists the ids of every in-flight execution.
func (c *Coordinator) ActiveRuns() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.active))
	for runID := range c.active {
		ids = append(ids, runID)
	}
	return ids
}

func (c *Coordinator) track(run *activeRun) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active[run.execution.RunID] = run
}

func (c *Coordinator) untrack(runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, runID)
}

func (c *Coordinator) releaseAcquired(run *activeRun) {
	for _, target := range run.acquired {
		c.runs.Release(target, run.execution.RunID)
	}
}

// skip marks the execution SKIPPED with the NO_GO reason. Skips are
// expected control flow, recorded and notified but never alerted as a
// system fault.
func (c *Coordinator) skip(execution *types.ExperimentExecution, reason string) *types.ExperimentExecution {
	execution.Status = types.StatusSkipped
	execution.HaltReason = reason
	log.InfoWithValues("[Skip]: Safety pre-check refused the experiment", map[string]interface{}{
		"Experiment": execution.DefinitionID,
		"RunID":      execution.RunID,
		"Reason":     reason,
	})
	c.recorder.Record(events.ReasonSkipped, reason, execution.RunID, execution.DefinitionID)
	return c.finish(execution)
}

func (c *Coordinator) fail(execution *types.ExperimentExecution, step string, err error) *types.ExperimentExecution {
	rootCause, errorCode := cerrors.GetRootCauseAndErrorCode(err)
	execution.Status = types.StatusFailed
	execution.FailStep = fmt.Sprintf("%s: %s", step, rootCause)
	log.ErrorWithValues("Experiment run failed", map[string]interface{}{
		"RunID":     execution.RunID,
		"ErrorCode": errorCode,
		"Reason":    rootCause,
	})
	c.recorder.Record(events.ReasonFailed, rootCause, execution.RunID, execution.DefinitionID)
	return c.finish(execution)
}

// cleanup invokes the action's registered cleanup callback after a
// natural expiry, the CLEANUP sub-phase of terminal states.
func (c *Coordinator) cleanup(execution *types.ExperimentExecution, dispatched *registry.DispatchedAction) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cleanupTimeout)
	defer cancel()
	if err := dispatched.Cleanup(ctx); err != nil {
		c.rollbackFailed(execution, err)
	}
}

// rollback stops the disruption and reverts its effects after a halt or
// failure. A rollback that itself fails is never swallowed, it is
// escalated for manual operator intervention.
func (c *Coordinator) rollback(execution *types.ExperimentExecution, dispatched *registry.DispatchedAction) {
	log.Infof("[Rollback]: Reverting disruption for run %v", execution.RunID)
	ctx, cancel := context.WithTimeout(context.Background(), c.cleanupTimeout)
	defer cancel()
	if err := dispatched.Cleanup(ctx); err != nil {
		c.rollbackFailed(execution, err)
	}
}

func (c *Coordinator) rollbackFailed(execution *types.ExperimentExecution, err error) {
	rollbackErr := cerrors.Error{
		ErrorCode: cerrors.ErrorTypeRollbackFailure,
		Phase:     types.Rollback,
		Target:    execution.RunID,
		Reason:    fmt.Sprintf("manual operator intervention required, %v", err),
	}
	log.Error(rollbackErr.Error())
	metrics.ObserveRollbackFailure()
	c.recorder.Record(events.ReasonRollbackFailed, rollbackErr.Error(), execution.RunID, execution.DefinitionID)
	if execution.FailStep == "" {
		execution.FailStep = fmt.Sprintf("%s: %s", types.Rollback, err)
	}
}

// finish stamps the terminal state, records the run, and emits the
// summary event.
func (c *Coordinator) finish(execution *types.ExperimentExecution) *types.ExperimentExecution {
	execution.EndedAt = time.Now()
	c.history.Append(*execution)
	c.runs.RecordRun(execution.DefinitionID, execution.EndedAt)
	metrics.ObserveRun(string(execution.Status), execution.EndedAt.Sub(execution.StartedAt))

	verdict := events.VerdictSummary(execution.Status)
	log.InfoWithValues("[Summary]: Experiment run finished", map[string]interface{}{
		"RunID":   execution.RunID,
		"Status":  execution.Status,
		"Verdict": verdict,
	})
	if execution.Status == types.StatusCompleted {
		c.recorder.Record(events.ReasonCompleted, verdict, execution.RunID, execution.DefinitionID)
	}
	return execution
}
