package registry

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/steadystate/havoc/pkg/cerrors"
	"github.com/steadystate/havoc/pkg/log"
	"github.com/steadystate/havoc/pkg/math"
	"github.com/steadystate/havoc/pkg/providers"
	"github.com/steadystate/havoc/pkg/types"
)

// Action is the pluggable disruption contract. One instance serves one
// dispatch, so implementations may keep per-run state between Start,
// Status, and Cleanup.
type Action interface {
	Type() types.ActionType
	// Start begins the disruption on the selected targets. It must
	// observe ctx at every internal step.
	Start(ctx context.Context, params map[string]string, targets []types.Target) error
	// Status reports the current stage of the disruption, polled while
	// the run waits out its duration.
	Status(ctx context.Context) (string, error)
	// Cleanup reverts the disruption. It must be idempotent, the
	// coordinator invokes it on halt and on natural expiry.
	Cleanup(ctx context.Context) error
}

// Factory builds a fresh Action instance for one dispatch.
type Factory func() Action

// Registry maps disruption-type tags to their executors and owns target
// selection at dispatch time.
type Registry struct {
	mu        sync.RWMutex
	factories map[types.ActionType]Factory
	inventory providers.TargetInventory
	rng       *rand.Rand
	rngMu     sync.Mutex
}

func New(inventory providers.TargetInventory) *Registry {
	return &Registry{
		factories: make(map[types.ActionType]Factory),
		inventory: inventory,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Register binds an action type to its executor factory. Re-registering
// a type replaces the previous executor.
func (r *Registry) Register(actionType types.ActionType, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[actionType]; ok {
		log.Warnf("action type '%s' already registered, replacing", actionType)
	}
	r.factories[actionType] = factory
}

// Supported lists the registered action types.
func (r *Registry) Supported() []types.ActionType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	supported := make([]types.ActionType, 0, len(r.factories))
	for actionType := range r.factories {
		supported = append(supported, actionType)
	}
	return supported
}

// Dispatch resolves the executor for the definition's action type and
// selects the blast radius. The disruption itself does not begin until
// Start is called on the returned handle, so the caller can claim the
// selected targets first.
func (r *Registry) Dispatch(ctx context.Context, definition *types.ExperimentDefinition) (*DispatchedAction, error) {
	r.mu.RLock()
	factory, ok := r.factories[definition.ActionType]
	r.mu.RUnlock()
	if !ok {
		return nil, cerrors.Error{ErrorCode: cerrors.ErrorTypeUnsupportedAction, Phase: types.ChaosInject, Reason: fmt.Sprintf("no executor registered for action type '%s'", definition.ActionType)}
	}

	candidates, err := r.inventory.ListEligibleTargets(ctx, definition.Targets)
	if err != nil {
		return nil, cerrors.Error{ErrorCode: cerrors.ErrorTypeProviderUnavailable, Phase: types.ChaosInject, Reason: fmt.Sprintf("unable to list eligible targets, %v", err)}
	}
	targets := r.selectTargets(candidates, definition.Targets)
	if len(targets) == 0 {
		return nil, cerrors.Error{ErrorCode: cerrors.ErrorTypeTargetSelection, Phase: types.ChaosInject, Target: definition.Targets.Service, Reason: "target selection yielded an empty set"}
	}

	return &DispatchedAction{
		action:   factory(),
		targets:  targets,
		params:   definition.Params,
		duration: definition.Duration,
	}, nil
}

// selectTargets picks the blast radius out of the eligible candidates.
// Percentage selection rounds up and draws uniformly at random without
// replacement, fixed-count selection caps at the candidate count. With
// neither set the whole candidate set is used.
func (r *Registry) selectTargets(candidates []types.Target, criteria types.TargetCriteria) []types.Target {
	if len(candidates) == 0 {
		return nil
	}
	var want int
	switch {
	case criteria.Percentage > 0:
		want = math.SelectionCount(len(candidates), criteria.Percentage)
	case criteria.Count > 0:
		want = math.Minimum(criteria.Count, len(candidates))
	default:
		return candidates
	}

	r.rngMu.Lock()
	order := r.rng.Perm(len(candidates))
	r.rngMu.Unlock()

	selected := make([]types.Target, 0, want)
	for _, idx := range order[:want] {
		selected = append(selected, candidates[idx])
	}
	return selected
}

// DispatchedAction is one in-flight disruption with its cleanup callback
// registered at dispatch time.
type DispatchedAction struct {
	action   Action
	params   map[string]string
	duration time.Duration

	mu      sync.Mutex
	targets []types.Target

	cleanupOnce sync.Once
	cleanupErr  error
}

// Targets returns the current blast radius.
func (d *DispatchedAction) Targets() []types.Target {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]types.Target, len(d.targets))
	copy(out, d.targets)
	return out
}

// Start begins the disruption on the selected targets.
func (d *DispatchedAction) Start(ctx context.Context) error {
	if err := d.action.Start(ctx, d.params, d.Targets()); err != nil {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeActionExecution, Phase: types.ChaosInject, Reason: fmt.Sprintf("unable to start '%s' action, %v", d.action.Type(), err)}
	}
	log.InfoWithValues("[Chaos]: Disruption dispatched", map[string]interface{}{
		"ActionType": d.action.Type(),
		"Targets":    len(d.targets),
		"Duration":   d.duration,
	})
	return nil
}

// BlastReducer is implemented by executors that can shrink a running
// disruption to a subset of its targets. Executors without it cannot
// reduce, the coordinator escalates their reduce breaches to a halt.
type BlastReducer interface {
	Reduce(ctx context.Context, keep []types.Target) error
}

// Reduce shrinks the blast radius to the given targets. It reports
// false when the executor cannot reduce.
func (d *DispatchedAction) Reduce(ctx context.Context, keep []types.Target) (bool, error) {
	reducer, ok := d.action.(BlastReducer)
	if !ok {
		return false, nil
	}
	if err := reducer.Reduce(ctx, keep); err != nil {
		return true, cerrors.Error{ErrorCode: cerrors.ErrorTypeActionExecution, Phase: types.ChaosInject, Reason: fmt.Sprintf("unable to reduce blast radius, %v", err)}
	}
	d.mu.Lock()
	d.targets = keep
	d.mu.Unlock()
	return true, nil
}

// Wait blocks until the action's natural duration elapses or ctx is
// cancelled, polling the executor's status on the way. A failed status
// surfaces as an ActionExecution error, cancellation surfaces as the
// context error so the caller can tell a halt from a fault.
func (d *DispatchedAction) Wait(ctx context.Context, pollInterval time.Duration) (*types.ChaosResult, error) {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	deadline := time.After(d.duration)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return d.result(false), ctx.Err()
		case <-deadline:
			return d.result(true), nil
		case <-ticker.C:
			stage, err := d.action.Status(ctx)
			if err != nil {
				return d.result(false), cerrors.Error{ErrorCode: cerrors.ErrorTypeActionExecution, Phase: types.ChaosInject, Reason: fmt.Sprintf("action status check failed, %v", err)}
			}
			if stage == StageFailed {
				return d.result(false), cerrors.Error{ErrorCode: cerrors.ErrorTypeActionExecution, Phase: types.ChaosInject, Reason: "action reported a failed stage"}
			}
		}
	}
}

// Stage values reported by action executors.
const (
	StageRunning = "Running"
	StageHalted  = "Halted"
	StageFailed  = "Failed"
)

// Cleanup invokes the executor's cleanup exactly once, later calls
// return the first outcome.
func (d *DispatchedAction) Cleanup(ctx context.Context) error {
	d.cleanupOnce.Do(func() {
		d.cleanupErr = d.action.Cleanup(ctx)
	})
	return d.cleanupErr
}

func (d *DispatchedAction) result(success bool) *types.ChaosResult {
	targets := d.Targets()
	affected := make([]string, 0, len(targets))
	for _, target := range targets {
		affected = append(affected, target.ID)
	}
	return &types.ChaosResult{
		Success:         success,
		AffectedTargets: affected,
		ActionMetadata:  d.params,
		Timestamp:       time.Now(),
	}
}
