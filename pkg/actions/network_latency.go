package actions

import (
	"context"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/steadystate/havoc/pkg/log"
	"github.com/steadystate/havoc/pkg/registry"
	"github.com/steadystate/havoc/pkg/types"
)

const defaultLatencyMs = 200

// LatencyRuleApplier installs and removes one latency rule on a target.
// The production implementation shells out to the traffic-control layer
// on the target host, tests and local runs inject a fake.
type LatencyRuleApplier interface {
	Apply(ctx context.Context, target types.Target, latencyMs int) error
	Remove(ctx context.Context, target types.Target) error
}

// networkLatencyAction injects an egress delay on every selected target
// and removes the rules again on cleanup.
type networkLatencyAction struct {
	applier LatencyRuleApplier

	mu      sync.Mutex
	applied []types.Target
	removed bool
	failed  bool
}

// NewNetworkLatency builds the network-latency executor around the given
// rule applier.
func NewNetworkLatency(applier LatencyRuleApplier) registry.Action {
	return &networkLatencyAction{applier: applier}
}

func (a *networkLatencyAction) Type() types.ActionType {
	return types.NetworkLatency
}

func (a *networkLatencyAction) Start(ctx context.Context, params map[string]string, targets []types.Target) error {
	latencyMs := defaultLatencyMs
	if raw, ok := params["latencyMs"]; ok {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return errors.Errorf("invalid latencyMs parameter %q", raw)
		}
		latencyMs = parsed
	}

	for _, target := range targets {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := a.applier.Apply(ctx, target, latencyMs); err != nil {
			a.mu.Lock()
			a.failed = true
			a.mu.Unlock()
			return errors.Errorf("unable to apply latency rule on target '%s', err: %v", target.ID, err)
		}
		a.mu.Lock()
		a.applied = append(a.applied, target)
		a.mu.Unlock()

		log.InfoWithValues("[Chaos]: Latency rule injected", map[string]interface{}{
			"Target":    target.ID,
			"LatencyMs": latencyMs,
		})
	}
	return nil
}

func (a *networkLatencyAction) Status(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case a.failed:
		return registry.StageFailed, nil
	case a.removed:
		return registry.StageHalted, nil
	}
	return registry.StageRunning, nil
}

// Reduce shrinks the blast radius to the given targets by removing the
// latency rules from every target no longer kept.
func (a *networkLatencyAction) Reduce(ctx context.Context, keep []types.Target) error {
	kept := make(map[string]bool, len(keep))
	for _, target := range keep {
		kept[target.ID] = true
	}

	a.mu.Lock()
	var dropped, remaining []types.Target
	for _, target := range a.applied {
		if kept[target.ID] {
			remaining = append(remaining, target)
		} else {
			dropped = append(dropped, target)
		}
	}
	a.applied = remaining
	a.mu.Unlock()

	for _, target := range dropped {
		if err := a.applier.Remove(ctx, target); err != nil {
			return errors.Errorf("unable to remove latency rule from target '%s', err: %v", target.ID, err)
		}
		log.Infof("[Chaos]: Blast radius reduced, latency rule removed from target %v", target.ID)
	}
	return nil
}

// Cleanup removes every rule that was injected. Removal failures are
// collected per target so a single bad host does not leave the rest of
// the blast radius delayed.
func (a *networkLatencyAction) Cleanup(ctx context.Context) error {
	a.mu.Lock()
	if a.removed {
		a.mu.Unlock()
		return nil
	}
	applied := make([]types.Target, len(a.applied))
	copy(applied, a.applied)
	a.removed = true
	a.mu.Unlock()

	var lastErr error
	for _, target := range applied {
		if err := a.applier.Remove(ctx, target); err != nil {
			lastErr = errors.Errorf("unable to remove latency rule from target '%s', err: %v", target.ID, err)
			log.Errorf("Latency rule removal failed on %v, err: %v", target.ID, err)
			continue
		}
		log.Infof("[Rollback]: Latency rule removed from target %v", target.ID)
	}
	return lastErr
}

// NoopLatencyApplier tracks applied rules without touching any host.
// Default applier for local runs.
type NoopLatencyApplier struct {
	mu    sync.Mutex
	rules map[string]int
}

func NewNoopLatencyApplier() *NoopLatencyApplier {
	return &NoopLatencyApplier{rules: make(map[string]int)}
}

func (n *NoopLatencyApplier) Apply(ctx context.Context, target types.Target, latencyMs int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rules[target.ID] = latencyMs
	return nil
}

func (n *NoopLatencyApplier) Remove(ctx context.Context, target types.Target) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.rules, target.ID)
	return nil
}

// ActiveRules returns how many rules are currently installed.
func (n *NoopLatencyApplier) ActiveRules() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.rules)
}
