package providers

import (
	"context"
	"time"

	"github.com/steadystate/havoc/pkg/types"
)

// MetricsSource answers point-in-time metric queries for a target over a
// trailing window. Implementations must honour the context deadline, a
// query that cannot answer in time is treated as unavailable upstream.
type MetricsSource interface {
	QueryMetric(ctx context.Context, target, metric string, window time.Duration) (float64, error)
}

// TargetInventory lists the infrastructure units eligible for disruption
// under the given selection criteria.
type TargetInventory interface {
	ListEligibleTargets(ctx context.Context, criteria types.TargetCriteria) ([]types.Target, error)
}

// AttackSpec describes a disruption delegated to an external backend.
type AttackSpec struct {
	Kind    string
	Targets []string
	Params  map[string]string
}

// AttackDetails is the externally reported state of a delegated attack.
type AttackDetails struct {
	Stage   string
	Metrics map[string]float64
}

// DisruptionProvider is the outbound adapter for executors that delegate
// the fault injection to an external backend instead of performing it
// locally.
type DisruptionProvider interface {
	CreateAttack(ctx context.Context, spec AttackSpec) (string, error)
	GetAttackDetails(ctx context.Context, attackID string) (AttackDetails, error)
	HaltAttack(ctx context.Context, attackID string) error
}

// IncidentSource reports whether the target service had incidents or
// deployments inside the trailing window. Used by the safety pre-check.
type IncidentSource interface {
	RecentIncidents(ctx context.Context, service string, window time.Duration) (int, error)
	RecentDeployments(ctx context.Context, service string, window time.Duration) (int, error)
}

// Notifier receives engine events. Delivery is fire-and-forget, a failed
// notification never blocks or fails the experiment itself.
type Notifier interface {
	Notify(event Event)
}

// Event is one noteworthy engine occurrence pushed to notifiers.
type Event struct {
	Reason     string
	Message    string
	RunID      string
	Experiment string
	Timestamp  time.Time
}
