package safety

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/steadystate/havoc/pkg/cerrors"
	"github.com/steadystate/havoc/pkg/log"
	"github.com/steadystate/havoc/pkg/providers"
	"github.com/steadystate/havoc/pkg/runregistry"
	"github.com/steadystate/havoc/pkg/types"
)

// Well-known health metrics the pre-check queries on every target
// service.
const (
	MetricErrorRate    = "error_rate"
	MetricLatencyP99Ms = "latency_p99_ms"
	MetricAvailability = "availability"
)

// Verdict is the outcome of a safety pre-check.
type Verdict struct {
	Go     bool
	Reason string
}

func goVerdict() Verdict {
	return Verdict{Go: true}
}

func noGo(reason string) Verdict {
	return Verdict{Go: false, Reason: reason}
}

// Breach is one tripped safety control during a running experiment.
type Breach struct {
	Control string
	Action  types.BreachAction
	Reason  string
}

// Evaluator is the stateless GO/NO-GO predicate engine. Every external
// lookup is bounded by the policy's query timeout and treated as failed
// when it cannot answer, the evaluator always fails closed.
type Evaluator struct {
	metrics   providers.MetricsSource
	incidents providers.IncidentSource
	runs      *runregistry.Registry
	prober    DependencyProber
	policy    Policy
	now       func() time.Time
}

func NewEvaluator(metrics providers.MetricsSource, incidents providers.IncidentSource, runs *runregistry.Registry, prober DependencyProber, policy Policy) *Evaluator {
	return &Evaluator{
		metrics:   metrics,
		incidents: incidents,
		runs:      runs,
		prober:    prober,
		policy:    policy,
		now:       time.Now,
	}
}

// PreCheck decides whether it is safe to start the experiment at all.
// Checks run in a fixed order and the first failing one short-circuits
// to NO_GO with its reason.
func (e *Evaluator) PreCheck(ctx context.Context, definition *types.ExperimentDefinition) Verdict {
	service := definition.Targets.Service

	// (a) trailing-window health of the target service
	if verdict := e.checkHealth(ctx, service); !verdict.Go {
		return verdict
	}

	// (b) resource-utilisation ceilings
	if verdict := e.checkResources(ctx, service); !verdict.Go {
		return verdict
	}

	// (c) blackout/time-window policy
	now := e.now()
	for _, window := range e.policy.BlackoutWindows {
		if window.Contains(now) {
			return noGo(fmt.Sprintf("inside blackout window %s-%s", window.Start, window.End))
		}
	}

	// (d) recent incidents or deployments on the target
	if verdict := e.checkIncidents(ctx, service); !verdict.Go {
		return verdict
	}

	// (e) conflicting run for the same target service
	if entry, conflict := e.runs.ConflictForService(service); conflict {
		return noGo(fmt.Sprintf("conflicting run '%s' of experiment '%s' is active on service '%s'", entry.RunID, entry.DefinitionID, service))
	}

	return goVerdict()
}

func (e *Evaluator) checkHealth(ctx context.Context, service string) Verdict {
	errorRate, err := e.queryMetric(ctx, service, MetricErrorRate)
	if err != nil {
		return noGo(fmt.Sprintf("unable to read %s, failing closed: %v", MetricErrorRate, err))
	}
	if errorRate > e.policy.ErrorRateCeiling {
		return noGo(fmt.Sprintf("error rate %.2f exceeds ceiling %.2f", errorRate, e.policy.ErrorRateCeiling))
	}

	latency, err := e.queryMetric(ctx, service, MetricLatencyP99Ms)
	if err != nil {
		return noGo(fmt.Sprintf("unable to read %s, failing closed: %v", MetricLatencyP99Ms, err))
	}
	if latency > e.policy.LatencyCeilingMs {
		return noGo(fmt.Sprintf("p99 latency %.0fms exceeds ceiling %.0fms", latency, e.policy.LatencyCeilingMs))
	}

	availability, err := e.queryMetric(ctx, service, MetricAvailability)
	if err != nil {
		return noGo(fmt.Sprintf("unable to read %s, failing closed: %v", MetricAvailability, err))
	}
	if availability < e.policy.AvailabilityFloor {
		return noGo(fmt.Sprintf("availability %.2f below floor %.2f", availability, e.policy.AvailabilityFloor))
	}
	return goVerdict()
}

func (e *Evaluator) checkResources(ctx context.Context, service string) Verdict {
	resources := make([]string, 0, len(e.policy.ResourceCeilings))
	for resource := range e.policy.ResourceCeilings {
		resources = append(resources, resource)
	}
	sort.Strings(resources)

	for _, resource := range resources {
		ceiling := e.policy.ResourceCeilings[resource]
		value, err := e.queryMetric(ctx, service, resource)
		if err != nil {
			return noGo(fmt.Sprintf("unable to read %s, failing closed: %v", resource, err))
		}
		if value > ceiling {
			return noGo(fmt.Sprintf("%s at %.2f exceeds ceiling %.2f", resource, value, ceiling))
		}
	}
	return goVerdict()
}

func (e *Evaluator) checkIncidents(ctx context.Context, service string) Verdict {
	qctx, cancel := context.WithTimeout(ctx, e.policy.QueryTimeout)
	defer cancel()

	incidents, err := e.incidents.RecentIncidents(qctx, service, e.policy.IncidentWindow)
	if err != nil {
		return noGo(fmt.Sprintf("unable to read recent incidents, failing closed: %v", err))
	}
	if incidents > 0 {
		return noGo(fmt.Sprintf("%d incident(s) on '%s' within the last %v", incidents, service, e.policy.IncidentWindow))
	}

	deployments, err := e.incidents.RecentDeployments(qctx, service, e.policy.IncidentWindow)
	if err != nil {
		return noGo(fmt.Sprintf("unable to read recent deployments, failing closed: %v", err))
	}
	if deployments > 0 {
		return noGo(fmt.Sprintf("%d deployment(s) on '%s' within the last %v", deployments, service, e.policy.IncidentWindow))
	}
	return goVerdict()
}

// ContinuousCheck evaluates every safety control of a running execution
// against current signals. It returns nil when the run may continue,
// otherwise the single most severe breach. All controls are evaluated,
// the most severe action wins and the first-detected breach wins ties.
func (e *Evaluator) ContinuousCheck(ctx context.Context, execution *types.ExperimentExecution) *Breach {
	definition := execution.Definition
	service := definition.Targets.Service

	var worst *Breach
	consider := func(breach Breach) {
		if worst == nil || breach.Action.Severity() > worst.Action.Severity() {
			worst = &breach
		}
	}

	for _, breaker := range definition.Safety.CircuitBreakers {
		value, err := e.queryMetric(ctx, service, breaker.Metric)
		if err != nil {
			// signals lost mid-run: escalate to a hard halt
			consider(Breach{Control: breaker.Name, Action: types.BreachHalt, Reason: fmt.Sprintf("metric '%s' unavailable: %v", breaker.Metric, err)})
			continue
		}
		if value > breaker.Threshold {
			consider(Breach{Control: breaker.Name, Action: breaker.Action, Reason: fmt.Sprintf("metric '%s' at %.2f exceeds threshold %.2f", breaker.Metric, value, breaker.Threshold)})
		}
	}

	for _, monitor := range definition.Safety.ResourceMonitors {
		value, err := e.queryMetric(ctx, service, monitor.Resource)
		if err != nil {
			consider(Breach{Control: monitor.Resource, Action: types.BreachHalt, Reason: fmt.Sprintf("resource signal '%s' unavailable: %v", monitor.Resource, err)})
			continue
		}
		if value > monitor.Threshold {
			consider(Breach{Control: monitor.Resource, Action: monitor.Action, Reason: fmt.Sprintf("resource '%s' at %.2f exceeds threshold %.2f", monitor.Resource, value, monitor.Threshold)})
		}
	}

	for _, check := range definition.Safety.DependencyChecks {
		timeout := check.Timeout
		if timeout <= 0 {
			timeout = e.policy.ProbeTimeout
		}
		pctx, cancel := context.WithTimeout(ctx, timeout)
		err := e.prober.Probe(pctx, check)
		cancel()
		if err != nil {
			// a timed-out probe is a failed check, not CONTINUE
			consider(Breach{Control: check.DependencyID, Action: check.Action, Reason: fmt.Sprintf("dependency '%s' unhealthy: %v", check.DependencyID, err)})
		}
	}

	if worst != nil {
		log.InfoWithValues("[Safety]: Control breached", map[string]interface{}{
			"Control": worst.Control,
			"Action":  worst.Action,
			"Reason":  worst.Reason,
		})
	}
	return worst
}

// ValidateHypothesis compares the captured steady-state metrics against
// the hypothesis criteria. The outcome is informational, it never
// changes a run's status.
func (e *Evaluator) ValidateHypothesis(ctx context.Context, service string, hypothesis types.Hypothesis) *types.HypothesisOutcome {
	outcome := &types.HypothesisOutcome{Validated: true}
	for _, criterion := range hypothesis.Criteria {
		value, err := e.queryMetric(ctx, service, criterion.Metric)
		if err != nil {
			outcome.Validated = false
			outcome.Details = append(outcome.Details, fmt.Sprintf("metric '%s' unavailable: %v", criterion.Metric, err))
			continue
		}
		if err := FirstValue(value).SecondValue(criterion.Value).Criteria(criterion.Criteria).Control(criterion.Metric).CompareFloat(cerrors.ErrorTypeGeneric); err != nil {
			outcome.Validated = false
			outcome.Details = append(outcome.Details, err.Error())
		}
	}
	return outcome
}

func (e *Evaluator) queryMetric(ctx context.Context, service, metric string) (float64, error) {
	qctx, cancel := context.WithTimeout(ctx, e.policy.QueryTimeout)
	defer cancel()
	return e.metrics.QueryMetric(qctx, service, metric, e.policy.HealthWindow)
}
