package providers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/steadystate/havoc/pkg/cerrors"
	"github.com/steadystate/havoc/pkg/types"
	"github.com/steadystate/havoc/pkg/utils/stringutils"
)

// StaticMetrics serves metric values from an in-memory table, keyed by
// "target/metric". Useful for local runs and as the seam tests poke.
type StaticMetrics struct {
	mu     sync.RWMutex
	values map[string]float64
}

func NewStaticMetrics() *StaticMetrics {
	return &StaticMetrics{values: make(map[string]float64)}
}

// Set updates the value reported for the given target and metric.
func (s *StaticMetrics) Set(target, metric string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[target+"/"+metric] = value
}

func (s *StaticMetrics) QueryMetric(ctx context.Context, target, metric string, window time.Duration) (float64, error) {
	select {
	case <-ctx.Done():
		return 0, cerrors.Error{ErrorCode: cerrors.ErrorTypeProviderUnavailable, Target: target, Reason: "metric query cancelled"}
	default:
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[target+"/"+metric]
	if !ok {
		return 0, cerrors.Error{ErrorCode: cerrors.ErrorTypeProviderUnavailable, Target: target, Reason: fmt.Sprintf("no data for metric '%s'", metric)}
	}
	return value, nil
}

// StaticInventory lists targets from a fixed set, filtered by service
// and labels.
type StaticInventory struct {
	mu      sync.RWMutex
	targets []types.Target
}

func NewStaticInventory(targets ...types.Target) *StaticInventory {
	return &StaticInventory{targets: targets}
}

// Add registers an additional eligible target.
func (s *StaticInventory) Add(target types.Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets = append(s.targets, target)
}

func (s *StaticInventory) ListEligibleTargets(ctx context.Context, criteria types.TargetCriteria) ([]types.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var eligible []types.Target
	for _, target := range s.targets {
		if criteria.Service != "" && target.Service != criteria.Service {
			continue
		}
		if !labelsMatch(target.Labels, criteria.Labels) {
			continue
		}
		eligible = append(eligible, target)
	}
	return eligible, nil
}

func labelsMatch(have, want map[string]string) bool {
	for key, value := range want {
		if have[key] != value {
			return false
		}
	}
	return true
}

// StaticIncidents reports fixed incident/deployment counts per service.
type StaticIncidents struct {
	mu          sync.RWMutex
	incidents   map[string]int
	deployments map[string]int
}

func NewStaticIncidents() *StaticIncidents {
	return &StaticIncidents{
		incidents:   make(map[string]int),
		deployments: make(map[string]int),
	}
}

func (s *StaticIncidents) SetIncidents(service string, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incidents[service] = count
}

func (s *StaticIncidents) SetDeployments(service string, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deployments[service] = count
}

func (s *StaticIncidents) RecentIncidents(ctx context.Context, service string, window time.Duration) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.incidents[service], nil
}

func (s *StaticIncidents) RecentDeployments(ctx context.Context, service string, window time.Duration) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deployments[service], nil
}

// RecordingNotifier collects events in memory, the default notifier for
// local runs and tests.
type RecordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

func (r *RecordingNotifier) Notify(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of every event received so far.
func (r *RecordingNotifier) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// LocalProvider is an in-process DisruptionProvider used when no external
// attack backend is configured. Attacks are tracked but perform no real
// disruption.
type LocalProvider struct {
	mu      sync.Mutex
	attacks map[string]AttackSpec
	halted  map[string]bool
}

func NewLocalProvider() *LocalProvider {
	return &LocalProvider{
		attacks: make(map[string]AttackSpec),
		halted:  make(map[string]bool),
	}
}

func (p *LocalProvider) CreateAttack(ctx context.Context, spec AttackSpec) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	attackID := "attack-" + stringutils.GetRunID()
	p.attacks[attackID] = spec
	return attackID, nil
}

func (p *LocalProvider) GetAttackDetails(ctx context.Context, attackID string) (AttackDetails, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.attacks[attackID]; !ok {
		return AttackDetails{}, cerrors.Error{ErrorCode: cerrors.ErrorTypeProviderUnavailable, Target: attackID, Reason: "unknown attack id"}
	}
	stage := "Running"
	if p.halted[attackID] {
		stage = "Halted"
	}
	return AttackDetails{Stage: stage}, nil
}

func (p *LocalProvider) HaltAttack(ctx context.Context, attackID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.attacks[attackID]; !ok {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeProviderUnavailable, Target: attackID, Reason: "unknown attack id"}
	}
	p.halted[attackID] = true
	return nil
}

// Halted reports whether the given attack has been halted.
func (p *LocalProvider) Halted(attackID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.halted[attackID]
}
