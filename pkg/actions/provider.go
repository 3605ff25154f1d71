package actions

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/steadystate/havoc/pkg/log"
	"github.com/steadystate/havoc/pkg/providers"
	"github.com/steadystate/havoc/pkg/registry"
	"github.com/steadystate/havoc/pkg/types"
	"github.com/steadystate/havoc/pkg/utils/retry"
)

// providerAction delegates the disruption to an external attack backend
// through the DisruptionProvider adapter. One instance tracks one attack.
type providerAction struct {
	actionType types.ActionType
	kind       string
	provider   providers.DisruptionProvider

	mu       sync.Mutex
	attackID string
	halted   bool
}

func newProviderAction(actionType types.ActionType, kind string, provider providers.DisruptionProvider) *providerAction {
	return &providerAction{actionType: actionType, kind: kind, provider: provider}
}

func (a *providerAction) Type() types.ActionType {
	return a.actionType
}

func (a *providerAction) Start(ctx context.Context, params map[string]string, targets []types.Target) error {
	targetIDs := make([]string, 0, len(targets))
	for _, target := range targets {
		targetIDs = append(targetIDs, target.ID)
	}

	attackID, err := a.provider.CreateAttack(ctx, providers.AttackSpec{
		Kind:    a.kind,
		Targets: targetIDs,
		Params:  params,
	})
	if err != nil {
		return errors.Errorf("unable to create the '%s' attack, err: %v", a.kind, err)
	}

	a.mu.Lock()
	a.attackID = attackID
	a.mu.Unlock()

	log.InfoWithValues("[Chaos]: Attack delegated to the disruption provider", map[string]interface{}{
		"Kind":     a.kind,
		"AttackID": attackID,
		"Targets":  len(targetIDs),
	})
	return nil
}

func (a *providerAction) Status(ctx context.Context) (string, error) {
	a.mu.Lock()
	attackID := a.attackID
	a.mu.Unlock()
	if attackID == "" {
		return registry.StageFailed, errors.New("attack was never created")
	}

	details, err := a.provider.GetAttackDetails(ctx, attackID)
	if err != nil {
		return registry.StageFailed, errors.Errorf("unable to fetch attack details, err: %v", err)
	}
	return details.Stage, nil
}

// Cleanup halts the delegated attack, retrying transient provider
// failures before giving up.
func (a *providerAction) Cleanup(ctx context.Context) error {
	a.mu.Lock()
	if a.attackID == "" || a.halted {
		a.mu.Unlock()
		return nil
	}
	attackID := a.attackID
	a.mu.Unlock()

	err := retry.
		Times(3).
		Wait(1 * time.Second).
		Try(func(attempt uint) error {
			return a.provider.HaltAttack(ctx, attackID)
		})
	if err != nil {
		return errors.Errorf("unable to halt attack '%s', err: %v", attackID, err)
	}

	a.mu.Lock()
	a.halted = true
	a.mu.Unlock()

	log.Infof("[Rollback]: Attack %v halted on the disruption provider", attackID)
	return nil
}
