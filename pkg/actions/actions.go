// Package actions carries the built-in disruption executors. Each file
// registers one failure mode, mirroring the one-file-per-failure layout
// of the action registry it plugs into.
package actions

import (
	"github.com/steadystate/havoc/pkg/providers"
	"github.com/steadystate/havoc/pkg/registry"
	"github.com/steadystate/havoc/pkg/types"
)

// RegisterAll wires every built-in executor into the registry. The
// provider-backed executors delegate the disruption to the external
// attack backend, the latency executor manipulates targets directly
// through its rule applier.
func RegisterAll(r *registry.Registry, provider providers.DisruptionProvider, applier LatencyRuleApplier) {
	r.Register(types.InstanceTerminate, func() registry.Action {
		return newProviderAction(types.InstanceTerminate, "instance-terminate", provider)
	})
	r.Register(types.ResourceExhaust, func() registry.Action {
		return newProviderAction(types.ResourceExhaust, "resource-exhaust", provider)
	})
	r.Register(types.DependencyFailure, func() registry.Action {
		return newProviderAction(types.DependencyFailure, "dependency-failure", provider)
	})
	r.Register(types.QueueDisruption, func() registry.Action {
		return newProviderAction(types.QueueDisruption, "queue-disruption", provider)
	})
	r.Register(types.NetworkLatency, func() registry.Action {
		return NewNetworkLatency(applier)
	})
}
