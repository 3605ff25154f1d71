package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/steadystate/havoc/pkg/catalog"
	"github.com/steadystate/havoc/pkg/coordinator"
	"github.com/steadystate/havoc/pkg/events"
	"github.com/steadystate/havoc/pkg/history"
	"github.com/steadystate/havoc/pkg/providers"
	"github.com/steadystate/havoc/pkg/registry"
	"github.com/steadystate/havoc/pkg/runregistry"
	"github.com/steadystate/havoc/pkg/safety"
	"github.com/steadystate/havoc/pkg/scheduler"
	"github.com/steadystate/havoc/pkg/types"
)

const catalogDocument = `
id: exhaust-payments
version: 1
name: exhaust payment workers
actionType: resource-exhaust
targets:
  service: payments
  percentage: 100
schedule:
  type: recurring
  interval: 1h
duration: 50ms
`

type instantAction struct {
	mu       sync.Mutex
	cleanups int
}

func (a *instantAction) Type() types.ActionType { return types.ResourceExhaust }
func (a *instantAction) Start(ctx context.Context, params map[string]string, targets []types.Target) error {
	return nil
}
func (a *instantAction) Status(ctx context.Context) (string, error) {
	return registry.StageRunning, nil
}
func (a *instantAction) Cleanup(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cleanups++
	return nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	metricsSource := providers.NewStaticMetrics()
	metricsSource.Set("payments", safety.MetricErrorRate, 0.1)
	metricsSource.Set("payments", safety.MetricLatencyP99Ms, 100)
	metricsSource.Set("payments", safety.MetricAvailability, 99.9)

	inventory := providers.NewStaticInventory(
		types.Target{ID: "pay-1", Service: "payments"},
		types.Target{ID: "pay-2", Service: "payments"},
	)
	reg := registry.New(inventory)
	reg.Register(types.ResourceExhaust, func() registry.Action { return &instantAction{} })

	runs := runregistry.New()
	policy := safety.DefaultPolicy()
	policy.ResourceCeilings = nil
	evaluator := safety.NewEvaluator(metricsSource, providers.NewStaticIncidents(), runs, safety.ProberFunc(func(ctx context.Context, check types.DependencyCheck) error {
		return nil
	}), policy)

	store := history.New(32)
	coord := coordinator.New(reg, evaluator, runs, store, events.NewRecorder(),
		coordinator.WithPollInterval(10*time.Millisecond))
	sched := scheduler.New(coord, runs)

	cat := catalog.New()
	cat.Subscribe(func(changes catalog.ChangeSet) {
		for _, definition := range changes.Added {
			if err := sched.Schedule(definition); err != nil {
				t.Errorf("schedule: %v", err)
			}
		}
	})
	if err := cat.Load(strings.NewReader(catalogDocument)); err != nil {
		t.Fatalf("catalog load: %v", err)
	}

	server, err := NewServer(":0", cat, coord, sched, store)
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	return server
}

func doRequest(t *testing.T, server *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, req)
	return recorder
}

func TestListDefinitions(t *testing.T) {
	server := newTestServer(t)
	recorder := doRequest(t, server, http.MethodGet, "/api/v1/definitions")
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %v", recorder.Code)
	}
	var definitions []types.ExperimentDefinition
	if err := json.Unmarshal(recorder.Body.Bytes(), &definitions); err != nil {
		t.Fatal(err)
	}
	if len(definitions) != 1 || definitions[0].ID != "exhaust-payments" {
		t.Errorf("unexpected definitions %+v", definitions)
	}
}

func TestGetDefinitionNotFound(t *testing.T) {
	server := newTestServer(t)
	recorder := doRequest(t, server, http.MethodGet, "/api/v1/definitions/nope")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("unexpected status %v", recorder.Code)
	}
}

func TestTriggerRunsToCompletion(t *testing.T) {
	server := newTestServer(t)
	recorder := doRequest(t, server, http.MethodPost, "/api/v1/definitions/exhaust-payments/trigger")
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %v: %s", recorder.Code, recorder.Body.String())
	}
	var execution types.ExperimentExecution
	if err := json.Unmarshal(recorder.Body.Bytes(), &execution); err != nil {
		t.Fatal(err)
	}
	if execution.Status != types.StatusCompleted {
		t.Errorf("unexpected status %v", execution.Status)
	}

	// the run must now appear in history
	recorder = doRequest(t, server, http.MethodGet, "/api/v1/runs/"+execution.RunID)
	if recorder.Code != http.StatusOK {
		t.Fatalf("run record not found, status %v", recorder.Code)
	}

	recorder = doRequest(t, server, http.MethodGet, "/api/v1/runs?definition=exhaust-payments")
	var runs []types.ExperimentExecution
	if err := json.Unmarshal(recorder.Body.Bytes(), &runs); err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Errorf("expected one run for the definition, got %v", len(runs))
	}
}

func TestTriggerUnknownDefinition(t *testing.T) {
	server := newTestServer(t)
	recorder := doRequest(t, server, http.MethodPost, "/api/v1/definitions/nope/trigger")
	if recorder.Code != http.StatusConflict {
		t.Fatalf("unexpected status %v", recorder.Code)
	}
}

func TestHaltUnknownRun(t *testing.T) {
	server := newTestServer(t)
	recorder := doRequest(t, server, http.MethodPost, "/api/v1/runs/nope/halt")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("unexpected status %v", recorder.Code)
	}
}

func TestActiveRunsEmpty(t *testing.T) {
	server := newTestServer(t)
	recorder := doRequest(t, server, http.MethodGet, "/api/v1/runs/active")
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %v", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), `"active":[]`) {
		t.Errorf("unexpected body %s", recorder.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(t)
	recorder := doRequest(t, server, http.MethodGet, "/metrics")
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %v", recorder.Code)
	}
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t)
	recorder := doRequest(t, server, http.MethodGet, "/healthz")
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %v", recorder.Code)
	}
}
