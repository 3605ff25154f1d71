package history

import (
	"fmt"
	"testing"
	"time"

	"github.com/steadystate/havoc/pkg/types"
)

func TestAppendAndGet(t *testing.T) {
	store := New(10)

	store.Append(types.ExperimentExecution{RunID: "run-1", DefinitionID: "exp-a", Status: types.StatusCompleted})
	store.Append(types.ExperimentExecution{RunID: "run-2", DefinitionID: "exp-b", Status: types.StatusHalted})

	record, ok := store.Get("run-1")
	if !ok {
		t.Fatal("expected run-1 to be retained")
	}
	if record.Status != types.StatusCompleted {
		t.Errorf("expected completed, got %s", record.Status)
	}

	all := store.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 records, got %d", len(all))
	}
	if all[0].RunID != "run-2" {
		t.Errorf("expected newest first, got %s", all[0].RunID)
	}
}

func TestCapacityEviction(t *testing.T) {
	store := New(3)

	for i := 0; i < 5; i++ {
		store.Append(types.ExperimentExecution{RunID: fmt.Sprintf("run-%d", i), DefinitionID: "exp-a"})
	}

	all := store.All()
	if len(all) != 3 {
		t.Fatalf("expected capacity 3, got %d", len(all))
	}
	if all[0].RunID != "run-4" {
		t.Errorf("expected the newest record retained, got %s", all[0].RunID)
	}
	if _, ok := store.Get("run-0"); ok {
		t.Error("expected the oldest record evicted")
	}
}

func TestForDefinition(t *testing.T) {
	store := New(10)

	first := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	second := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	store.Append(types.ExperimentExecution{RunID: "run-1", DefinitionID: "exp-a", StartedAt: first})
	store.Append(types.ExperimentExecution{RunID: "run-2", DefinitionID: "exp-b", StartedAt: first})
	store.Append(types.ExperimentExecution{RunID: "run-3", DefinitionID: "exp-a", StartedAt: second})

	records := store.ForDefinition("exp-a")
	if len(records) != 2 {
		t.Fatalf("expected 2 records for exp-a, got %d", len(records))
	}
	if records[0].RunID != "run-3" {
		t.Errorf("expected newest first, got %s", records[0].RunID)
	}
	if got := store.ForDefinition("never-ran"); len(got) != 0 {
		t.Errorf("expected no records for an unknown definition, got %d", len(got))
	}
}
