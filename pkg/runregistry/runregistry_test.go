package runregistry

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestTryAcquire_SecondAttemptFails(t *testing.T) {
	registry := New()

	if !registry.TryAcquire("node-1", "checkout", "exp-a", "run-1") {
		t.Fatal("first acquisition should succeed")
	}
	if registry.TryAcquire("node-1", "checkout", "exp-b", "run-2") {
		t.Error("second acquisition for the same target should fail")
	}
	if !registry.TryAcquire("node-2", "checkout", "exp-b", "run-2") {
		t.Error("acquisition for a different target should succeed")
	}
}

func TestRelease_FreesTargetAndStampsLastRun(t *testing.T) {
	registry := New()

	registry.TryAcquire("node-1", "checkout", "exp-a", "run-1")
	registry.Release("node-1", "run-1")

	if _, held := registry.Holder("node-1"); held {
		t.Error("target should be free after release")
	}
	if _, ok := registry.LastRun("exp-a"); !ok {
		t.Error("release should stamp the definition's last run time")
	}
	if !registry.TryAcquire("node-1", "checkout", "exp-b", "run-2") {
		t.Error("released target should be acquirable again")
	}
}

func TestRelease_WrongRunIsNoop(t *testing.T) {
	registry := New()

	registry.TryAcquire("node-1", "checkout", "exp-a", "run-1")
	registry.Release("node-1", "run-999")

	if _, held := registry.Holder("node-1"); !held {
		t.Error("release by a different run must not free the target")
	}
}

func TestTryAcquire_RacingAcquirersGetSingleHolder(t *testing.T) {
	registry := New()

	const racers = 64
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if registry.TryAcquire("node-1", "checkout", "exp-a", fmt.Sprintf("run-%d", i)) {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("expected exactly one winner, got %d", winners)
	}
	if len(registry.ActiveRuns()) != 1 {
		t.Errorf("expected exactly one active entry, got %d", len(registry.ActiveRuns()))
	}
}

func TestRecordRun(t *testing.T) {
	registry := New()

	at := time.Now().Add(-time.Hour)
	registry.RecordRun("exp-a", at)

	last, ok := registry.LastRun("exp-a")
	if !ok {
		t.Fatal("expected a last run time")
	}
	if !last.Equal(at) {
		t.Errorf("expected last run %v, got %v", at, last)
	}
}

func TestConflictForService(t *testing.T) {
	registry := New()

	registry.TryAcquire("node-1", "checkout", "exp-a", "run-1")

	if _, conflict := registry.ConflictForService("checkout"); !conflict {
		t.Error("expected a conflict for the held service")
	}
	if _, conflict := registry.ConflictForService("payments"); conflict {
		t.Error("expected no conflict for an unrelated service")
	}
}
