package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steadystate/havoc/pkg/providers"
	"github.com/steadystate/havoc/pkg/types"
)

type panickyNotifier struct{}

func (panickyNotifier) Notify(providers.Event) { panic("webhook exploded") }

func waitForEvents(t *testing.T, notifier *providers.RecordingNotifier, want int) []providers.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if events := notifier.Events(); len(events) >= want {
			return events
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d event(s), got %d", want, len(notifier.Events()))
	return nil
}

func TestRecordFansOutToAllNotifiers(t *testing.T) {
	first := providers.NewRecordingNotifier()
	second := providers.NewRecordingNotifier()
	recorder := NewRecorder(first, second)

	recorder.Record(ReasonHalted, "error rate breached", "run-1", "latency-payments")

	for _, notifier := range []*providers.RecordingNotifier{first, second} {
		events := waitForEvents(t, notifier, 1)
		require.Len(t, events, 1)
		assert.Equal(t, ReasonHalted, events[0].Reason)
		assert.Equal(t, "run-1", events[0].RunID)
		assert.Equal(t, "latency-payments", events[0].Experiment)
		assert.False(t, events[0].Timestamp.IsZero())
	}
}

func TestPanickingNotifierDoesNotStarveOthers(t *testing.T) {
	healthy := providers.NewRecordingNotifier()
	recorder := NewRecorder(panickyNotifier{}, healthy)

	recorder.Record(ReasonCompleted, "Pass", "run-2", "exhaust-payments")

	events := waitForEvents(t, healthy, 1)
	assert.Equal(t, ReasonCompleted, events[0].Reason)
}

func TestVerdictSummary(t *testing.T) {
	assert.Contains(t, VerdictSummary(types.StatusCompleted), "Pass")
	assert.Equal(t, "Skipped", VerdictSummary(types.StatusSkipped))
	assert.Contains(t, VerdictSummary(types.StatusHalted), "Fail")
	assert.Contains(t, VerdictSummary(types.StatusFailed), "Fail")
}
