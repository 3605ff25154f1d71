package events

import (
	"time"

	"github.com/kyokomi/emoji"

	"github.com/steadystate/havoc/pkg/log"
	"github.com/steadystate/havoc/pkg/providers"
	"github.com/steadystate/havoc/pkg/types"
)

// Event reasons pushed to notifiers.
const (
	ReasonTriggered      = "ExperimentTriggered"
	ReasonSkipped        = "ExperimentSkipped"
	ReasonHalted         = "ExperimentHalted"
	ReasonCompleted      = "ExperimentCompleted"
	ReasonFailed         = "ExperimentFailed"
	ReasonSafetyAlert    = "SafetyControlBreached"
	ReasonRollbackFailed = "RollbackFailed"
)

// Recorder fans engine events out to every registered notifier.
// Delivery is fire-and-forget, a stuck or panicking notifier never
// blocks or fails the run that produced the event.
type Recorder struct {
	notifiers []providers.Notifier
}

func NewRecorder(notifiers ...providers.Notifier) *Recorder {
	return &Recorder{notifiers: notifiers}
}

// Record delivers one event to all notifiers.
func (r *Recorder) Record(reason, message, runID, experiment string) {
	event := providers.Event{
		Reason:     reason,
		Message:    message,
		RunID:      runID,
		Experiment: experiment,
		Timestamp:  time.Now(),
	}
	for _, notifier := range r.notifiers {
		go func(n providers.Notifier) {
			defer func() {
				if recovered := recover(); recovered != nil {
					log.Errorf("notifier panicked delivering %v event, %v", event.Reason, recovered)
				}
			}()
			n.Notify(event)
		}(notifier)
	}
}

// VerdictSummary renders the run verdict for the summary event.
func VerdictSummary(status types.ExecutionStatus) string {
	switch status {
	case types.StatusCompleted:
		return "Pass" + emoji.Sprint(" :thumbsup:")
	case types.StatusSkipped:
		return "Skipped"
	}
	return "Fail" + emoji.Sprint(" :thumbsdown:")
}
