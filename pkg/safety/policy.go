package safety

import (
	"time"
)

// Policy carries the engine-wide safety floors and ceilings the
// pre-check enforces before any experiment is allowed to start.
type Policy struct {
	// HealthWindow is the trailing window health metrics are queried over.
	HealthWindow time.Duration `yaml:"healthWindow"`
	// ErrorRateCeiling is the maximum tolerated error rate (percent)
	// before a target service counts as already unhealthy.
	ErrorRateCeiling float64 `yaml:"errorRateCeiling"`
	// LatencyCeilingMs is the maximum tolerated p99 latency.
	LatencyCeilingMs float64 `yaml:"latencyCeilingMs"`
	// AvailabilityFloor is the minimum availability (percent).
	AvailabilityFloor float64 `yaml:"availabilityFloor"`
	// ResourceCeilings maps resource metric names to the utilisation
	// ceiling (percent) above which no experiment may start.
	ResourceCeilings map[string]float64 `yaml:"resourceCeilings"`
	// BlackoutWindows are periods during which no experiment may start.
	BlackoutWindows []BlackoutWindow `yaml:"blackoutWindows"`
	// IncidentWindow is the trailing window checked for incidents and
	// deployments on the target service.
	IncidentWindow time.Duration `yaml:"incidentWindow"`
	// QueryTimeout bounds every metrics/incident lookup. Lookups that
	// miss the deadline count as unavailable, which fails closed.
	QueryTimeout time.Duration `yaml:"queryTimeout"`
	// ProbeTimeout is the fallback timeout for dependency checks that
	// do not carry their own.
	ProbeTimeout time.Duration `yaml:"probeTimeout"`
}

// DefaultPolicy returns conservative defaults for an unconfigured engine.
func DefaultPolicy() Policy {
	return Policy{
		HealthWindow:      10 * time.Minute,
		ErrorRateCeiling:  1.0,
		LatencyCeilingMs:  1000,
		AvailabilityFloor: 99.0,
		ResourceCeilings: map[string]float64{
			"cpu_utilization":    80,
			"memory_utilization": 85,
		},
		IncidentWindow: 2 * time.Hour,
		QueryTimeout:   5 * time.Second,
		ProbeTimeout:   5 * time.Second,
	}
}

// BlackoutWindow is a recurring period during which experiments must not
// start. Start and End are "HH:MM" wall-clock times, an empty day set
// applies the window every day. Windows may wrap midnight.
type BlackoutWindow struct {
	Days  []time.Weekday `yaml:"days,omitempty"`
	Start string         `yaml:"start"`
	End   string         `yaml:"end"`
}

// Contains reports whether now falls inside the blackout window.
func (w BlackoutWindow) Contains(now time.Time) bool {
	if len(w.Days) > 0 {
		enabled := false
		for _, day := range w.Days {
			if now.Weekday() == day {
				enabled = true
				break
			}
		}
		if !enabled {
			return false
		}
	}
	start, err := time.Parse("15:04", w.Start)
	if err != nil {
		return false
	}
	end, err := time.Parse("15:04", w.End)
	if err != nil {
		return false
	}
	minute := now.Hour()*60 + now.Minute()
	startMin := start.Hour()*60 + start.Minute()
	endMin := end.Hour()*60 + end.Minute()
	if startMin <= endMin {
		return minute >= startMin && minute < endMin
	}
	// window wraps midnight
	return minute >= startMin || minute < endMin
}
