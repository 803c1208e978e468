package metrics

import (
	"time"
)

const defaultAlertCooldown = 5 * time.Minute

// Alert signal names
const (
	SignalRate      = "rate"
	SignalErrorRate = "error_rate"
)

// AlertState describes one evaluator transition
type AlertState string

const (
	AlertTriggered AlertState = "triggered"
	AlertOngoing   AlertState = "ongoing"
	AlertResolved  AlertState = "resolved"
)

// AlertEvent is one alert transition produced by Evaluate
type AlertEvent struct {
	Signal    string
	State     AlertState
	Current   float64
	Threshold float64
}

// AlertConfig holds the alert thresholds; a zero threshold disables
// its signal
type AlertConfig struct {
	// RateThreshold fires when windowed throughput exceeds this many events
	RateThreshold int64

	// ErrorRateThreshold fires when the failure fraction over the
	// window exceeds this value (0..1)
	ErrorRateThreshold float64

	// MinSamples guards the error-rate signal against firing off a
	// near-empty window
	MinSamples int64

	// Cooldown throttles repeated notifications for an ongoing alert
	Cooldown time.Duration
}

type signalState struct {
	active         bool
	lastNotifiedAt time.Time
}

/* AlertMonitor evaluates rolling-window alerts over a Collector
 * Each signal moves through triggered -> ongoing (throttled by the
 * cooldown) -> resolved; evaluation never feeds back into the pipeline
 */
type AlertMonitor struct {
	cfg       AlertConfig
	collector *Collector
	states    map[string]signalState
	now       func() time.Time
}

// NewAlertMonitor creates a monitor over the given collector
func NewAlertMonitor(collector *Collector, cfg AlertConfig) *AlertMonitor {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultAlertCooldown
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 1
	}
	return &AlertMonitor{
		cfg:       cfg,
		collector: collector,
		states:    make(map[string]signalState),
		now:       collector.now,
	}
}

// Evaluate checks every configured signal against the current window
// and returns the transitions since the previous evaluation
func (m *AlertMonitor) Evaluate() []AlertEvent {
	window := m.collector.Window()
	now := m.now()

	var events []AlertEvent
	if m.cfg.RateThreshold > 0 {
		events = append(events, m.evaluateSignal(
			now,
			SignalRate,
			float64(window.Total),
			float64(m.cfg.RateThreshold),
			window.Total > m.cfg.RateThreshold,
		)...)
	}
	if m.cfg.ErrorRateThreshold > 0 {
		fraction := 0.0
		breached := false
		if window.Total >= m.cfg.MinSamples {
			fraction = float64(window.Failures) / float64(window.Total)
			breached = fraction > m.cfg.ErrorRateThreshold
		}
		events = append(events, m.evaluateSignal(
			now,
			SignalErrorRate,
			fraction,
			m.cfg.ErrorRateThreshold,
			breached,
		)...)
	}

	return events
}

func (m *AlertMonitor) evaluateSignal(now time.Time, signal string, current, threshold float64, breached bool) []AlertEvent {
	state := m.states[signal]

	if breached {
		if !state.active {
			m.states[signal] = signalState{active: true, lastNotifiedAt: now}
			return []AlertEvent{{Signal: signal, State: AlertTriggered, Current: current, Threshold: threshold}}
		}
		if now.Sub(state.lastNotifiedAt) < m.cfg.Cooldown {
			return nil
		}
		state.lastNotifiedAt = now
		m.states[signal] = state
		return []AlertEvent{{Signal: signal, State: AlertOngoing, Current: current, Threshold: threshold}}
	}

	if state.active {
		delete(m.states, signal)
		return []AlertEvent{{Signal: signal, State: AlertResolved, Current: current, Threshold: threshold}}
	}

	return nil
}
