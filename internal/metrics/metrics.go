package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	takesFinalized = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gestures",
			Subsystem: "capture",
			Name:      "takes_total",
			Help:      "Capture sessions finalized, by outcome reason.",
		}, []string{"reason"},
	)
	capturedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gestures",
			Subsystem: "capture",
			Name:      "events_total",
			Help:      "Events captured into an active take, by source type.",
		}, []string{"type"},
	)
	playbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gestures",
			Subsystem: "playback",
			Name:      "sessions_total",
			Help:      "Playback sessions by outcome (started, completed, stopped).",
		}, []string{"outcome"},
	)
	playbackEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gestures",
			Subsystem: "playback",
			Name:      "events_total",
			Help:      "Events applied during playback, by whether a value was resolved.",
		}, []string{"resolved"},
	)
	playbackLateness = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "gestures",
			Subsystem: "playback",
			Name:      "lateness_seconds",
			Help:      "Delay between an event's scheduled offset and its application.",
			Buckets:   []float64{0.0005, 0.001, 0.002, 0.004, 0.008, 0.016, 0.032, 0.064, 0.128},
		},
	)
	librarySize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gestures",
			Subsystem: "library",
			Name:      "recordings",
			Help:      "Recordings currently held in the library.",
		},
	)
	persistErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gestures",
			Subsystem: "library",
			Name:      "persist_errors_total",
			Help:      "Failed writes of the library state to the store.",
		},
	)
	listenerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gestures",
			Subsystem: "bus",
			Name:      "listener_errors_total",
			Help:      "Bus listeners that returned an error or panicked.",
		}, []string{"topic"},
	)

	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gestures",
			Subsystem: "engine",
			Name:      "state_transitions_total",
			Help:      "Number of state transitions between engine states.",
		}, []string{"from", "to"},
	)

	currentStates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "gestures",
			Subsystem: "engine",
			Name:      "current_state",
			Help:      "Current engine state (1 = active state, 0 = inactive).",
		}, []string{"state"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		takesFinalized, capturedEvents, playbacks, playbackEvents, playbackLateness,
		librarySize, persistErrors, listenerErrors, stateTransitions, currentStates,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncTake(reason string) {
	if regOK.Load() {
		takesFinalized.WithLabelValues(reason).Inc()
	}
}

func IncCapturedEvent(eventType string) {
	if regOK.Load() {
		capturedEvents.WithLabelValues(eventType).Inc()
	}
}

func IncPlayback(outcome string) {
	if regOK.Load() {
		playbacks.WithLabelValues(outcome).Inc()
	}
}

func IncPlaybackEvent(resolved bool) {
	if regOK.Load() {
		label := "false"
		if resolved {
			label = "true"
		}
		playbackEvents.WithLabelValues(label).Inc()
	}
}

func ObservePlaybackLateness(seconds float64) {
	if regOK.Load() {
		playbackLateness.Observe(seconds)
	}
}

func SetLibrarySize(n int) {
	if regOK.Load() {
		librarySize.Set(float64(n))
	}
}

func IncPersistError() {
	if regOK.Load() {
		persistErrors.Inc()
	}
}

func IncListenerError(topic string) {
	if regOK.Load() {
		listenerErrors.WithLabelValues(topic).Inc()
	}
}

func RecordStateTransition(from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(from, to).Inc()
	}
}

func SetCurrentState(state string, active bool) {
	if regOK.Load() {
		var value float64 = 0
		if active {
			value = 1
		}
		currentStates.WithLabelValues(state).Set(value)
	}
}
