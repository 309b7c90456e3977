package history

import (
	"context"
	"errors"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventRecordingStart   EventType = "recording-start"
	EventRecordingStop    EventType = "recording-stop"
	EventRecordingDiscard EventType = "recording-discard"
	EventPlaybackStart    EventType = "playback-start"
	EventPlaybackStop     EventType = "playback-stop"
	EventPlaybackComplete EventType = "playback-complete"
)

// Event represents a capture or playback lifecycle event exported to
// external systems.
type Event struct {
	Type        EventType `json:"type"`
	OccurredAt  time.Time `json:"occurred_at"`
	RecordingID string    `json:"recording_id"`
	Name        string    `json:"name"`
	Reason      string    `json:"reason,omitempty"`
	EventCount  int       `json:"event_count"`
	DurationMs  float64   `json:"duration_ms"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Multi sends every event to each sink in order. All sinks are tried; the
// returned error joins individual failures.
type Multi []Sink

func (m Multi) Send(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
