package engine

import (
	"fmt"
	"time"

	"github.com/loykin/gestures/internal/history"
	"github.com/loykin/gestures/internal/metrics"
	"github.com/loykin/gestures/internal/take"
)

type captureSession struct {
	id       string
	name     string
	start    time.Time
	duration time.Duration
	events   []take.Event
	sources  []string
	seen     map[string]struct{}
}

func (c *captureSession) add(ev take.Event) {
	c.events = append(c.events, ev)
	if _, ok := c.seen[ev.Type]; !ok {
		c.seen[ev.Type] = struct{}{}
		c.sources = append(c.sources, ev.Type)
	}
}

// StopOptions controls how a capture session ends.
type StopOptions struct {
	Reason  string
	Discard bool
}

// StartRecording opens a capture session. An active playback is stopped
// first. It fails with ErrAlreadyRecording when a session is open.
func (e *Engine) StartRecording() (RecordingStarted, error) {
	e.mu.Lock()
	started, err := e.startRecordingLocked()
	e.mu.Unlock()
	e.flush()
	return started, err
}

func (e *Engine) startRecordingLocked() (RecordingStarted, error) {
	if e.capture != nil {
		e.statusLocked("Already recording")
		return RecordingStarted{}, ErrAlreadyRecording
	}
	if e.playback != nil {
		e.stopPlaybackLocked()
	}
	c := &captureSession{
		id:    e.lib.NewID(),
		name:  fmt.Sprintf("%s %d", e.lib.NamePrefix(), e.lib.Len()+1),
		start: e.clock.Now(),
		seen:  make(map[string]struct{}, len(e.sources)),
	}
	if !e.setStateLocked(StateRecording) {
		return RecordingStarted{}, fmt.Errorf("start recording from %s", e.state)
	}
	e.capture = c
	started := RecordingStarted{ID: c.id, Name: c.name}
	e.logger.Info("recording started", "id", c.id, "name", c.name)
	e.publishLocked(TopicRecordingStart, started)
	e.statusLocked("Recording " + c.name)
	e.historyLocked(history.Event{Type: history.EventRecordingStart, RecordingID: c.id, Name: c.name})
	return started, nil
}

// Capture appends an event to the active take. It is a no-op when no
// capture session is open. Reaching either resource cap finalizes the take.
func (e *Engine) Capture(eventType string, payload take.Payload) {
	e.mu.Lock()
	e.captureLocked(eventType, payload)
	e.mu.Unlock()
	e.flush()
}

func (e *Engine) captureLocked(eventType string, payload take.Payload) {
	c := e.capture
	if c == nil {
		return
	}
	elapsed := e.clock.Since(c.start)
	ev := take.SanitizeEvent(take.Event{Time: elapsed, Type: eventType, Payload: payload})
	if elapsed > e.maxDuration {
		// the event that crossed the boundary is kept, clamped to the cap
		ev.Time = e.maxDuration
		c.add(ev)
		c.duration = e.maxDuration
		metrics.IncCapturedEvent(ev.Type)
		e.finalizeLocked(ReasonDurationLimit, false)
		return
	}
	c.add(ev)
	c.duration = elapsed
	metrics.IncCapturedEvent(ev.Type)
	if len(c.events) >= e.maxEvents {
		e.finalizeLocked(ReasonEventLimit, false)
	}
}

// StopRecording finalizes the active take. The returned bool reports whether
// the take was saved; discarded and empty takes are dropped.
func (e *Engine) StopRecording(opts StopOptions) (take.Recording, bool, error) {
	e.mu.Lock()
	if e.capture == nil {
		e.mu.Unlock()
		return take.Recording{}, false, ErrNotRecording
	}
	reason := opts.Reason
	if reason == "" {
		reason = ReasonManual
	}
	rec, saved := e.finalizeLocked(reason, opts.Discard)
	e.mu.Unlock()
	e.flush()
	return rec, saved, nil
}

// finalizeLocked closes the capture session and hands the take to the
// library unless it is discarded or empty.
func (e *Engine) finalizeLocked(reason string, discard bool) (take.Recording, bool) {
	c := e.capture
	e.capture = nil
	e.setStateLocked(StateIdle)

	now := e.clock.Now()
	rec := take.Recording{
		ID:        c.id,
		Name:      c.name,
		Duration:  c.duration,
		Events:    take.SanitizeEvents(c.events),
		Sources:   append([]string(nil), c.sources...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if n := len(rec.Events); n > 0 && rec.Events[n-1].Time > rec.Duration {
		rec.Duration = rec.Events[n-1].Time
	}

	if discard || len(rec.Events) == 0 {
		outcome := "discarded"
		msg := "Recording discarded"
		if !discard {
			outcome = "empty"
			msg = "Recording had no events; nothing saved"
		}
		metrics.IncTake(outcome)
		e.logger.Info("recording dropped", "id", rec.ID, "reason", reason, "events", len(rec.Events))
		e.statusLocked(msg)
		e.historyLocked(history.Event{
			Type:        history.EventRecordingDiscard,
			RecordingID: rec.ID,
			Name:        rec.Name,
			Reason:      reason,
			EventCount:  len(rec.Events),
			DurationMs:  take.Millis(rec.Duration),
		})
		return rec, false
	}

	rec = e.lib.Add(rec)
	metrics.IncTake(reason)
	e.logger.Info("recording saved", "id", rec.ID, "name", rec.Name, "reason", reason,
		"events", len(rec.Events), "duration", rec.Duration)
	e.persistLocked()
	e.publishLocked(TopicRecordingStop, RecordingStopped{
		ID:         rec.ID,
		Name:       rec.Name,
		Reason:     reason,
		EventCount: len(rec.Events),
		Duration:   take.Millis(rec.Duration),
	})
	e.publishListLocked()
	if reason != ReasonManual {
		e.statusLocked(fmt.Sprintf("Saved %s (%s)", rec.Name, reason))
	} else {
		e.statusLocked("Saved " + rec.Name)
	}
	e.historyLocked(history.Event{
		Type:        history.EventRecordingStop,
		RecordingID: rec.ID,
		Name:        rec.Name,
		Reason:      reason,
		EventCount:  len(rec.Events),
		DurationMs:  take.Millis(rec.Duration),
	})
	return rec, true
}
