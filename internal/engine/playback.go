package engine

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/loykin/gestures/internal/history"
	"github.com/loykin/gestures/internal/metrics"
	"github.com/loykin/gestures/internal/param"
	"github.com/loykin/gestures/internal/take"
)

// playbackSession replays rec from start. Events are applied through a
// single cursor, so events sharing an offset fire in capture order. One
// timer is armed at a time, for the next event or for completion.
type playbackSession struct {
	gen        uint64
	rec        take.Recording
	start      time.Time
	next       int
	completeAt time.Duration
	timer      clockwork.Timer
}

// Play replays the recording id. A running playback is stopped and an
// active capture session is discarded first. Missing or empty recordings
// are refused.
func (e *Engine) Play(id string) (PlaybackStarted, error) {
	e.mu.Lock()
	started, err := e.playLocked(id)
	e.mu.Unlock()
	e.flush()
	return started, err
}

func (e *Engine) playLocked(id string) (PlaybackStarted, error) {
	rec, ok := e.lib.Get(id)
	if !ok {
		e.statusLocked("Gesture not found")
		return PlaybackStarted{}, fmt.Errorf("play %q: %w", id, ErrNotFound)
	}
	if len(rec.Events) == 0 {
		e.statusLocked(rec.Name + " has no events")
		return PlaybackStarted{}, fmt.Errorf("play %q: %w", id, ErrEmptyRecording)
	}
	if e.playback != nil {
		e.stopPlaybackLocked()
	}
	if e.capture != nil {
		e.finalizeLocked(ReasonPlayback, true)
	}
	if !e.setStateLocked(StatePlaying) {
		return PlaybackStarted{}, fmt.Errorf("play from %s", e.state)
	}

	e.gen++
	completeAt := rec.Duration + completionPad
	if completeAt < completionPad {
		completeAt = completionPad
	}
	s := &playbackSession{
		gen:        e.gen,
		rec:        rec,
		start:      e.clock.Now(),
		completeAt: completeAt,
	}
	e.playback = s
	metrics.IncPlayback("started")
	e.logger.Info("playback started", "id", rec.ID, "name", rec.Name, "events", len(rec.Events))

	started := PlaybackStarted{ID: rec.ID, Name: rec.Name}
	e.publishLocked(TopicPlaybackStart, started)
	e.statusLocked("Playing " + rec.Name)
	e.historyLocked(history.Event{
		Type:        history.EventPlaybackStart,
		RecordingID: rec.ID,
		Name:        rec.Name,
		EventCount:  len(rec.Events),
		DurationMs:  take.Millis(rec.Duration),
	})
	e.armLocked(s)
	return started, nil
}

// armLocked schedules the next wake-up for s.
func (e *Engine) armLocked(s *playbackSession) {
	target := s.completeAt
	if s.next < len(s.rec.Events) {
		target = s.rec.Events[s.next].Time
	}
	delay := target - e.clock.Since(s.start)
	if delay < 0 {
		delay = 0
	}
	gen := s.gen
	s.timer = e.clock.AfterFunc(delay, func() { e.tick(gen) })
}

// tick applies every event that is due, then re-arms or completes. A tick
// from a stopped or replaced session does nothing.
func (e *Engine) tick(gen uint64) {
	e.mu.Lock()
	s := e.playback
	if s == nil || s.gen != gen {
		e.mu.Unlock()
		return
	}
	elapsed := e.clock.Since(s.start)
	for s.next < len(s.rec.Events) && s.rec.Events[s.next].Time <= elapsed {
		ev := s.rec.Events[s.next]
		s.next++
		metrics.ObservePlaybackLateness((elapsed - ev.Time).Seconds())
		e.applyLocked(s.rec, ev)
	}
	if s.next >= len(s.rec.Events) && elapsed >= s.completeAt {
		e.completeLocked(s)
	} else {
		e.armLocked(s)
	}
	e.mu.Unlock()
	e.flush()
}

// applyLocked resolves one event, writes the parameter when possible and
// publishes the event either way.
func (e *Engine) applyLocked(rec take.Recording, ev take.Event) {
	res := param.Resolve(ev.Payload, e.reg)
	out := PlaybackEvent{RecordingID: rec.ID, Name: rec.Name, Event: ev.Clone()}
	if res.Resolved {
		v := res.Value
		out.Value = &v
		out.Param = res.Param
		if res.Param != "" && e.writer != nil {
			if err := e.writer.Set(res.Param, res.Value, param.SourceGesture); err != nil {
				e.logger.Debug("parameter write skipped", "param", res.Param, "error", err)
			}
		}
	}
	metrics.IncPlaybackEvent(res.Resolved)
	e.publishLocked(TopicPlaybackEvent, out)
}

func (e *Engine) completeLocked(s *playbackSession) {
	e.playback = nil
	s.timer = nil
	e.setStateLocked(StateIdle)
	metrics.IncPlayback("completed")
	e.logger.Info("playback completed", "id", s.rec.ID)
	e.publishLocked(TopicPlaybackComplete, PlaybackCompleted{ID: s.rec.ID})
	e.historyLocked(history.Event{
		Type:        history.EventPlaybackComplete,
		RecordingID: s.rec.ID,
		Name:        s.rec.Name,
		EventCount:  s.next,
		DurationMs:  take.Millis(s.rec.Duration),
	})
}

// StopPlayback cancels the active playback. No event of that session is
// applied after it returns. It reports whether a playback was running.
func (e *Engine) StopPlayback() bool {
	e.mu.Lock()
	stopped := e.playback != nil
	if stopped {
		e.stopPlaybackLocked()
	}
	e.mu.Unlock()
	e.flush()
	return stopped
}

func (e *Engine) stopPlaybackLocked() {
	s := e.playback
	e.playback = nil
	e.gen++
	if s.timer != nil {
		s.timer.Stop()
	}
	e.setStateLocked(StateIdle)
	metrics.IncPlayback("stopped")
	e.logger.Info("playback stopped", "id", s.rec.ID, "applied", s.next)
	e.publishLocked(TopicPlaybackStop, PlaybackStopped{ID: s.rec.ID})
	e.historyLocked(history.Event{
		Type:        history.EventPlaybackStop,
		RecordingID: s.rec.ID,
		Name:        s.rec.Name,
		EventCount:  s.next,
		DurationMs:  take.Millis(s.rec.Duration),
	})
}
