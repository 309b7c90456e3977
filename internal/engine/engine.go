package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/loykin/gestures/internal/bus"
	"github.com/loykin/gestures/internal/history"
	"github.com/loykin/gestures/internal/library"
	"github.com/loykin/gestures/internal/metrics"
	"github.com/loykin/gestures/internal/param"
	"github.com/loykin/gestures/internal/take"
)

var (
	ErrAlreadyRecording = errors.New("a recording is already in progress")
	ErrNotRecording     = errors.New("no recording in progress")
	ErrEmptyRecording   = errors.New("recording has no events")
	ErrNotFound         = library.ErrNotFound
)

// Finalization reasons.
const (
	ReasonManual        = "manual"
	ReasonDurationLimit = "duration limit reached"
	ReasonEventLimit    = "event limit reached"
	ReasonPlayback      = "playback started"
	ReasonShutdown      = "shutdown"
)

const (
	DefaultMaxDuration    = 120 * time.Second
	DefaultMaxEvents      = 2200
	DefaultPersistTimeout = 5 * time.Second

	completionPad = 16 * time.Millisecond
)

// Options configures an Engine. Library is required; everything else has a
// usable default.
type Options struct {
	Bus      bus.Bus
	Library  *library.Library
	Registry param.Registry
	History  history.Sink
	Clock    clockwork.Clock
	Logger   *slog.Logger

	MaxDuration    time.Duration
	MaxEvents      int
	CaptureSources []string
	PersistTimeout time.Duration
}

// ShowContext is the last sequencer state seen on the bus.
type ShowContext struct {
	Running     bool    `json:"running"`
	Tempo       float64 `json:"tempo"`
	BeatsPerBar int     `json:"beatsPerBar"`
}

// Engine records control events into takes and replays them. All state
// transitions happen under mu; side effects (bus notifications, persistence,
// history export) are queued under mu and run in order by a single drainer
// outside it, so listeners may call back into the engine.
type Engine struct {
	mu       sync.Mutex
	state    State
	capture  *captureSession
	playback *playbackSession
	gen      uint64
	show     ShowContext
	status   string

	pending  []func()
	draining bool

	bus     bus.Bus
	lib     *library.Library
	reg     param.Registry
	writer  param.Writer
	hist    history.Sink
	clock   clockwork.Clock
	logger  *slog.Logger
	sources []string

	maxDuration    time.Duration
	maxEvents      int
	persistTimeout time.Duration

	unsubs []func()
}

func New(opts Options) *Engine {
	e := &Engine{
		bus:            opts.Bus,
		lib:            opts.Library,
		reg:            opts.Registry,
		hist:           opts.History,
		clock:          opts.Clock,
		logger:         opts.Logger,
		sources:        opts.CaptureSources,
		maxDuration:    opts.MaxDuration,
		maxEvents:      opts.MaxEvents,
		persistTimeout: opts.PersistTimeout,
	}
	if e.clock == nil {
		e.clock = clockwork.NewRealClock()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.lib == nil {
		e.lib = library.New(library.Options{Clock: e.clock, Logger: e.logger})
	}
	if e.maxDuration <= 0 {
		e.maxDuration = DefaultMaxDuration
	}
	if e.maxEvents <= 0 {
		e.maxEvents = DefaultMaxEvents
	}
	if e.persistTimeout <= 0 {
		e.persistTimeout = DefaultPersistTimeout
	}
	if len(e.sources) == 0 {
		e.sources = DefaultCaptureSources
	}
	if w, ok := e.reg.(param.Writer); ok {
		e.writer = w
	}
	metrics.SetCurrentState(StateIdle.String(), true)
	e.attach()
	return e
}

// Load restores the library from its store and publishes the list.
func (e *Engine) Load(ctx context.Context) error {
	if err := e.lib.Load(ctx); err != nil {
		return err
	}
	e.mu.Lock()
	e.publishListLocked()
	e.mu.Unlock()
	e.flush()
	return nil
}

// Close detaches from the bus, stops playback and discards an unsaved take.
func (e *Engine) Close() error {
	e.mu.Lock()
	unsubs := e.unsubs
	e.unsubs = nil
	if e.playback != nil {
		e.stopPlaybackLocked()
	}
	if e.capture != nil {
		e.finalizeLocked(ReasonShutdown, true)
	}
	e.mu.Unlock()
	for _, u := range unsubs {
		u()
	}
	e.flush()
	return nil
}

func (e *Engine) Library() *library.Library { return e.lib }

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// setStateLocked moves to next if the transition is allowed.
func (e *Engine) setStateLocked(next State) bool {
	prev := e.state
	if prev == next {
		return true
	}
	if !canTransition(prev, next) {
		e.logger.Error("invalid engine state transition", "from", prev.String(), "to", next.String())
		return false
	}
	e.state = next
	metrics.RecordStateTransition(prev.String(), next.String())
	metrics.SetCurrentState(prev.String(), false)
	metrics.SetCurrentState(next.String(), true)
	return true
}

func (e *Engine) enqueueLocked(fn func()) {
	e.pending = append(e.pending, fn)
}

func (e *Engine) publishLocked(topic string, payload any) {
	if e.bus == nil {
		return
	}
	b := e.bus
	e.enqueueLocked(func() { b.Publish(topic, payload) })
}

func (e *Engine) statusLocked(msg string) {
	e.status = msg
	e.publishLocked(TopicStatus, StatusMessage{Message: msg})
}

func (e *Engine) publishListLocked() {
	e.publishLocked(TopicList, LibraryList{Gestures: e.lib.Summaries()})
}

// persistLocked snapshots the library now and writes it in queue order.
func (e *Engine) persistLocked() {
	snap := e.lib.Snapshot()
	e.enqueueLocked(func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.persistTimeout)
		defer cancel()
		if err := e.lib.Save(ctx, snap); err != nil {
			e.logger.Error("persist library failed", "error", err)
		}
	})
}

// libraryChangedLocked persists and re-publishes the summary list.
func (e *Engine) libraryChangedLocked() {
	e.persistLocked()
	e.publishListLocked()
}

func (e *Engine) historyLocked(ev history.Event) {
	if e.hist == nil {
		return
	}
	ev.OccurredAt = e.clock.Now()
	h := e.hist
	e.enqueueLocked(func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.persistTimeout)
		defer cancel()
		if err := h.Send(ctx, ev); err != nil {
			e.logger.Warn("history export failed", "type", string(ev.Type), "error", err)
		}
	})
}

// flush runs queued side effects. Only one goroutine drains at a time; a
// caller that finds a drain in progress leaves its work to that drainer.
func (e *Engine) flush() {
	e.mu.Lock()
	if e.draining {
		e.mu.Unlock()
		return
	}
	e.draining = true
	for len(e.pending) > 0 {
		fn := e.pending[0]
		e.pending[0] = nil
		e.pending = e.pending[1:]
		e.mu.Unlock()
		e.run(fn)
		e.mu.Lock()
	}
	e.pending = nil
	e.draining = false
	e.mu.Unlock()
}

func (e *Engine) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("engine side effect panicked", "panic", r)
		}
	}()
	fn()
}

// CaptureStatus describes the active capture session.
type CaptureStatus struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	EventCount int     `json:"eventCount"`
	Elapsed    float64 `json:"elapsed"` // ms
}

// PlaybackStatus describes the active playback session.
type PlaybackStatus struct {
	RecordingID string  `json:"recordingId"`
	Name        string  `json:"name"`
	Position    float64 `json:"position"` // ms
	Duration    float64 `json:"duration"` // ms
	Applied     int     `json:"applied"`
	Total       int     `json:"total"`
}

// Status is a point-in-time view of the engine.
type Status struct {
	State       State           `json:"state"`
	Recording   *CaptureStatus  `json:"recording,omitempty"`
	Playback    *PlaybackStatus `json:"playback,omitempty"`
	SelectedID  string          `json:"selectedId,omitempty"`
	LibrarySize int             `json:"librarySize"`
	Show        ShowContext     `json:"show"`
	Message     string          `json:"message,omitempty"`
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := Status{
		State:       e.state,
		SelectedID:  e.lib.SelectedID(),
		LibrarySize: e.lib.Len(),
		Show:        e.show,
		Message:     e.status,
	}
	if c := e.capture; c != nil {
		st.Recording = &CaptureStatus{
			ID:         c.id,
			Name:       c.name,
			EventCount: len(c.events),
			Elapsed:    take.Millis(e.clock.Since(c.start)),
		}
	}
	if p := e.playback; p != nil {
		st.Playback = &PlaybackStatus{
			RecordingID: p.rec.ID,
			Name:        p.rec.Name,
			Position:    take.Millis(e.clock.Since(p.start)),
			Duration:    take.Millis(p.rec.Duration),
			Applied:     p.next,
			Total:       len(p.rec.Events),
		}
	}
	return st
}
