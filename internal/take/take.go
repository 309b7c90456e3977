package take

import (
	"encoding/json"
	"math"
	"time"
)

// Event is one captured control input. Time is the offset from capture start.
type Event struct {
	Time    time.Duration
	Type    string
	Payload Payload
}

// Recording is a finalized take. Events are sorted by non-decreasing Time and
// every Time lies in [0, Duration].
type Recording struct {
	ID        string
	Name      string
	Duration  time.Duration
	Events    []Event
	Sources   []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Summary is the compact form published with library listings.
type Summary struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Duration   float64  `json:"duration"`
	EventCount int      `json:"eventCount"`
	Sources    []string `json:"sources"`
}

// Clone returns a structural copy; payloads are deep-copied.
func (e Event) Clone() Event {
	return Event{Time: e.Time, Type: e.Type, Payload: e.Payload.Clone()}
}

// Clone returns a structural copy of the recording.
func (r Recording) Clone() Recording {
	out := r
	out.Events = make([]Event, len(r.Events))
	for i, ev := range r.Events {
		out.Events[i] = ev.Clone()
	}
	out.Sources = append([]string(nil), r.Sources...)
	return out
}

func (r Recording) Summary() Summary {
	return Summary{
		ID:         r.ID,
		Name:       r.Name,
		Duration:   Millis(r.Duration),
		EventCount: len(r.Events),
		Sources:    append([]string{}, r.Sources...),
	}
}

// Millis converts a duration to fractional milliseconds, the wire unit.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// FromMillis converts fractional milliseconds to a duration, rounded to the
// nearest nanosecond so that FromMillis(Millis(d)) == d. Non-finite and
// negative inputs yield zero.
func FromMillis(ms float64) time.Duration {
	if math.IsNaN(ms) || math.IsInf(ms, 0) || ms <= 0 {
		return 0
	}
	if ms > float64(math.MaxInt64/int64(time.Millisecond)) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(math.Round(ms * float64(time.Millisecond)))
}

type eventJSON struct {
	Time    float64 `json:"time"`
	Type    string  `json:"type"`
	Payload Payload `json:"payload"`
}

type recordingJSON struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Duration  float64     `json:"duration"`
	Events    []eventJSON `json:"events"`
	CreatedAt int64       `json:"createdAt"`
	UpdatedAt int64       `json:"updatedAt"`
	Sources   []string    `json:"sources"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	p := e.Payload
	if p == nil {
		p = Payload{}
	}
	return json.Marshal(eventJSON{Time: Millis(e.Time), Type: e.Type, Payload: p})
}

func (e *Event) UnmarshalJSON(b []byte) error {
	var w eventJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*e = Event{Time: FromMillis(w.Time), Type: w.Type, Payload: w.Payload}
	return nil
}

func (r Recording) MarshalJSON() ([]byte, error) {
	w := recordingJSON{
		ID:        r.ID,
		Name:      r.Name,
		Duration:  Millis(r.Duration),
		Events:    make([]eventJSON, 0, len(r.Events)),
		CreatedAt: r.CreatedAt.UnixMilli(),
		UpdatedAt: r.UpdatedAt.UnixMilli(),
		Sources:   r.Sources,
	}
	if w.Sources == nil {
		w.Sources = []string{}
	}
	for _, ev := range r.Events {
		p := ev.Payload
		if p == nil {
			p = Payload{}
		}
		w.Events = append(w.Events, eventJSON{Time: Millis(ev.Time), Type: ev.Type, Payload: p})
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a well-formed recording. Untrusted documents should
// go through NormalizeRecording instead.
func (r *Recording) UnmarshalJSON(b []byte) error {
	var w recordingJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	out := Recording{
		ID:        w.ID,
		Name:      w.Name,
		Duration:  FromMillis(w.Duration),
		Events:    make([]Event, 0, len(w.Events)),
		Sources:   w.Sources,
		CreatedAt: time.UnixMilli(w.CreatedAt),
		UpdatedAt: time.UnixMilli(w.UpdatedAt),
	}
	for _, ev := range w.Events {
		out.Events = append(out.Events, Event{Time: FromMillis(ev.Time), Type: ev.Type, Payload: ev.Payload})
	}
	*r = out
	return nil
}
