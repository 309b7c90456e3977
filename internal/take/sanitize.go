package take

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// UnknownType is assigned to events that arrive without a source tag.
const UnknownType = "unknown"

// Defaults supplies the values used when normalizing untrusted recordings.
type Defaults struct {
	NamePrefix string
	Now        func() time.Time
	NewID      func() string
}

// SanitizeEvent fills missing fields of a typed event and copies its payload.
func SanitizeEvent(e Event) Event {
	if e.Time < 0 {
		e.Time = 0
	}
	e.Type = strings.TrimSpace(e.Type)
	if e.Type == "" {
		e.Type = UnknownType
	}
	e.Payload = e.Payload.Clone()
	return e
}

// SanitizeEvents returns sanitized copies ordered by Time. Events with equal
// Time keep their capture order.
func SanitizeEvents(events []Event) []Event {
	out := make([]Event, 0, len(events))
	for _, e := range events {
		out = append(out, SanitizeEvent(e))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// Sources lists distinct event types in first-seen order.
func Sources(events []Event) []string {
	seen := make(map[string]struct{}, 4)
	out := make([]string, 0, 4)
	for _, e := range events {
		if _, ok := seen[e.Type]; ok {
			continue
		}
		seen[e.Type] = struct{}{}
		out = append(out, e.Type)
	}
	return out
}

func asObject(raw any) (map[string]any, bool) {
	switch m := raw.(type) {
	case map[string]any:
		return m, m != nil
	case Payload:
		return m, m != nil
	default:
		return nil, false
	}
}

// NormalizeEvent converts a decoded, untrusted value into an Event. Values
// that are not objects are rejected; bad fields fall back to defaults.
func NormalizeEvent(raw any) (Event, bool) {
	m, ok := asObject(raw)
	if !ok {
		return Event{}, false
	}
	var e Event
	if ms, ok := ToFloat(m["time"]); ok {
		e.Time = FromMillis(ms)
	}
	if s, ok := m["type"].(string); ok {
		e.Type = s
	}
	if p, ok := asObject(m["payload"]); ok {
		e.Payload = Payload(p)
	}
	return SanitizeEvent(e), true
}

// NormalizeEvents accepts a decoded JSON array, drops malformed entries and
// returns the rest sorted by time.
func NormalizeEvents(raw any) []Event {
	list, ok := raw.([]any)
	if !ok {
		return []Event{}
	}
	out := make([]Event, 0, len(list))
	for _, item := range list {
		if e, ok := NormalizeEvent(item); ok {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// NormalizeRecording converts a decoded, untrusted value into a Recording.
// index is the entry's position in its source list and seeds the default
// name. Unknown fields are dropped.
func NormalizeRecording(raw any, index int, d Defaults) (Recording, bool) {
	m, ok := asObject(raw)
	if !ok {
		return Recording{}, false
	}
	now := time.Now()
	if d.Now != nil {
		now = d.Now()
	}

	var r Recording
	if s, ok := m["id"].(string); ok {
		r.ID = strings.TrimSpace(s)
	}
	if r.ID == "" && d.NewID != nil {
		r.ID = d.NewID()
	}
	if s, ok := m["name"].(string); ok {
		r.Name = strings.TrimSpace(s)
	}
	if r.Name == "" {
		r.Name = fmt.Sprintf("%s %d", d.NamePrefix, index+1)
	}

	r.Events = NormalizeEvents(m["events"])
	if ms, ok := ToFloat(m["duration"]); ok {
		r.Duration = FromMillis(ms)
	}
	if n := len(r.Events); n > 0 && r.Events[n-1].Time > r.Duration {
		r.Duration = r.Events[n-1].Time
	}
	r.Sources = Sources(r.Events)

	r.CreatedAt = now
	if ms, ok := ToFloat(m["createdAt"]); ok && ms > 0 {
		r.CreatedAt = time.UnixMilli(int64(ms))
	}
	r.UpdatedAt = r.CreatedAt
	if ms, ok := ToFloat(m["updatedAt"]); ok && ms > 0 {
		r.UpdatedAt = time.UnixMilli(int64(ms))
	}
	return r, true
}
