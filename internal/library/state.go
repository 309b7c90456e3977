package library

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/loykin/gestures/internal/take"
)

// ExportFilename is the suggested file name for exported libraries.
const ExportFilename = "vib34d-gesture-library.json"

// State is the persisted form of the library.
type State struct {
	Recordings []take.Recording
	SelectedID string
}

type stateJSON struct {
	Recordings []take.Recording `json:"recordings"`
	SelectedID *string          `json:"selectedId"`
}

type exportJSON struct {
	Gestures []take.Recording `json:"gestures"`
}

func (s State) MarshalJSON() ([]byte, error) {
	w := stateJSON{Recordings: s.Recordings}
	if w.Recordings == nil {
		w.Recordings = []take.Recording{}
	}
	if s.SelectedID != "" {
		sel := s.SelectedID
		w.SelectedID = &sel
	}
	return json.Marshal(w)
}

// decodeState normalizes a persisted document. Corruption never fails: it
// degrades to whatever entries could be recovered.
func decodeState(data []byte, d take.Defaults, logger *slog.Logger) State {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		logger.Warn("discarding corrupt library state", "error", err)
		return State{}
	}
	list, ok := recordingList(raw)
	if !ok {
		logger.Warn("library state has no recording list; starting empty")
		return State{}
	}
	st := State{Recordings: normalizeAll(list, d)}
	if obj, ok := raw.(map[string]any); ok {
		if sel, ok := obj["selectedId"].(string); ok {
			st.SelectedID = sel
		}
	}
	if dropped := len(list) - len(st.Recordings); dropped > 0 {
		logger.Warn("dropped malformed recordings from library state", "dropped", dropped)
	}
	return st
}

// recordingList finds the recording array in a decoded document: a bare
// array, or an object carrying "gestures" or "recordings".
func recordingList(raw any) ([]any, bool) {
	switch v := raw.(type) {
	case []any:
		return v, true
	case map[string]any:
		for _, k := range []string{"gestures", "recordings"} {
			if list, ok := v[k].([]any); ok {
				return list, true
			}
		}
	}
	return nil, false
}

func normalizeAll(list []any, d take.Defaults) []take.Recording {
	out := make([]take.Recording, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for i, item := range list {
		r, ok := take.NormalizeRecording(item, i, d)
		if !ok {
			continue
		}
		if _, dup := seen[r.ID]; dup && d.NewID != nil {
			r.ID = d.NewID()
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Export renders the library as a downloadable document. An empty library
// cannot be exported.
func (l *Library) Export() ([]byte, error) {
	recs := l.List()
	if len(recs) == 0 {
		return nil, ErrEmptyLibrary
	}
	return json.MarshalIndent(exportJSON{Gestures: recs}, "", "  ")
}

// Decode parses an import document without touching the library.
func (l *Library) Decode(data []byte) ([]take.Recording, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}
	list, ok := recordingList(raw)
	if !ok {
		return nil, ErrInvalidImport
	}
	return normalizeAll(list, l.defaults()), nil
}

// Import decodes data and replaces the whole library with its entries.
func (l *Library) Import(data []byte) ([]take.Recording, error) {
	recs, err := l.Decode(data)
	if err != nil {
		return nil, err
	}
	l.Replace(recs)
	return l.List(), nil
}
