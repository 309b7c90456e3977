package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Summary is the compact listing form of a recording.
type Summary struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Duration   float64  `json:"duration"` // ms
	EventCount int      `json:"eventCount"`
	Sources    []string `json:"sources"`
}

// ListResponse is returned by GET /gestures.
type ListResponse struct {
	Gestures   []Summary `json:"gestures"`
	SelectedID *string   `json:"selectedId"`
}

// Event is one recorded control input; Time is milliseconds from capture start.
type Event struct {
	Time    float64        `json:"time"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

// Recording is the full form of a library entry.
type Recording struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Duration  float64  `json:"duration"`
	Events    []Event  `json:"events"`
	Sources   []string `json:"sources"`
	CreatedAt float64  `json:"createdAt"`
	UpdatedAt float64  `json:"updatedAt"`
}

// Started is returned when a recording or a playback begins.
type Started struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// StopRequest ends the active recording. Reason defaults to a manual stop.
type StopRequest struct {
	Discard bool   `json:"discard,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

type StopResponse struct {
	Saved     bool       `json:"saved"`
	Recording *Recording `json:"recording,omitempty"`
}

// Status mirrors the engine status snapshot.
type Status struct {
	State       string          `json:"state"`
	Recording   *CaptureStatus  `json:"recording,omitempty"`
	Playback    *PlaybackStatus `json:"playback,omitempty"`
	SelectedID  string          `json:"selectedId,omitempty"`
	LibrarySize int             `json:"librarySize"`
	Show        Show            `json:"show"`
	Message     string          `json:"message,omitempty"`
}

type CaptureStatus struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	EventCount int     `json:"eventCount"`
	Elapsed    float64 `json:"elapsed"`
}

type PlaybackStatus struct {
	RecordingID string  `json:"recordingId"`
	Name        string  `json:"name"`
	Position    float64 `json:"position"`
	Duration    float64 `json:"duration"`
	Applied     int     `json:"applied"`
	Total       int     `json:"total"`
}

type Show struct {
	Running     bool    `json:"running"`
	Tempo       float64 `json:"tempo"`
	BeatsPerBar int     `json:"beatsPerBar"`
}

// Parameter is one registry entry as served by GET /parameters.
type Parameter struct {
	Def struct {
		Name    string  `json:"name"`
		Min     float64 `json:"min"`
		Max     float64 `json:"max"`
		Integer bool    `json:"integer"`
		Default float64 `json:"default"`
	} `json:"def"`
	Value  float64 `json:"value"`
	Source string  `json:"source"`
}

// ErrorResponse represents an error response from the API
type ErrorResponse struct {
	Error string `json:"error"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is an API 404.
func IsNotFound(err error) bool { return hasStatus(err, http.StatusNotFound) }

// IsConflict reports whether err is an API 409, e.g. recording while already recording.
func IsConflict(err error) bool { return hasStatus(err, http.StatusConflict) }

func hasStatus(err error, code int) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == code
}

func decodeError(code int, body []byte) error {
	var er ErrorResponse
	if err := json.Unmarshal(body, &er); err != nil {
		return &APIError{StatusCode: code}
	}
	return &APIError{StatusCode: code, Message: er.Error}
}
