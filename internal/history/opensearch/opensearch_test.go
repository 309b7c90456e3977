package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/gestures/internal/history"
)

func TestOpenSearchSink_Send(t *testing.T) {
	var (
		body   []byte
		path   string
		method string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	}))
	defer server.Close()

	sink := New(server.URL+"/", "gesture-history")
	e := history.Event{
		Type:        history.EventPlaybackComplete,
		OccurredAt:  time.Now().UTC(),
		RecordingID: "take-7",
		Name:        "Swell",
		EventCount:  3,
		DurationMs:  300,
	}
	require.NoError(t, sink.Send(context.Background(), e))

	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "/gesture-history/_doc", path)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(body, &doc))
	assert.Equal(t, "playback-complete", doc["type"])
	assert.Equal(t, "take-7", doc["recording_id"])
	assert.Equal(t, 300.0, doc["duration_ms"])
}

func TestOpenSearchSink_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	err := New(server.URL, "idx").Send(context.Background(), history.Event{Type: history.EventPlaybackStop})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestOpenSearchSink_Unreachable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New("http://127.0.0.1:1", "idx").Send(ctx, history.Event{Type: history.EventPlaybackStop})
	assert.Error(t, err)
}
