package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/loykin/gestures/internal/history"
)

func TestSQLiteSink_Integration(t *testing.T) {
	dbPath := t.TempDir() + "/history.db"

	sink, err := New("sqlite://" + dbPath)
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	ctx := context.Background()
	start := history.Event{
		Type:        history.EventRecordingStart,
		OccurredAt:  time.Now().UTC(),
		RecordingID: "take-1",
		Name:        "Gesture 1",
	}
	if err := sink.Send(ctx, start); err != nil {
		t.Fatalf("Failed to send start event: %v", err)
	}

	stop := history.Event{
		Type:        history.EventRecordingStop,
		OccurredAt:  time.Now().UTC(),
		RecordingID: "take-1",
		Name:        "Gesture 1",
		Reason:      "event limit reached",
		EventCount:  2200,
		DurationMs:  8123.5,
	}
	if err := sink.Send(ctx, stop); err != nil {
		t.Fatalf("Failed to send stop event: %v", err)
	}

	n, err := sink.Count(ctx, "take-1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 rows, got %d", n)
	}
}

func TestSQLiteSink_InMemory(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create in-memory sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	e := history.Event{Type: history.EventPlaybackComplete, OccurredAt: time.Now(), RecordingID: "r", Name: "n"}
	if err := sink.Send(ctx, e); err != nil {
		t.Fatalf("Failed to send event: %v", err)
	}
	if n, _ := sink.Count(ctx, "r"); n != 1 {
		t.Errorf("Expected 1 row, got %d", n)
	}
}

func TestSQLiteSink_EmptyDSN(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}
