package take

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedDefaults() Defaults {
	n := 0
	return Defaults{
		NamePrefix: "Gesture",
		Now:        func() time.Time { return time.UnixMilli(1_700_000_000_000) },
		NewID: func() string {
			n++
			return "gen-" + string(rune('0'+n))
		},
	}
}

func TestSanitizeEventsSortsAndDefaults(t *testing.T) {
	in := []Event{
		{Time: 250 * time.Millisecond, Type: "pad:update", Payload: Payload{"x": 1.0}},
		{Time: -5 * time.Millisecond, Type: ""},
		{Time: 100 * time.Millisecond, Type: " controller:value "},
		{Time: 100 * time.Millisecond, Type: "audio:flourish"},
	}
	out := SanitizeEvents(in)
	require.Len(t, out, 4)

	assert.Equal(t, time.Duration(0), out[0].Time)
	assert.Equal(t, UnknownType, out[0].Type)
	assert.NotNil(t, out[0].Payload)
	// equal times keep capture order
	assert.Equal(t, "controller:value", out[1].Type)
	assert.Equal(t, "audio:flourish", out[2].Type)
	assert.Equal(t, "pad:update", out[3].Type)

	assert.Equal(t, []string{UnknownType, "controller:value", "audio:flourish", "pad:update"}, Sources(out))
}

func TestPayloadCloneIsStructural(t *testing.T) {
	orig := Payload{
		"nested": map[string]any{"a": []any{1.0, map[string]any{"b": "c"}}},
		"list":   []float64{1, 2},
		"fn":     func() {},
	}
	cp := orig.Clone()
	cp["nested"].(map[string]any)["a"].([]any)[1].(map[string]any)["b"] = "changed"
	cp["list"].([]float64)[0] = 42

	assert.Equal(t, "c", orig["nested"].(map[string]any)["a"].([]any)[1].(map[string]any)["b"])
	assert.Equal(t, 1.0, orig["list"].([]float64)[0])
	// non-serializable values survive the copy
	assert.NotNil(t, cp["fn"])
}

func TestNormalizeRecordingDropsMalformedEvents(t *testing.T) {
	raw := map[string]any{
		"name":     "  ",
		"duration": 50.0,
		"events": []any{
			"garbage",
			map[string]any{"time": 300.0, "type": "pad:update", "payload": map[string]any{"x": 0.2}},
			map[string]any{"time": "soon", "type": 7},
			nil,
			map[string]any{"time": 120.5, "type": "controller:value", "payload": "not-an-object"},
		},
		"extra": true,
	}
	rec, ok := NormalizeRecording(raw, 2, fixedDefaults())
	require.True(t, ok)

	assert.Equal(t, "gen-1", rec.ID)
	assert.Equal(t, "Gesture 3", rec.Name)
	require.Len(t, rec.Events, 3)
	assert.Equal(t, time.Duration(0), rec.Events[0].Time)
	assert.Equal(t, UnknownType, rec.Events[0].Type)
	assert.Equal(t, FromMillis(120.5), rec.Events[1].Time)
	assert.Equal(t, Payload{}, rec.Events[1].Payload)
	assert.Equal(t, 300*time.Millisecond, rec.Duration, "duration grows to cover the last event")
	assert.Equal(t, time.UnixMilli(1_700_000_000_000), rec.CreatedAt)

	for i := 1; i < len(rec.Events); i++ {
		assert.LessOrEqual(t, rec.Events[i-1].Time, rec.Events[i].Time)
	}
	for _, ev := range rec.Events {
		assert.GreaterOrEqual(t, ev.Time, time.Duration(0))
		assert.LessOrEqual(t, ev.Time, rec.Duration)
	}
}

func TestNormalizeRecordingRejectsNonObjects(t *testing.T) {
	for _, raw := range []any{nil, "x", 3.0, []any{}} {
		_, ok := NormalizeRecording(raw, 0, fixedDefaults())
		assert.False(t, ok, "%v", raw)
	}
}

func TestRecordingJSONUsesMilliseconds(t *testing.T) {
	rec := Recording{
		ID:        "r1",
		Name:      "Take",
		Duration:  1500 * time.Millisecond,
		Events:    []Event{{Time: 250 * time.Millisecond, Type: "pad:update", Payload: Payload{"value": 3.0}}},
		Sources:   []string{"pad:update"},
		CreatedAt: time.UnixMilli(1000),
		UpdatedAt: time.UnixMilli(2000),
	}
	b, err := json.Marshal(rec)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, 1500.0, raw["duration"])
	assert.Equal(t, 1000.0, raw["createdAt"])
	ev := raw["events"].([]any)[0].(map[string]any)
	assert.Equal(t, 250.0, ev["time"])

	var back Recording
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, rec.Duration, back.Duration)
	assert.Equal(t, rec.Events[0].Time, back.Events[0].Time)
	assert.Equal(t, rec.CreatedAt.UnixMilli(), back.CreatedAt.UnixMilli())
}

func TestToFloatRejectsNonFinite(t *testing.T) {
	_, ok := ToFloat("1")
	assert.False(t, ok)
	v, ok := ToFloat(json.Number("2.5"))
	assert.True(t, ok)
	assert.Equal(t, 2.5, v)
	assert.Equal(t, time.Duration(0), FromMillis(-3))
}

func TestMillisRoundTripIsExact(t *testing.T) {
	assert.Equal(t, time.Duration(67193831650), FromMillis(Millis(67193831650)))
	for d := time.Duration(0); d < 120*time.Second; d += 7_942_357 {
		if got := FromMillis(Millis(d)); got != d {
			t.Fatalf("FromMillis(Millis(%d)) = %d", int64(d), int64(got))
		}
	}
}
