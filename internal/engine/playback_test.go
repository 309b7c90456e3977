package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/gestures/internal/history"
	"github.com/loykin/gestures/internal/param"
	"github.com/loykin/gestures/internal/take"
)

func (f *fixture) waitTopic(t *testing.T, topic string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return f.seen.count(topic) >= n }, waitFor, tick,
		"waiting for %d %s", n, topic)
}

func TestPlaybackAppliesEventsThenCompletes(t *testing.T) {
	f := newFixture(t)
	id := f.addTake("Swell", 300*time.Millisecond, 0, 100*time.Millisecond, 250*time.Millisecond)

	started, err := f.eng.Play(id)
	require.NoError(t, err)
	assert.Equal(t, "Swell", started.Name)
	assert.Equal(t, StatePlaying, f.eng.State())
	f.waitTopic(t, TopicPlaybackStart, 1)

	f.clk.Advance(150 * time.Millisecond)
	f.waitTopic(t, TopicPlaybackEvent, 2)

	f.clk.Advance(100 * time.Millisecond)
	f.waitTopic(t, TopicPlaybackEvent, 3)

	// duration is 300ms; completion is padded past it
	f.clk.Advance(50 * time.Millisecond)
	assert.Never(t, func() bool { return f.seen.count(TopicPlaybackComplete) > 0 }, 50*time.Millisecond, tick)

	f.clk.Advance(16 * time.Millisecond)
	f.waitTopic(t, TopicPlaybackComplete, 1)
	require.Eventually(t, func() bool { return f.eng.State() == StateIdle }, waitFor, tick)

	assert.Equal(t, 3, f.seen.count(TopicPlaybackEvent))
	assert.Equal(t, 0, f.seen.count(TopicPlaybackStop))
	assert.Equal(t, id, f.seen.on(TopicPlaybackComplete)[0].Payload.(PlaybackCompleted).ID)

	ev := f.seen.on(TopicPlaybackEvent)[0].Payload.(PlaybackEvent)
	assert.Equal(t, id, ev.RecordingID)
	assert.Equal(t, "hue", ev.Param)
	require.NotNil(t, ev.Value)
	assert.Equal(t, 5.0, *ev.Value)

	v, ok := f.params.Get("hue")
	require.True(t, ok)
	assert.Equal(t, 5.0, v.Value)
	assert.Equal(t, param.SourceGesture, v.Source)

	require.Eventually(t, func() bool {
		types := f.hist.types()
		return len(types) == 2 && types[1] == history.EventPlaybackComplete
	}, waitFor, tick)
}

func TestStopPlaybackCancelsPendingEvents(t *testing.T) {
	f := newFixture(t)
	id := f.addTake("Swell", 300*time.Millisecond, 0, 100*time.Millisecond, 250*time.Millisecond)

	_, err := f.eng.Play(id)
	require.NoError(t, err)
	f.clk.Advance(150 * time.Millisecond)
	f.waitTopic(t, TopicPlaybackEvent, 2)

	assert.True(t, f.eng.StopPlayback())
	assert.Equal(t, StateIdle, f.eng.State())
	f.waitTopic(t, TopicPlaybackStop, 1)

	f.clk.Advance(time.Second)
	assert.Never(t, func() bool {
		return f.seen.count(TopicPlaybackEvent) > 2 || f.seen.count(TopicPlaybackComplete) > 0
	}, 100*time.Millisecond, tick)

	assert.False(t, f.eng.StopPlayback(), "nothing left to stop")
}

func TestSameOffsetEventsFireInCaptureOrder(t *testing.T) {
	f := newFixture(t)
	rec := take.Recording{Name: "Chord", Duration: 60 * time.Millisecond}
	for i, typ := range []string{"c", "a", "b", "a"} {
		rec.Events = append(rec.Events, take.Event{
			Time:    50 * time.Millisecond,
			Type:    typ,
			Payload: take.Payload{"seq": i},
		})
	}
	id := f.lib.Add(rec).ID

	for round := 0; round < 3; round++ {
		before := f.seen.count(TopicPlaybackEvent)
		_, err := f.eng.Play(id)
		require.NoError(t, err)
		f.clk.Advance(100 * time.Millisecond)
		f.waitTopic(t, TopicPlaybackComplete, round+1)

		got := f.seen.on(TopicPlaybackEvent)[before:]
		require.Len(t, got, 4)
		for i, m := range got {
			ev := m.Payload.(PlaybackEvent)
			assert.Equal(t, i, ev.Event.Payload["seq"], "round %d", round)
			assert.Nil(t, ev.Value, "events without a value are published only")
		}
	}
}

func TestPlayRefusesMissingAndEmpty(t *testing.T) {
	f := newFixture(t)
	_, err := f.eng.Play("nope")
	assert.ErrorIs(t, err, ErrNotFound)

	id := f.lib.Add(take.Recording{Name: "Empty"}).ID
	_, err = f.eng.Play(id)
	assert.ErrorIs(t, err, ErrEmptyRecording)
	assert.Equal(t, StateIdle, f.eng.State())
	assert.Equal(t, 0, f.seen.count(TopicPlaybackStart))
}

func TestPlayDiscardsActiveRecording(t *testing.T) {
	f := newFixture(t)
	id := f.addTake("Saved", 200*time.Millisecond, 100*time.Millisecond)

	_, err := f.eng.StartRecording()
	require.NoError(t, err)
	f.eng.Capture(TopicPadUpdate, take.Payload{"normalized": 0.9})

	_, err = f.eng.Play(id)
	require.NoError(t, err)
	assert.Equal(t, StatePlaying, f.eng.State())
	assert.Equal(t, 1, f.lib.Len(), "unsaved take is dropped")
	assert.Equal(t, 0, f.seen.count(TopicRecordingStop))
	assert.Contains(t, f.hist.types(), history.EventRecordingDiscard)
}

func TestStartRecordingStopsPlayback(t *testing.T) {
	f := newFixture(t)
	id := f.addTake("Saved", time.Second, 100*time.Millisecond, 500*time.Millisecond)

	_, err := f.eng.Play(id)
	require.NoError(t, err)
	_, err = f.eng.StartRecording()
	require.NoError(t, err)

	assert.Equal(t, StateRecording, f.eng.State())
	assert.Equal(t, 1, f.seen.count(TopicPlaybackStop))

	f.clk.Advance(2 * time.Second)
	assert.Never(t, func() bool { return f.seen.count(TopicPlaybackEvent) > 0 }, 50*time.Millisecond, tick)
}

func TestPlayReplacesRunningPlayback(t *testing.T) {
	f := newFixture(t)
	a := f.addTake("A", time.Second, 500*time.Millisecond)
	b := f.addTake("B", 100*time.Millisecond, 50*time.Millisecond)

	_, err := f.eng.Play(a)
	require.NoError(t, err)
	_, err = f.eng.Play(b)
	require.NoError(t, err)

	stops := f.seen.on(TopicPlaybackStop)
	require.Len(t, stops, 1)
	assert.Equal(t, a, stops[0].Payload.(PlaybackStopped).ID)

	f.clk.Advance(2 * time.Second)
	f.waitTopic(t, TopicPlaybackComplete, 1)
	events := f.seen.on(TopicPlaybackEvent)
	require.Len(t, events, 1)
	assert.Equal(t, b, events[0].Payload.(PlaybackEvent).RecordingID)
}

func TestIntegerParameterIsRounded(t *testing.T) {
	f := newFixture(t)
	rec := take.Recording{Name: "Steps", Duration: 10 * time.Millisecond, Events: []take.Event{
		{Time: 0, Type: TopicControllerValue, Payload: take.Payload{"parameter": "density", "normalized": 0.5}},
	}}
	id := f.lib.Add(rec).ID

	_, err := f.eng.Play(id)
	require.NoError(t, err)
	f.clk.Advance(50 * time.Millisecond)
	f.waitTopic(t, TopicPlaybackComplete, 1)

	v, _ := f.params.Get("density")
	assert.Equal(t, 5.0, v.Value)
}
