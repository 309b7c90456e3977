package engine

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/go-viper/mapstructure/v2"

	"github.com/loykin/gestures/internal/bus"
	"github.com/loykin/gestures/internal/take"
)

// attach subscribes to capture sources and sequencer topics.
func (e *Engine) attach() {
	if e.bus == nil {
		return
	}
	for _, topic := range e.sources {
		e.unsubs = append(e.unsubs, e.bus.Subscribe(topic, e.onCaptureSource))
	}
	e.unsubs = append(e.unsubs,
		e.bus.Subscribe(TopicShowStart, e.onShowStart),
		e.bus.Subscribe(TopicShowStop, e.onShowStop),
		e.bus.Subscribe(TopicCueTrigger, e.onCueTrigger),
	)
}

func (e *Engine) onCaptureSource(m bus.Message) error {
	p, err := toPayload(m.Payload)
	if err != nil {
		return fmt.Errorf("capture %s: %w", m.Topic, err)
	}
	e.Capture(m.Topic, p)
	return nil
}

func (e *Engine) onShowStart(m bus.Message) error {
	var msg ShowStart
	if err := decode(m.Payload, &msg); err != nil {
		return fmt.Errorf("show start: %w", err)
	}
	e.mu.Lock()
	e.show = ShowContext{Running: true, Tempo: msg.Tempo, BeatsPerBar: msg.BeatsPerBar}
	e.mu.Unlock()
	e.logger.Debug("show started", "tempo", msg.Tempo, "beatsPerBar", msg.BeatsPerBar)
	return nil
}

// onShowStop ends cue-driven playback together with the show.
func (e *Engine) onShowStop(bus.Message) error {
	e.mu.Lock()
	e.show.Running = false
	if e.playback != nil {
		e.stopPlaybackLocked()
	}
	e.mu.Unlock()
	e.flush()
	return nil
}

// onCueTrigger plays the referenced recording. Cues that name no recording,
// a deleted one or one without events are ignored.
func (e *Engine) onCueTrigger(m bus.Message) error {
	var msg CueTrigger
	if err := decode(m.Payload, &msg); err != nil {
		return fmt.Errorf("cue trigger: %w", err)
	}
	id := msg.Cue.GestureID
	if id == "" {
		return nil
	}
	if _, ok := e.lib.Get(id); !ok {
		e.logger.Debug("cue references unknown gesture", "id", id)
		return nil
	}
	if _, err := e.Play(id); err != nil {
		if errors.Is(err, ErrEmptyRecording) {
			e.logger.Debug("cue references empty gesture", "id", id)
			return nil
		}
		return err
	}
	return nil
}

// TriggerCue plays the recording a cue references, as if the cue had
// arrived on the bus.
func (e *Engine) TriggerCue(c Cue) error {
	return e.onCueTrigger(bus.Message{Topic: TopicCueTrigger, Payload: CueTrigger{Cue: c}})
}

func decode(in any, out any) error {
	switch v := in.(type) {
	case nil:
		return nil
	case CueTrigger:
		if p, ok := out.(*CueTrigger); ok {
			*p = v
			return nil
		}
	case ShowStart:
		if p, ok := out.(*ShowStart); ok {
			*p = v
			return nil
		}
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

// toPayload converts a bus payload into an event payload. Maps are used as
// is, structs are flattened by their mapstructure tags and scalars are
// wrapped under "value".
func toPayload(in any) (take.Payload, error) {
	switch v := in.(type) {
	case nil:
		return take.Payload{}, nil
	case take.Payload:
		return v, nil
	case map[string]any:
		return take.Payload(v), nil
	}
	rv := reflect.Indirect(reflect.ValueOf(in))
	switch rv.Kind() {
	case reflect.Struct, reflect.Map:
		out := map[string]any{}
		if err := mapstructure.Decode(in, &out); err != nil {
			return nil, err
		}
		return take.Payload(out), nil
	default:
		return take.Payload{"value": in}, nil
	}
}
