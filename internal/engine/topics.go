package engine

import (
	"github.com/loykin/gestures/internal/take"
)

// Published topics.
const (
	TopicRecordingStart   = "gestures:recording-start"
	TopicRecordingStop    = "gestures:recording-stop"
	TopicPlaybackStart    = "gestures:playback-start"
	TopicPlaybackEvent    = "gestures:playback-event"
	TopicPlaybackStop     = "gestures:playback-stop"
	TopicPlaybackComplete = "gestures:playback-complete"
	TopicList             = "gestures:list"
	TopicStatus           = "gestures:status"
)

// Consumed topics.
const (
	TopicPadUpdate       = "pad:update"
	TopicControllerValue = "controller:value"
	TopicAudioFlourish   = "audio:flourish"
	TopicShowStart       = "show:start"
	TopicShowStop        = "show:stop"
	TopicCueTrigger      = "show:cue-trigger"
)

// DefaultCaptureSources are the topics recorded when no list is configured.
var DefaultCaptureSources = []string{TopicPadUpdate, TopicControllerValue, TopicAudioFlourish}

type RecordingStarted struct {
	ID   string `json:"id" mapstructure:"id"`
	Name string `json:"name" mapstructure:"name"`
}

type RecordingStopped struct {
	ID         string  `json:"id" mapstructure:"id"`
	Name       string  `json:"name" mapstructure:"name"`
	Reason     string  `json:"reason" mapstructure:"reason"`
	EventCount int     `json:"eventCount" mapstructure:"eventCount"`
	Duration   float64 `json:"duration" mapstructure:"duration"` // ms
}

type PlaybackStarted struct {
	ID   string `json:"id" mapstructure:"id"`
	Name string `json:"name" mapstructure:"name"`
}

// PlaybackEvent is published for every applied event. Value and Param are
// set only when the payload resolved to a concrete value.
type PlaybackEvent struct {
	RecordingID string     `json:"recordingId" mapstructure:"recordingId"`
	Name        string     `json:"name" mapstructure:"name"`
	Event       take.Event `json:"event" mapstructure:"event"`
	Value       *float64   `json:"value,omitempty" mapstructure:"value"`
	Param       string     `json:"param,omitempty" mapstructure:"param"`
}

type PlaybackStopped struct {
	ID string `json:"id" mapstructure:"id"`
}

type PlaybackCompleted struct {
	ID string `json:"id" mapstructure:"id"`
}

type LibraryList struct {
	Gestures []take.Summary `json:"gestures" mapstructure:"gestures"`
}

type StatusMessage struct {
	Message string `json:"message" mapstructure:"message"`
}

// ShowStart is the payload of show:start.
type ShowStart struct {
	Tempo       float64 `json:"tempo" mapstructure:"tempo"`
	BeatsPerBar int     `json:"beatsPerBar" mapstructure:"beatsPerBar"`
}

// Cue references a recording from a sequencer cue.
type Cue struct {
	GestureID string `json:"gestureId" mapstructure:"gestureId"`
}

// CueTrigger is the payload of show:cue-trigger.
type CueTrigger struct {
	Cue Cue `json:"cue" mapstructure:"cue"`
}
