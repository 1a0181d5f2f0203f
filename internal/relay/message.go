package relay

import (
	"encoding/json"
	"fmt"

	"github.com/fmueller/voxrelay/internal/whisper"
)

type CommandType string

const (
	CommandLoad       CommandType = "load"
	CommandTranscribe CommandType = "transcribe"
	CommandStop       CommandType = "stop"
)

type Command struct {
	Type CommandType `json:"type"`
	Data CommandData `json:"data"`

	invalid error
}

type CommandData struct {
	ModelName string          `json:"modelName,omitempty"`
	AudioURL  string          `json:"audioUrl,omitempty"`
	Options   whisper.Options `json:"options,omitempty"`
}

func Load(modelName string) Command {
	return Command{Type: CommandLoad, Data: CommandData{ModelName: modelName}}
}

func Transcribe(audioURL string, opts whisper.Options) Command {
	return Command{Type: CommandTranscribe, Data: CommandData{AudioURL: audioURL, Options: opts}}
}

func Stop() Command {
	return Command{Type: CommandStop}
}

// Invalid stands in for an inbound message that could not be decoded, so its
// error event stays in order with the commands around it.
func Invalid(err error) Command {
	return Command{invalid: err}
}

type EventType string

const (
	EventStatus       EventType = "status"
	EventLoadProgress EventType = "loadProgress"
	EventModelLoaded  EventType = "modelLoaded"
	EventResult       EventType = "result"
	EventError        EventType = "error"
	EventStopped      EventType = "stopped"
)

type Event struct {
	Type     EventType
	Message  string
	Progress int
	Result   any
	Error    string
}

type EmitFunc func(Event)

func statusEvent(message string) Event { return Event{Type: EventStatus, Message: message} }
func progressEvent(percent int) Event  { return Event{Type: EventLoadProgress, Progress: percent} }
func resultEvent(payload any) Event    { return Event{Type: EventResult, Result: payload} }
func errorEvent(err error) Event       { return Event{Type: EventError, Error: err.Error()} }

func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventStatus:
		return json.Marshal(struct {
			Type    EventType `json:"type"`
			Message string    `json:"message"`
		}{e.Type, e.Message})
	case EventLoadProgress:
		return json.Marshal(struct {
			Type     EventType `json:"type"`
			Progress int       `json:"progress"`
		}{e.Type, e.Progress})
	case EventResult:
		return json.Marshal(struct {
			Type   EventType `json:"type"`
			Result any       `json:"result"`
		}{e.Type, e.Result})
	case EventError:
		return json.Marshal(struct {
			Type  EventType `json:"type"`
			Error string    `json:"error"`
		}{e.Type, e.Error})
	case EventModelLoaded, EventStopped:
		return json.Marshal(struct {
			Type EventType `json:"type"`
		}{e.Type})
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var wire struct {
		Type     EventType       `json:"type"`
		Message  string          `json:"message"`
		Progress int             `json:"progress"`
		Result   json.RawMessage `json:"result"`
		Error    string          `json:"error"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*e = Event{Type: wire.Type, Message: wire.Message, Progress: wire.Progress, Error: wire.Error}
	if len(wire.Result) > 0 {
		var payload any
		if err := json.Unmarshal(wire.Result, &payload); err != nil {
			return fmt.Errorf("decode result payload: %w", err)
		}
		e.Result = payload
	}
	return nil
}
