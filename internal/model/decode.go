package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNoDiscriminator is returned for records that carry neither "event" nor "event_type".
var ErrNoDiscriminator = errors.New("record has no event discriminator")

// wireEvent is the union of every field any record kind may carry. Free
// form fields are Values so a producer sending an object where text is
// expected degrades to its JSON text instead of failing the record.
type wireEvent struct {
	Event         string `json:"event"`
	EventType     string `json:"event_type"`
	StepID        string `json:"step_id"`
	StepIDCamel   string `json:"stepId"`
	WorkflowStage string `json:"workflow_stage"`
	Timestamp     *Value `json:"timestamp"`
	SessionID     *Value `json:"session_id"`

	Start         *Value `json:"start"`
	End           *Value `json:"end"`
	ServiceName   *Value `json:"service_name"`
	LookbackHours *Value `json:"lookback_hours"`

	Token    *Value `json:"token"`
	Thought  *Value `json:"thought"`
	Prompt   *Value `json:"prompt"`
	Model    *Value `json:"model"`
	Response *Value `json:"response"`
	Note     *Value `json:"note"`

	Tool        *Value `json:"tool"`
	ToolInput   *Value `json:"tool_input"`
	Log         *Value `json:"log"`
	Observation *Value `json:"observation"`

	ErrorType    *Value `json:"error_type"`
	ErrorMessage *Value `json:"error_message"`
	Message      *Value `json:"message"`
}

// envelopeKeys are stripped from a final payload's field map.
var envelopeKeys = []string{"event", "event_type", "step_id", "stepId", "workflow_stage", "timestamp", "session_id", "trace"}

// DecodeEvent decodes one stream record. Records with an unrecognized
// discriminator decode into *UnknownEvent rather than failing.
func DecodeEvent(data []byte) (Event, error) {
	data = bytes.TrimSpace(data)

	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}

	tag := w.Event
	if tag == "" {
		tag = w.EventType
	}
	if tag == "" {
		return nil, ErrNoDiscriminator
	}

	env := Envelope{
		StepID:        firstNonEmpty(w.StepID, w.StepIDCamel),
		WorkflowStage: Stage(w.WorkflowStage),
		Timestamp:     parseTime(w.Timestamp),
		SessionID:     text(w.SessionID),
		Raw:           append(json.RawMessage(nil), data...),
	}

	switch EventKind(tag) {
	case EventStart:
		ev := &StartEvent{
			Envelope:    env,
			Start:       parseTime(w.Start),
			End:         parseTime(w.End),
			ServiceName: text(w.ServiceName),
		}
		if w.LookbackHours != nil {
			var hours int
			if err := w.LookbackHours.Decode(&hours); err == nil {
				ev.LookbackHours = hours
			}
		}
		return ev, nil
	case EventLLMToken:
		return &TokenEvent{Envelope: env, Token: text(w.Token)}, nil
	case EventAgentThought:
		return &ThoughtEvent{Envelope: env, Thought: text(w.Thought)}, nil
	case EventLLMStart:
		return &LLMStartEvent{Envelope: env, Prompt: text(w.Prompt), Model: text(w.Model)}, nil
	case EventLLMEnd:
		return &LLMEndEvent{Envelope: env, Response: text(w.Response)}, nil
	case EventAgentAction:
		ev := &ActionEvent{Envelope: env, Tool: text(w.Tool), ToolInput: w.ToolInput}
		if log := text(w.Log); log != "" {
			ev.Log = &log
		}
		return ev, nil
	case EventToolStart:
		return &ToolStartEvent{Envelope: env, Tool: text(w.Tool), ToolInput: w.ToolInput}, nil
	case EventToolEnd:
		return &ToolEndEvent{Envelope: env, Observation: w.Observation}, nil
	case EventAgentObservation:
		return &ObservationEvent{Envelope: env, Observation: w.Observation}, nil
	case EventTraceNote:
		return &NoteEvent{Envelope: env, Note: text(w.Note)}, nil
	case EventFinal:
		return decodeFinal(env, data)
	case EventError:
		msg := text(w.ErrorMessage)
		if msg == "" {
			msg = text(w.Message)
		}
		return &ErrorEvent{Envelope: env, ErrorType: text(w.ErrorType), ErrorMessage: msg}, nil
	case EventEnd:
		return &EndEvent{Envelope: env}, nil
	default:
		return &UnknownEvent{Envelope: env, Tag: tag}, nil
	}
}

// DecodeFinal decodes a synchronous agent response, which has the shape of a
// final record without a discriminator.
func DecodeFinal(data []byte) (*FinalEvent, error) {
	env := Envelope{Raw: append(json.RawMessage(nil), bytes.TrimSpace(data)...)}
	ev, err := decodeFinal(env, data)
	if err != nil {
		return nil, err
	}
	return ev.(*FinalEvent), nil
}

func decodeFinal(env Envelope, data []byte) (Event, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decode final payload: %w", err)
	}

	ev := &FinalEvent{Envelope: env, Fields: fields}
	if raw, ok := fields["trace"]; ok && !isNull(raw) {
		var tr Trace
		// A malformed backend trace leaves Trace nil so the accumulated one survives.
		if err := json.Unmarshal(raw, &tr); err == nil {
			ev.Trace = &tr
		}
	}
	for _, k := range envelopeKeys {
		delete(ev.Fields, k)
	}
	return ev, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// parseTime accepts ISO-8601 with or without offset; values without an
// offset are taken as UTC. Non-text and unparseable values yield nil.
func parseTime(v *Value) *time.Time {
	if v == nil || v.IsRecord() {
		return nil
	}
	s := strings.TrimSpace(v.Text())
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// text renders a free-form field; records become their compact JSON.
func text(v *Value) string {
	if v == nil {
		return ""
	}
	return v.Text()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
