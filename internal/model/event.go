package model

import (
	"encoding/json"
	"time"
)

// EventKind is the discriminator of a record on an agent stream.
type EventKind string

const (
	EventStart            EventKind = "start"
	EventLLMToken         EventKind = "llm_token"
	EventAgentThought     EventKind = "agent_thought"
	EventLLMStart         EventKind = "llm_start"
	EventLLMEnd           EventKind = "llm_end"
	EventAgentAction      EventKind = "agent_action"
	EventToolStart        EventKind = "tool_start"
	EventToolEnd          EventKind = "tool_end"
	EventAgentObservation EventKind = "agent_observation"
	EventTraceNote        EventKind = "trace_note"
	EventFinal            EventKind = "final"
	EventError            EventKind = "error"
	EventEnd              EventKind = "end"
)

// Stage is the workflow stage the agent reports for a group of events.
type Stage string

const (
	StageThinking  Stage = "thinking"
	StagePlanning  Stage = "planning"
	StageExecuting Stage = "executing"
	StageObserving Stage = "observing"
)

// Envelope holds the fields every stream record may carry regardless of its kind.
type Envelope struct {
	StepID        string          `json:"step_id,omitempty"`
	WorkflowStage Stage           `json:"workflow_stage,omitempty"`
	Timestamp     *time.Time      `json:"timestamp,omitempty"`
	SessionID     string          `json:"session_id,omitempty"`
	Raw           json.RawMessage `json:"-"`
}

// Meta returns the envelope itself so concrete events satisfy Event by embedding.
func (e *Envelope) Meta() *Envelope { return e }

// Event is one decoded stream record. The concrete type is one of the *Event
// structs below; consumers switch on the type.
type Event interface {
	Kind() EventKind
	Meta() *Envelope
}

// StartEvent opens a stream. Start and End describe the resolved time range
// (ChatOps, RCA); ServiceName and LookbackHours are sent by Predict.
type StartEvent struct {
	Envelope
	Start         *time.Time `json:"start,omitempty"`
	End           *time.Time `json:"end,omitempty"`
	ServiceName   string     `json:"service_name,omitempty"`
	LookbackHours int        `json:"lookback_hours,omitempty"`
}

// TokenEvent is a fragment of the agent's raw reasoning stream.
type TokenEvent struct {
	Envelope
	Token string `json:"token"`
}

// ThoughtEvent is the agent's stated thought before acting.
type ThoughtEvent struct {
	Envelope
	Thought string `json:"thought"`
}

// LLMStartEvent marks the beginning of an LLM call.
type LLMStartEvent struct {
	Envelope
	Prompt string `json:"prompt,omitempty"`
	Model  string `json:"model,omitempty"`
}

// LLMEndEvent carries the full text of a finished LLM call.
type LLMEndEvent struct {
	Envelope
	Response string `json:"response,omitempty"`
}

// ActionEvent reports the tool the agent selected. Log, when present, is an
// immediate outcome and becomes the step observation.
type ActionEvent struct {
	Envelope
	Tool      string  `json:"tool"`
	ToolInput *Value  `json:"tool_input,omitempty"`
	Log       *string `json:"log,omitempty"`
}

// ToolStartEvent reports that a tool invocation began.
type ToolStartEvent struct {
	Envelope
	Tool      string `json:"tool"`
	ToolInput *Value `json:"tool_input,omitempty"`
}

// ToolEndEvent reports the output of the most recent tool invocation.
type ToolEndEvent struct {
	Envelope
	Observation *Value `json:"observation,omitempty"`
}

// ObservationEvent is the agent's narration of a tool output.
type ObservationEvent struct {
	Envelope
	Observation *Value `json:"observation,omitempty"`
}

// NoteEvent is a free-text annotation without step semantics.
type NoteEvent struct {
	Envelope
	Note string `json:"note"`
}

// FinalEvent is the authoritative end-of-conversation payload. Fields holds
// every domain field exactly as sent so adapters can tell absent from falsy.
type FinalEvent struct {
	Envelope
	Fields map[string]json.RawMessage `json:"-"`
	Trace  *Trace                     `json:"trace,omitempty"`
}

// Has reports whether the payload carries name with a non-null value.
func (e *FinalEvent) Has(name string) bool {
	raw, ok := e.Fields[name]
	return ok && !isNull(raw)
}

// Field decodes the named field into dst. It reports false when the field is
// absent, null, or does not decode into dst.
func (e *FinalEvent) Field(name string, dst any) bool {
	if !e.Has(name) {
		return false
	}
	return json.Unmarshal(e.Fields[name], dst) == nil
}

// Time decodes the named field as an ISO-8601 timestamp.
func (e *FinalEvent) Time(name string) (*time.Time, bool) {
	var s string
	if !e.Field(name, &s) {
		return nil, false
	}
	t := parseTime(TextValue(s))
	return t, t != nil
}

// ErrorEvent is an error reported by the agent.
type ErrorEvent struct {
	Envelope
	ErrorType    string `json:"error_type,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// EndEvent closes the stream.
type EndEvent struct {
	Envelope
}

// UnknownEvent is a record with a discriminator this build does not know.
type UnknownEvent struct {
	Envelope
	Tag string `json:"event"`
}

func (*StartEvent) Kind() EventKind       { return EventStart }
func (*TokenEvent) Kind() EventKind       { return EventLLMToken }
func (*ThoughtEvent) Kind() EventKind     { return EventAgentThought }
func (*LLMStartEvent) Kind() EventKind    { return EventLLMStart }
func (*LLMEndEvent) Kind() EventKind      { return EventLLMEnd }
func (*ActionEvent) Kind() EventKind      { return EventAgentAction }
func (*ToolStartEvent) Kind() EventKind   { return EventToolStart }
func (*ToolEndEvent) Kind() EventKind     { return EventToolEnd }
func (*ObservationEvent) Kind() EventKind { return EventAgentObservation }
func (*NoteEvent) Kind() EventKind        { return EventTraceNote }
func (*FinalEvent) Kind() EventKind       { return EventFinal }
func (*ErrorEvent) Kind() EventKind       { return EventError }
func (*EndEvent) Kind() EventKind         { return EventEnd }
func (e *UnknownEvent) Kind() EventKind   { return EventKind(e.Tag) }
