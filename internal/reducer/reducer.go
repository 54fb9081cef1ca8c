// Package reducer turns an ordered sequence of agent stream events into
// renderable conversation state.
//
// Reduce is pure: it never mutates the state it is given, so the same event
// list applied to the same initial state always yields the same result. That
// is what lets a journal be replayed and a stream be restarted safely.
package reducer

import (
	"github.com/aegis-ops/console/internal/model"
)

// Phase is the lifecycle position of a conversation.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseStreaming Phase = "streaming"
	PhaseFinalized Phase = "finalized"
	PhaseErrored   Phase = "errored"
	PhaseAborted   Phase = "aborted"
)

// Terminal reports whether the phase was reached through a terminal event or failure.
func (p Phase) Terminal() bool {
	return p == PhaseFinalized || p == PhaseErrored
}

// FailureKind classifies a surfaced failure.
type FailureKind string

const (
	// FailureTransport is a connection error or non-success status.
	FailureTransport FailureKind = "transport"
	// FailureAgent is an error event sent by the agent.
	FailureAgent FailureKind = "agent"
)

// GenericTransportMessage is what the operator sees for transport failures.
const GenericTransportMessage = "request failed"

// Failure is the error surfaced alongside whatever partial state accumulated.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Type    string      `json:"type,omitempty"`
	Message string      `json:"message"`
	// Detail is diagnostic context that is not shown to the operator.
	Detail string `json:"detail,omitempty"`
}

// Error formats the failure for display.
func (f *Failure) Error() string {
	if f.Type == "" {
		return f.Message
	}
	if f.Message == "" {
		return f.Type
	}
	return f.Type + ": " + f.Message
}

// State is the full derived state of one conversation.
type State[R any] struct {
	Phase     Phase       `json:"phase"`
	Result    R           `json:"result"`
	Trace     model.Trace `json:"trace"`
	Reasoning string      `json:"reasoning"`
	Failure   *Failure    `json:"failure,omitempty"`
}

// Adapter supplies the domain-specific half of the reducer for one
// conversation kind.
type Adapter[R any] interface {
	Kind() model.Kind
	// Zero returns the empty result for a new stream. start is nil when the
	// result is built without a start event.
	Zero(start *model.StartEvent) R
	// Merge overwrites the fields present in final and keeps the rest of prior.
	// It must not modify prior.
	Merge(prior R, final *model.FinalEvent) R
}

// Initial returns the Idle state for an adapter.
func Initial[R any](a Adapter[R]) State[R] {
	return State[R]{
		Phase:  PhaseIdle,
		Result: a.Zero(nil),
		Trace:  model.Trace{Steps: []model.Step{}},
	}
}

// Reduce applies one event to s and returns the new state.
func Reduce[R any](a Adapter[R], s State[R], ev model.Event) State[R] {
	switch e := ev.(type) {
	case *model.StartEvent:
		return State[R]{
			Phase:  PhaseStreaming,
			Result: a.Zero(e),
			Trace:  model.Trace{Steps: []model.Step{}},
		}

	case *model.TokenEvent:
		s.Reasoning += e.Token

	case *model.ActionEvent:
		var observation *model.Value
		if e.Log != nil {
			observation = model.TextValue(*e.Log)
		}
		s.Trace = s.Trace.Append(e.Tool, e.ToolInput, observation, e.Log)

	case *model.ToolStartEvent:
		s.Trace = s.Trace.Append(e.Tool, e.ToolInput, nil, nil)

	case *model.ToolEndEvent:
		s.Trace = s.Trace.Observe(e.Observation)

	case *model.FinalEvent:
		return Finalize(a, s, e)

	case *model.ErrorEvent:
		s.Failure = &Failure{Kind: FailureAgent, Type: e.ErrorType, Message: e.ErrorMessage}
		s.Phase = PhaseErrored

	case *model.EndEvent:
		if !s.Phase.Terminal() {
			s.Phase = PhaseFinalized
		}

	case *model.ThoughtEvent, *model.LLMStartEvent, *model.LLMEndEvent,
		*model.ObservationEvent, *model.NoteEvent, *model.UnknownEvent:
		// Narration only; rendered from the timeline.
	}
	return s
}

// Finalize merges an authoritative result payload into s. It serves both the
// streamed final event and the body of a non-streaming response.
func Finalize[R any](a Adapter[R], s State[R], final *model.FinalEvent) State[R] {
	s.Result = a.Merge(s.Result, final)
	if final.Trace != nil {
		s.Trace = final.Trace.Reindexed()
	}
	s.Phase = PhaseFinalized
	return s
}

// Replay folds events over the Idle state.
func Replay[R any](a Adapter[R], events []model.Event) State[R] {
	s := Initial(a)
	for _, ev := range events {
		s = Reduce(a, s, ev)
	}
	return s
}

// Abort marks a caller cancellation. Terminal states are left as they are.
func Abort[R any](s State[R]) State[R] {
	if s.Phase.Terminal() {
		return s
	}
	s.Phase = PhaseAborted
	return s
}

// Fail records a transport failure, keeping the partial result and trace.
func Fail[R any](s State[R], detail string) State[R] {
	s.Failure = &Failure{Kind: FailureTransport, Message: GenericTransportMessage, Detail: detail}
	s.Phase = PhaseErrored
	return s
}
