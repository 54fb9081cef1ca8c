package model

// Step is one tool invocation captured in the structured trace, ordered by arrival.
type Step struct {
	Index       int     `json:"index"`
	Tool        string  `json:"tool"`
	ToolInput   *Value  `json:"tool_input"`
	Observation *Value  `json:"observation"`
	Log         *string `json:"log,omitempty"`
}

// Trace is the ordered list of steps. Steps[i].Index == i always holds for
// traces built by this package.
type Trace struct {
	Steps []Step `json:"steps"`
}

// Len returns the number of steps.
func (t Trace) Len() int {
	return len(t.Steps)
}

// Clone returns a trace whose step slice does not alias t's.
func (t Trace) Clone() Trace {
	steps := make([]Step, len(t.Steps))
	copy(steps, t.Steps)
	return Trace{Steps: steps}
}

// Append returns a copy of t with a new step at the next ordinal.
func (t Trace) Append(tool string, input, observation *Value, log *string) Trace {
	out := Trace{Steps: make([]Step, len(t.Steps), len(t.Steps)+1)}
	copy(out.Steps, t.Steps)
	out.Steps = append(out.Steps, Step{
		Index:       len(t.Steps),
		Tool:        tool,
		ToolInput:   input,
		Observation: observation,
		Log:         log,
	})
	return out
}

// Observe returns a copy of t with the last step's observation set. It
// returns t unchanged when there are no steps.
func (t Trace) Observe(observation *Value) Trace {
	if len(t.Steps) == 0 {
		return t
	}
	out := t.Clone()
	last := &out.Steps[len(out.Steps)-1]
	if observation != nil {
		last.Observation = observation
	}
	return out
}

// Reindexed returns a copy with indices renumbered densely from zero.
func (t Trace) Reindexed() Trace {
	out := t.Clone()
	for i := range out.Steps {
		out.Steps[i].Index = i
	}
	return out
}
