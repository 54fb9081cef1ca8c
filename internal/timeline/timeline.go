// Package timeline groups raw agent events into the steps shown on the
// exploratory timeline. Grouping is keyed by the step_id the agent assigns and
// is independent of the reducer's arrival-ordered trace.
package timeline

import (
	"encoding/json"
	"regexp"
	"sort"
	"strconv"

	"github.com/aegis-ops/console/internal/model"
)

// Step is one timeline group.
type Step struct {
	ID            string        `json:"id"`
	WorkflowStage model.Stage   `json:"workflow_stage"`
	Label         string        `json:"label"`
	Events        []model.Event `json:"-"`
}

// MarshalJSON renders the grouped events as the records the agent sent.
func (s Step) MarshalJSON() ([]byte, error) {
	records := make([]json.RawMessage, 0, len(s.Events))
	for _, ev := range s.Events {
		if raw := ev.Meta().Raw; len(raw) > 0 {
			records = append(records, raw)
		}
	}
	return json.Marshal(struct {
		ID            string            `json:"id"`
		WorkflowStage model.Stage       `json:"workflow_stage"`
		Label         string            `json:"label"`
		Events        []json.RawMessage `json:"events"`
	}{s.ID, s.WorkflowStage, s.Label, records})
}

// Timeline accumulates events by step identifier. It is not safe for
// concurrent use; the owning view serializes access.
type Timeline struct {
	steps map[string]*Step
	order []string
}

// New returns an empty timeline.
func New() *Timeline {
	return &Timeline{steps: make(map[string]*Step)}
}

// Reset drops every group.
func (t *Timeline) Reset() {
	t.steps = make(map[string]*Step)
	t.order = nil
}

// Add places ev in its group. A start event resets the timeline; final and
// end events, and events without a step identifier, are not grouped.
func (t *Timeline) Add(ev model.Event) {
	switch ev.Kind() {
	case model.EventStart:
		t.Reset()
		return
	case model.EventFinal, model.EventEnd:
		return
	}

	id := ev.Meta().StepID
	if id == "" {
		return
	}
	step, ok := t.steps[id]
	if !ok {
		stage := ev.Meta().WorkflowStage
		if stage == "" {
			stage = model.StageThinking
		}
		step = &Step{ID: id, WorkflowStage: stage}
		t.steps[id] = step
		t.order = append(t.order, id)
	}
	step.Events = append(step.Events, ev)
}

// Len returns the number of groups.
func (t *Timeline) Len() int {
	return len(t.order)
}

// Steps returns the groups in display order with labels resolved. The
// returned slices are copies.
func (t *Timeline) Steps() []Step {
	out := make([]Step, 0, len(t.order))
	for _, id := range t.order {
		s := t.steps[id]
		events := make([]model.Event, len(s.Events))
		copy(events, s.Events)
		out = append(out, Step{
			ID:            s.ID,
			WorkflowStage: s.WorkflowStage,
			Label:         label(s),
			Events:        events,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return ordinal(out[i].ID) < ordinal(out[j].ID)
	})
	return out
}

var trailingInt = regexp.MustCompile(`(\d+)$`)

// ordinal extracts the identifier's trailing integer; identifiers without
// one sort as 0.
func ordinal(id string) int {
	m := trailingInt.FindStringSubmatch(id)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

func label(s *Step) string {
	for _, ev := range s.Events {
		if a, ok := ev.(*model.ActionEvent); ok && a.Tool != "" {
			return a.Tool
		}
	}
	for _, ev := range s.Events {
		if ts, ok := ev.(*model.ToolStartEvent); ok && ts.Tool != "" {
			return ts.Tool
		}
	}
	for _, ev := range s.Events {
		if n, ok := ev.(*model.NoteEvent); ok && n.Note != "" {
			return n.Note
		}
	}
	for _, ev := range s.Events {
		if th, ok := ev.(*model.ThoughtEvent); ok && th.Thought != "" {
			return th.Thought
		}
	}
	return s.ID
}
