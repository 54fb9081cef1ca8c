package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/aegis-ops/console/internal/conversation"
	"github.com/aegis-ops/console/internal/model"
)

const maxValueWidth = 160

// renderer prints the growth of a view incrementally: new reasoning text,
// then each new tool call and each observation once it arrives.
type renderer[R any] struct {
	w      io.Writer
	result func(io.Writer, R)

	gen       uint64
	reasoning int
	steps     int
	observed  map[int]bool
}

func newRenderer[R any](w io.Writer, result func(io.Writer, R)) *renderer[R] {
	return &renderer[R]{w: w, result: result, observed: make(map[int]bool)}
}

func (r *renderer[R]) render(snap conversation.Snapshot[R]) {
	st := snap.State
	if snap.Generation != r.gen || len(st.Reasoning) < r.reasoning {
		r.gen = snap.Generation
		r.reasoning = 0
		r.steps = 0
		r.observed = make(map[int]bool)
	}
	// A final trace can replace the streamed one.
	if len(st.Trace.Steps) < r.steps {
		r.steps = 0
		r.observed = make(map[int]bool)
	}

	if len(st.Reasoning) > r.reasoning {
		fmt.Fprint(r.w, st.Reasoning[r.reasoning:])
		r.reasoning = len(st.Reasoning)
	}

	for ; r.steps < len(st.Trace.Steps); r.steps++ {
		step := st.Trace.Steps[r.steps]
		fmt.Fprintf(r.w, "\n[%d] %s %s\n", step.Index+1, step.Tool, clip(step.ToolInput))
	}
	for i, step := range st.Trace.Steps {
		if step.Observation == nil || r.observed[i] {
			continue
		}
		r.observed[i] = true
		fmt.Fprintf(r.w, "    -> %s\n", clip(step.Observation))
	}
}

// summary prints the outcome and the kind-specific result.
func (r *renderer[R]) summary(snap conversation.Snapshot[R]) {
	st := snap.State
	fmt.Fprintf(r.w, "\n--- %s (%d steps)\n", st.Phase, len(st.Trace.Steps))
	if st.Failure != nil {
		fmt.Fprintf(r.w, "failure: %s\n", st.Failure.Error())
	}
	r.result(r.w, st.Result)
}

func clip(v *model.Value) string {
	s := strings.Join(strings.Fields(v.Text()), " ")
	if len(s) > maxValueWidth {
		return s[:maxValueWidth] + "..."
	}
	return s
}

func printChatOps(w io.Writer, res model.ChatOpsResult) {
	if res.Answer != "" {
		fmt.Fprintf(w, "\n%s\n", res.Answer)
	}
	if res.UsedLogQL != nil {
		fmt.Fprintf(w, "logql: %s\n", *res.UsedLogQL)
	}
	if res.Start != nil && res.End != nil {
		fmt.Fprintf(w, "window: %s .. %s\n", res.Start.Format("2006-01-02 15:04:05Z07:00"), res.End.Format("2006-01-02 15:04:05Z07:00"))
	}
}

func printRCA(w io.Writer, res model.RCAResult) {
	if res.Summary != "" {
		fmt.Fprintf(w, "\n%s\n", res.Summary)
	}
	if res.SuspectedService != nil {
		fmt.Fprintf(w, "suspected service: %s\n", *res.SuspectedService)
	}
	if res.RootCause != nil {
		fmt.Fprintf(w, "root cause: %s\n", *res.RootCause)
	}
	printList(w, "evidence", res.Evidence)
	printList(w, "suggested actions", res.SuggestedActions)
}

func printPredict(w io.Writer, res model.PredictResult) {
	if res.ServiceName == "" {
		return
	}
	fmt.Fprintf(w, "\n%s: risk %.2f (%s)\n", res.ServiceName, res.RiskScore, res.RiskLevel)
	printList(w, "likely failures", res.LikelyFailures)
	if res.Explanation != "" {
		fmt.Fprintln(w, res.Explanation)
	}
}

func printList(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", title)
	for _, it := range items {
		fmt.Fprintf(w, "  - %s\n", it)
	}
}
