package agentsim

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"time"

	"github.com/aegis-ops/console/internal/model"
)

// toolCall is one simulated tool invocation.
type toolCall struct {
	thought     string
	tool        string
	input       any
	observation any
}

// scenario is everything the agent does for one request.
type scenario struct {
	start  record
	calls  []toolCall
	note   string
	answer string
	final  record
}

// traceStep mirrors the agent's own trace shape; it carries no index.
type traceStep struct {
	Tool        string  `json:"tool"`
	ToolInput   any     `json:"tool_input"`
	Observation any     `json:"observation"`
	Log         *string `json:"log"`
}

func (s *scenario) trace() map[string]any {
	steps := make([]traceStep, 0, len(s.calls))
	for _, c := range s.calls {
		log := actionLog(c)
		steps = append(steps, traceStep{
			Tool:        c.tool,
			ToolInput:   c.input,
			Observation: c.observation,
			Log:         &log,
		})
	}
	return map[string]any{"steps": steps}
}

func actionLog(c toolCall) string {
	return fmt.Sprintf("Thought: %s\nAction: %s\nAction Input: %s", c.thought, c.tool, stringify(c.input))
}

// stringify renders a tool value the way the agent's callbacks do.
func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

func buildScenario(req model.Request, now time.Time) (*scenario, error) {
	switch r := req.(type) {
	case *model.ChatOpsRequest:
		return chatopsScenario(r, now), nil
	case *model.RCARequest:
		return rcaScenario(r), nil
	case *model.PredictRequest:
		return predictScenario(r), nil
	default:
		return nil, fmt.Errorf("unsupported request %T", req)
	}
}

var wordPattern = regexp.MustCompile(`[A-Za-z][A-Za-z0-9_-]{3,}`)

var stopWords = map[string]bool{
	"what": true, "when": true, "where": true, "which": true, "were": true, "there": true,
	"show": true, "last": true, "from": true, "with": true, "have": true, "does": true,
	"logs": true, "many": true, "about": true, "this": true, "that": true, "minutes": true,
}

// keyword picks the first meaningful word of s.
func keyword(s string) string {
	for _, w := range wordPattern.FindAllString(s, -1) {
		lw := strings.ToLower(w)
		if !stopWords[lw] {
			return lw
		}
	}
	return ""
}

// serviceIn finds a service-like token ("checkout-service", "payments-api").
var servicePattern = regexp.MustCompile(`[a-z0-9]+(?:-[a-z0-9]+)*-(?:service|svc|api|gateway|worker)`)

func serviceIn(s string) string {
	if m := servicePattern.FindString(strings.ToLower(s)); m != "" {
		return m
	}
	return "checkout-service"
}

func score(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(s))))
	return h.Sum32()
}

func chatopsScenario(r *model.ChatOpsRequest, now time.Time) *scenario {
	end := now.UTC()
	start := end.Add(-model.DefaultLastMinutes * time.Minute)
	if tr := r.TimeRange; tr != nil {
		switch {
		case tr.LastMinutes != nil:
			start = end.Add(-time.Duration(*tr.LastMinutes) * time.Minute)
		case tr.Start != nil && tr.End != nil:
			start, end = tr.Start.UTC(), tr.End.UTC()
		}
	}

	logql := `{service_name=~".+"}`
	if kw := keyword(r.Question); kw != "" {
		logql += fmt.Sprintf(` |~ "(?i)%s"`, kw)
	}
	lines := int(score(r.Question) % 200)

	input := map[string]any{
		"logql": logql,
		"start": start.Format(time.RFC3339),
		"end":   end.Format(time.RFC3339),
		"limit": 200,
	}
	observation := fmt.Sprintf("%d lines matched %s", lines, logql)

	answer := fmt.Sprintf("Found %d matching log lines between %s and %s.",
		lines, start.Format(time.RFC3339), end.Format(time.RFC3339))

	return &scenario{
		start: record{
			"start": start.Format(time.RFC3339),
			"end":   end.Format(time.RFC3339),
		},
		calls: []toolCall{
			{
				thought:     "List the services that currently ship logs.",
				tool:        "loki_label_values",
				input:       stringify(map[string]any{"label": "service_name"}),
				observation: "checkout-service, payments-api, inventory-worker",
			},
			{
				thought:     "Query Loki for the lines the question is about.",
				tool:        "loki_query_range_lines",
				input:       stringify(input),
				observation: observation,
			},
		},
		answer: answer,
		final: record{
			"answer":     answer,
			"used_logql": logql,
			"start":      start.Format(time.RFC3339),
			"end":        end.Format(time.RFC3339),
		},
	}
}

func rcaScenario(r *model.RCARequest) *scenario {
	service := serviceIn(r.Description)
	start, end := r.TimeRange.Start.UTC(), r.TimeRange.End.UTC()
	errRate := float64(score(r.Description)%40+10) / 100

	promInput := map[string]any{
		"query": `sum by (service) (rate(http_requests_total{status=~"5.."}[5m]))`,
		"start": start.Format(time.RFC3339),
		"end":   end.Format(time.RFC3339),
		"step":  "60s",
	}
	promObs := map[string]any{
		"series": []map[string]any{
			{"service": service, "peak_error_rate": errRate},
			{"service": "frontend", "peak_error_rate": errRate / 4},
		},
	}
	jaegerInput := map[string]any{"service": service, "tags": map[string]string{"error": "true"}, "limit": 20}
	jaegerObs := fmt.Sprintf("%d error traces; slowest span %s db.query 2.4s", score(service)%20+3, service)

	cause := fmt.Sprintf("Database connection pool exhaustion in %s", service)
	evidence := []string{
		fmt.Sprintf("5xx rate of %s peaked at %.0f%%", service, errRate*100),
		fmt.Sprintf("error traces in %s end in db.query timeouts", service),
	}
	actions := []string{
		fmt.Sprintf("Raise the connection pool limit of %s", service),
		"Add a timeout and circuit breaker around db.query",
	}
	summary := fmt.Sprintf("%s is the most likely origin of the fault: %s.", service, strings.ToLower(cause[:1])+cause[1:])

	return &scenario{
		start: record{
			"start": start.Format(time.RFC3339),
			"end":   end.Format(time.RFC3339),
		},
		calls: []toolCall{
			{
				thought:     "Compare 5xx rates across services in the window.",
				tool:        "prometheus_query_range",
				input:       stringify(promInput),
				observation: stringify(promObs),
			},
			{
				thought:     fmt.Sprintf("Inspect error traces of %s.", service),
				tool:        "jaeger_query_traces",
				input:       stringify(jaegerInput),
				observation: jaegerObs,
			},
			{
				thought:     "Collect the evidence into a finding.",
				tool:        "rca_collect_evidence",
				input:       stringify(map[string]any{"service": service}),
				observation: stringify(map[string]any{"evidence": evidence}),
			},
		},
		answer: summary,
		final: record{
			"summary":           summary,
			"suspected_service": service,
			"root_cause":        cause,
			"evidence":          evidence,
			"suggested_actions": actions,
		},
	}
}

func predictScenario(r *model.PredictRequest) *scenario {
	h := score(r.ServiceName)
	risk := float64(h%100) / 100
	level := model.RiskLow
	var failures []string
	switch {
	case risk >= 0.7:
		level = model.RiskHigh
		failures = []string{"OOM kill under peak load", "latency SLO breach"}
	case risk >= 0.4:
		level = model.RiskMedium
		failures = []string{"latency SLO breach"}
	default:
		failures = []string{}
	}

	features := map[string]any{
		"error_rate":     float64(h%50) / 1000,
		"p95_latency_ms": 120 + h%400,
		"restarts":       h % 4,
	}
	explanation := fmt.Sprintf("Risk %.2f (%s) for %s over the last %dh: p95 latency %dms, %d restarts.",
		risk, level, r.ServiceName, r.LookbackHours, features["p95_latency_ms"], features["restarts"])

	return &scenario{
		start: record{
			"service_name":   r.ServiceName,
			"lookback_hours": r.LookbackHours,
		},
		calls: []toolCall{
			{
				thought:     fmt.Sprintf("Collect health features of %s.", r.ServiceName),
				tool:        "predict_collect_features",
				input:       map[string]any{"service_name": r.ServiceName, "lookback_hours": r.LookbackHours},
				observation: features,
			},
		},
		note:   fmt.Sprintf("features collected for %s", r.ServiceName),
		answer: explanation,
		final: record{
			"service_name":    r.ServiceName,
			"risk_score":      risk,
			"risk_level":      level,
			"likely_failures": failures,
			"explanation":     explanation,
		},
	}
}
