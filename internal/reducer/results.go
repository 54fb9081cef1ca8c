package reducer

import (
	"github.com/aegis-ops/console/internal/model"
)

// Present fields in a final payload are authoritative even when falsy
// (0, "", []); absent or null fields keep the prior value.

// ChatOps adapts the reducer to natural-language log questions.
type ChatOps struct{}

func (ChatOps) Kind() model.Kind { return model.KindChatOps }

func (ChatOps) Zero(start *model.StartEvent) model.ChatOpsResult {
	var r model.ChatOpsResult
	if start != nil {
		r.Start, r.End = start.Start, start.End
	}
	return r
}

func (ChatOps) Merge(prior model.ChatOpsResult, final *model.FinalEvent) model.ChatOpsResult {
	out := prior
	final.Field("answer", &out.Answer)
	var logql string
	if final.Field("used_logql", &logql) {
		out.UsedLogQL = &logql
	}
	if t, ok := final.Time("start"); ok {
		out.Start = t
	}
	if t, ok := final.Time("end"); ok {
		out.End = t
	}
	return out
}

// RCA adapts the reducer to root-cause analyses.
type RCA struct{}

func (RCA) Kind() model.Kind { return model.KindRCA }

func (RCA) Zero(*model.StartEvent) model.RCAResult {
	return model.RCAResult{
		Evidence:         []string{},
		SuggestedActions: []string{},
	}
}

func (RCA) Merge(prior model.RCAResult, final *model.FinalEvent) model.RCAResult {
	out := prior
	final.Field("summary", &out.Summary)
	var service, cause string
	if final.Field("suspected_service", &service) {
		out.SuspectedService = &service
	}
	if final.Field("root_cause", &cause) {
		out.RootCause = &cause
	}
	var evidence, actions []string
	if final.Field("evidence", &evidence) {
		out.Evidence = nonNil(evidence)
	}
	if final.Field("suggested_actions", &actions) {
		out.SuggestedActions = nonNil(actions)
	}
	return out
}

// Predict adapts the reducer to failure-risk predictions.
type Predict struct{}

func (Predict) Kind() model.Kind { return model.KindPredict }

func (Predict) Zero(start *model.StartEvent) model.PredictResult {
	r := model.PredictResult{
		RiskLevel:      model.RiskLow,
		LikelyFailures: []string{},
	}
	if start != nil {
		r.ServiceName = start.ServiceName
	}
	return r
}

func (Predict) Merge(prior model.PredictResult, final *model.FinalEvent) model.PredictResult {
	out := prior
	final.Field("service_name", &out.ServiceName)
	final.Field("risk_score", &out.RiskScore)
	final.Field("risk_level", &out.RiskLevel)
	final.Field("explanation", &out.Explanation)
	var failures []string
	if final.Field("likely_failures", &failures) {
		out.LikelyFailures = nonNil(failures)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
