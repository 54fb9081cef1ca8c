package model

import "time"

// ChatOpsResult is the answer to a natural-language log question.
type ChatOpsResult struct {
	Answer    string     `json:"answer"`
	UsedLogQL *string    `json:"used_logql"`
	Start     *time.Time `json:"start"`
	End       *time.Time `json:"end"`
}

// RCAResult is a root-cause analysis of a described fault.
type RCAResult struct {
	Summary          string   `json:"summary"`
	SuspectedService *string  `json:"suspected_service"`
	RootCause        *string  `json:"root_cause"`
	Evidence         []string `json:"evidence"`
	SuggestedActions []string `json:"suggested_actions"`
}

// PredictResult is a failure-risk prediction for one service.
type PredictResult struct {
	ServiceName    string   `json:"service_name"`
	RiskScore      float64  `json:"risk_score"`
	RiskLevel      string   `json:"risk_level"`
	LikelyFailures []string `json:"likely_failures"`
	Explanation    string   `json:"explanation"`
}

// Risk levels reported by the predict agent.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)
