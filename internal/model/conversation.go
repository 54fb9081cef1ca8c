// Package model defines the wire and domain types shared by the console.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Kind identifies one of the conversation types the console drives.
type Kind string

const (
	KindChatOps Kind = "chatops"
	KindRCA     Kind = "rca"
	KindPredict Kind = "predict"
)

// Kinds lists every conversation kind.
var Kinds = []Kind{KindChatOps, KindRCA, KindPredict}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown conversation kind %q", s)
}

// StreamPath is the agent endpoint that streams events for this kind.
func (k Kind) StreamPath() string {
	return k.SyncPath() + "/stream"
}

// SyncPath is the non-streaming fallback endpoint for this kind.
func (k Kind) SyncPath() string {
	switch k {
	case KindChatOps:
		return "/api/chatops/query"
	case KindRCA:
		return "/api/rca/analyze"
	case KindPredict:
		return "/api/predict/run"
	default:
		return "/api/" + string(k)
	}
}

// Request is a domain-specific request body sent to an agent.
type Request interface {
	Kind() Kind
	Validate() error
	Session() string
	SetSessionID(id string)
}

// NewRequest returns an empty request of kind k, ready to be decoded into.
func NewRequest(k Kind) (Request, error) {
	switch k {
	case KindChatOps:
		return &ChatOpsRequest{}, nil
	case KindRCA:
		return &RCARequest{}, nil
	case KindPredict:
		return &PredictRequest{}, nil
	default:
		return nil, fmt.Errorf("unknown conversation kind %q", k)
	}
}

const (
	maxQuestionLen    = 2000
	maxDescriptionLen = 4000
	maxServiceNameLen = 200
	maxSessionIDLen   = 200
	maxLastMinutes    = 24 * 60
	maxLookbackHours  = 30 * 24

	// DefaultLookbackHours is used when a Predict request leaves it unset.
	DefaultLookbackHours = 24
	// DefaultLastMinutes is used when a ChatOps request has no time range.
	DefaultLastMinutes = 30
)

// TimeRange is either a relative window (LastMinutes) or an absolute one.
type TimeRange struct {
	Start       *time.Time `json:"start,omitempty"`
	End         *time.Time `json:"end,omitempty"`
	LastMinutes *int       `json:"last_minutes,omitempty"`
}

// LastMinutes builds a relative time range.
func LastMinutes(n int) *TimeRange {
	return &TimeRange{LastMinutes: &n}
}

// Between builds an absolute time range.
func Between(start, end time.Time) *TimeRange {
	s, e := start.UTC(), end.UTC()
	return &TimeRange{Start: &s, End: &e}
}

func (tr *TimeRange) validate(requireAbsolute bool) error {
	if tr == nil {
		if requireAbsolute {
			return errors.New("time range is required")
		}
		return nil
	}
	if tr.LastMinutes != nil && !requireAbsolute {
		if *tr.LastMinutes < 1 || *tr.LastMinutes > maxLastMinutes {
			return fmt.Errorf("last_minutes must be between 1 and %d", maxLastMinutes)
		}
		return nil
	}
	if tr.Start == nil || tr.End == nil {
		return errors.New("time range needs start and end")
	}
	if !tr.End.After(*tr.Start) {
		return errors.New("time range end must be after start")
	}
	return nil
}

// ChatOpsRequest asks a natural-language question about logs.
type ChatOpsRequest struct {
	Question  string     `json:"question"`
	TimeRange *TimeRange `json:"time_range,omitempty"`
	SessionID string     `json:"session_id,omitempty"`
}

func (r *ChatOpsRequest) Kind() Kind             { return KindChatOps }
func (r *ChatOpsRequest) SetSessionID(id string) { r.SessionID = id }
func (r *ChatOpsRequest) Session() string        { return r.SessionID }

// Validate checks the request against the agent's input limits and applies
// the default window.
func (r *ChatOpsRequest) Validate() error {
	if err := validateText("question", r.Question, maxQuestionLen); err != nil {
		return err
	}
	if err := validateSessionID(r.SessionID); err != nil {
		return err
	}
	if r.TimeRange == nil {
		r.TimeRange = LastMinutes(DefaultLastMinutes)
	}
	return r.TimeRange.validate(false)
}

// RCARequest asks for a root-cause analysis of a described fault.
type RCARequest struct {
	Description string     `json:"description"`
	TimeRange   *TimeRange `json:"time_range"`
	SessionID   string     `json:"session_id,omitempty"`
}

func (r *RCARequest) Kind() Kind             { return KindRCA }
func (r *RCARequest) SetSessionID(id string) { r.SessionID = id }
func (r *RCARequest) Session() string        { return r.SessionID }

// Validate checks the request against the agent's input limits.
func (r *RCARequest) Validate() error {
	if err := validateText("description", r.Description, maxDescriptionLen); err != nil {
		return err
	}
	if err := validateSessionID(r.SessionID); err != nil {
		return err
	}
	return r.TimeRange.validate(true)
}

// PredictRequest asks for a failure-risk prediction for a service.
type PredictRequest struct {
	ServiceName   string `json:"service_name"`
	LookbackHours int    `json:"lookback_hours"`
	SessionID     string `json:"session_id,omitempty"`
}

func (r *PredictRequest) Kind() Kind             { return KindPredict }
func (r *PredictRequest) SetSessionID(id string) { r.SessionID = id }
func (r *PredictRequest) Session() string        { return r.SessionID }

// Validate checks the request against the agent's input limits and applies
// the default lookback.
func (r *PredictRequest) Validate() error {
	if err := validateText("service_name", r.ServiceName, maxServiceNameLen); err != nil {
		return err
	}
	if err := validateSessionID(r.SessionID); err != nil {
		return err
	}
	if r.LookbackHours == 0 {
		r.LookbackHours = DefaultLookbackHours
	}
	if r.LookbackHours < 1 || r.LookbackHours > maxLookbackHours {
		return fmt.Errorf("lookback_hours must be between 1 and %d", maxLookbackHours)
	}
	return nil
}

func validateText(field, value string, max int) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s cannot be empty", field)
	}
	if !utf8.ValidString(value) {
		return fmt.Errorf("%s must be valid UTF-8", field)
	}
	if utf8.RuneCountInString(value) > max {
		return fmt.Errorf("%s exceeds maximum length of %d", field, max)
	}
	return nil
}

func validateSessionID(id string) error {
	if len(id) > maxSessionIDLen {
		return errors.New("session_id exceeds maximum length")
	}
	return nil
}
