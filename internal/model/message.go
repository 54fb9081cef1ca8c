package model

import (
	"time"
)

// SSE event names the console writes to operators watching a view.
const (
	MessageConnected = "connected"
	MessageSnapshot  = "snapshot"
	MessageHeartbeat = "heartbeat"
	MessageError     = "error"
	MessageDone      = "done"
)

// ConnectedMessage opens an operator stream.
type ConnectedMessage struct {
	ViewID     string `json:"view_id"`
	Kind       Kind   `json:"kind"`
	SessionID  string `json:"session_id"`
	Generation uint64 `json:"generation"`
}

// ErrorMessage reports a failure of the operator stream itself, as opposed to
// a failure of the agent conversation, which travels inside snapshots.
type ErrorMessage struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// HeartbeatMessage keeps an idle operator stream open.
type HeartbeatMessage struct {
	Timestamp time.Time `json:"timestamp"`
}

// DoneMessage closes an operator stream once the conversation stops.
type DoneMessage struct {
	Phase      string `json:"phase"`
	Generation uint64 `json:"generation"`
	Superseded bool   `json:"superseded,omitempty"`
}
