package domain

import (
	"time"
)

// SessionState is a position in the session lifecycle.
type SessionState string

const (
	StateDisconnected SessionState = "disconnected"
	StateConnecting   SessionState = "connecting"
	StateActive       SessionState = "active"
	StateSubmitting   SessionState = "submitting"
	StateSubmitted    SessionState = "submitted"
)

// EventKind discriminates trace events. Values match the session store wire format.
type EventKind string

const (
	EventUserMessage  EventKind = "chat_user"
	EventCoachMessage EventKind = "chat_model"
	EventCheckpoint   EventKind = "checkpoint"
)

// TraceEvent is one immutable, timestamped record of session activity.
type TraceEvent struct {
	Kind      EventKind      `json:"type"`
	Timestamp time.Time      `json:"ts"`
	Payload   map[string]any `json:"payload"`
}

// NewMessageEvent builds a chat trace event carrying text.
func NewMessageEvent(kind EventKind, text string, at time.Time) TraceEvent {
	return TraceEvent{
		Kind:      kind,
		Timestamp: at.UTC(),
		Payload:   map[string]any{"text": text},
	}
}

// NewCheckpointEvent builds a checkpoint trace event with arbitrary structured data.
func NewCheckpointEvent(data map[string]any, at time.Time) TraceEvent {
	if data == nil {
		data = map[string]any{}
	}
	return TraceEvent{
		Kind:      EventCheckpoint,
		Timestamp: at.UTC(),
		Payload:   data,
	}
}

// Text returns the message text of a chat event, or "" for other payloads.
func (e TraceEvent) Text() string {
	if s, ok := e.Payload["text"].(string); ok {
		return s
	}
	return ""
}

// Role identifies the speaker of a chat turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleCoach Role = "model"
)

// Turn is one chat message kept for prompting and summarization.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// SessionSnapshot is the persisted form of the active session, used to
// resume after a process restart.
type SessionSnapshot struct {
	LocalID    string       `json:"localId"`
	SessionID  string       `json:"sessionId"`
	Assignment Assignment   `json:"assignment"`
	State      SessionState `json:"state"`
	Pending    []TraceEvent `json:"pending"`
	Transcript []Turn       `json:"transcript"`
	// MergedTurns is how many transcript turns have been folded into the profile.
	MergedTurns int       `json:"mergedTurns"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
