package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/codecoach/internal/coach"
	"github.com/ashureev/codecoach/internal/domain"
	"github.com/ashureev/codecoach/internal/transcript"
)

// RecordUserTurn traces a learner message in the active session.
func (m *Manager) RecordUserTurn(ctx context.Context, text string) {
	m.record(ctx, domain.NewMessageEvent(domain.EventUserMessage, text, m.now()), &domain.Turn{Role: domain.RoleUser, Text: text})
}

// RecordCoachTurn traces a coach message in the active session.
func (m *Manager) RecordCoachTurn(ctx context.Context, text string) {
	m.record(ctx, domain.NewMessageEvent(domain.EventCoachMessage, text, m.now()), &domain.Turn{Role: domain.RoleCoach, Text: text})
}

// RecordCheckpoint traces structured, non-chat activity such as a starter
// installation. It does not enter the transcript.
func (m *Manager) RecordCheckpoint(ctx context.Context, data map[string]any) {
	m.record(ctx, domain.NewCheckpointEvent(data, m.now()), nil)
}

// record appends an event. Without an active session it only logs. A full
// buffer is flushed automatically; failures there are logged and the events
// stay buffered.
func (m *Manager) record(ctx context.Context, ev domain.TraceEvent, turn *domain.Turn) {
	m.mu.Lock()
	s := m.current
	if s == nil || (s.state != domain.StateActive && s.state != domain.StateSubmitting) {
		m.mu.Unlock()
		m.logger.Debug("No active session, event not traced", "kind", ev.Kind)
		return
	}
	s.buffer.Append(ev)
	if turn != nil {
		s.transcript = append(s.transcript, *turn)
	}
	m.mu.Unlock()

	if s.buffer.ShouldFlush() {
		if n, err := m.flush(ctx, s); err != nil {
			m.logger.Warn("Automatic trace flush failed, keeping events",
				"session_id", s.remoteID, "pending", s.buffer.Len(), "error", err)
		} else {
			m.logger.Debug("Automatic trace flush", "session_id", s.remoteID, "sent", n)
		}
	}
	m.persist(ctx)
}

// Flush sends the active session's buffered events.
func (m *Manager) Flush(ctx context.Context) (int, error) {
	m.mu.Lock()
	s := m.current
	m.mu.Unlock()
	if s == nil {
		return 0, ErrNoActiveSession
	}
	n, err := m.flush(ctx, s)
	m.persist(ctx)
	return n, err
}

func (m *Manager) flush(ctx context.Context, s *session) (int, error) {
	return s.buffer.Flush(ctx, func(ctx context.Context, batch []domain.TraceEvent) error {
		_, err := m.deps.Sessions.AppendEvents(ctx, s.remoteID, batch)
		return err
	})
}

// Chat answers one learner message. It works without a session; the coach
// is then told there is no active assignment.
func (m *Manager) Chat(ctx context.Context, text, editorContext string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty message", domain.ErrValidation)
	}

	events := m.sink()
	events.Message(domain.RoleUser, text)
	events.Busy(true)
	defer events.Busy(false)

	m.mu.Lock()
	prior := append([]domain.Turn(nil), m.history...)
	m.history = append(m.history, domain.Turn{Role: domain.RoleUser, Text: text})
	var assignment *domain.Assignment
	if s := m.current; s != nil {
		a := s.assignment
		assignment = &a
	}
	m.mu.Unlock()

	m.RecordUserTurn(ctx, text)
	m.logTurn(domain.RoleUser, text)

	if m.deps.Coach == nil {
		err := coach.ErrNoModel
		events.Notice(LevelError, err.Error())
		return "", err
	}
	reply, err := m.deps.Coach.Reply(ctx, coach.Request{
		Assignment:    assignment,
		History:       prior,
		EditorContext: editorContext,
		Message:       text,
	})
	if err != nil {
		m.logger.Warn("Coach reply failed", "error", err)
		events.Notice(LevelError, "Coach error: "+err.Error())
		return "", err
	}

	m.mu.Lock()
	m.history = append(m.history, domain.Turn{Role: domain.RoleCoach, Text: reply})
	m.mu.Unlock()

	m.RecordCoachTurn(ctx, reply)
	m.logTurn(domain.RoleCoach, reply)
	events.Message(domain.RoleCoach, reply)
	return reply, nil
}

// ClearChat forgets the chat shown to the coach. The session transcript
// used for summaries and the trace buffer are untouched.
func (m *Manager) ClearChat() {
	m.mu.Lock()
	m.history = nil
	events := m.events
	m.mu.Unlock()
	events.Notice(LevelInfo, "Chat cleared for this session.")
}

// History returns the chat currently shown to the coach.
func (m *Manager) History() []domain.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Turn(nil), m.history...)
}

func (m *Manager) logTurn(role domain.Role, text string) {
	if m.deps.Turns == nil {
		return
	}
	m.mu.Lock()
	e := transcript.Event{
		Timestamp: m.now().UTC(),
		LearnerID: m.deps.LearnerID,
		SessionID: "no-session",
		Role:      string(role),
		Text:      text,
	}
	if s := m.current; s != nil {
		e.SessionID = s.localID
		e.AssignmentID = s.assignment.ID
	}
	m.mu.Unlock()
	m.deps.Turns.Log(e)
}

// userMessage renders err for a notice.
func userMessage(err error) string {
	switch {
	case errors.Is(err, ErrNoActiveSession):
		return err.Error()
	case errors.Is(err, domain.ErrAuth):
		return "Permission denied: " + err.Error()
	case errors.Is(err, domain.ErrNetwork):
		return "Network error, try again: " + err.Error()
	default:
		return err.Error()
	}
}
