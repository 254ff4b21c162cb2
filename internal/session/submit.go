package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashureev/codecoach/internal/coach"
	"github.com/ashureev/codecoach/internal/domain"
	"github.com/ashureev/codecoach/internal/profile"
)

// Submit flushes buffered events, merges the session into the learning
// profile and marks the remote session submitted. A failure part way leaves
// the session Submitting and returns ErrRetryable; calling Submit again
// resumes without re-sending flushed events or re-merging merged turns.
func (m *Manager) Submit(ctx context.Context) error {
	m.mu.Lock()
	s := m.current
	switch {
	case s == nil:
		m.mu.Unlock()
		return ErrNoActiveSession
	case s.state == domain.StateSubmitted:
		m.mu.Unlock()
		return nil
	case s.state != domain.StateActive && s.state != domain.StateSubmitting:
		m.mu.Unlock()
		return fmt.Errorf("%w: submit from %s", ErrInvalidState, s.state)
	}
	s.state = domain.StateSubmitting
	m.mu.Unlock()
	m.persist(ctx)
	m.pushStatus()

	if n, err := m.flush(ctx, s); err != nil {
		m.persist(ctx)
		return fmt.Errorf("%w: flush events: %w", ErrRetryable, err)
	} else if n > 0 {
		m.logger.Info("Flushed trace events", "session_id", s.remoteID, "sent", n)
	}

	if _, _, err := m.mergeSession(ctx, s); err != nil {
		return fmt.Errorf("%w: %w", ErrRetryable, err)
	}

	if err := m.deps.Sessions.Submit(ctx, s.remoteID); err != nil {
		return fmt.Errorf("%w: mark submitted: %w", ErrRetryable, err)
	}

	m.mu.Lock()
	if m.current != s {
		m.mu.Unlock()
		return ErrSuperseded
	}
	s.state = domain.StateSubmitted
	m.mu.Unlock()
	m.persist(ctx)
	m.pushStatus()

	m.logger.Info("Session submitted", "session_id", s.remoteID, "assignment_id", s.assignment.ID)
	m.sink().Notice(LevelInfo, "Submitted learning process (events uploaded and session submitted).")
	return nil
}

// mergeSession folds the turns of s not yet merged into the learner's
// profile. It returns nil results when there was nothing new to merge.
func (m *Manager) mergeSession(ctx context.Context, s *session) (*profile.Summary, *profile.Result, error) {
	m.mu.Lock()
	turns := append([]domain.Turn(nil), s.transcript...)
	already := s.mergedTurns
	courseID := s.assignment.CourseID
	m.mu.Unlock()

	if len(turns) <= already {
		return nil, nil, nil
	}

	summary, res, err := m.summarizeAndMerge(ctx, courseID, turns)
	if errors.Is(err, coach.ErrNoModel) {
		m.logger.Warn("No model configured, submitting without a learning summary", "session_id", s.remoteID)
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	m.mu.Lock()
	if m.current != s {
		m.mu.Unlock()
		return nil, nil, ErrSuperseded
	}
	s.mergedTurns = len(turns)
	m.mu.Unlock()
	m.persist(ctx)
	return summary, res, nil
}

func (m *Manager) summarizeAndMerge(ctx context.Context, courseID string, turns []domain.Turn) (*profile.Summary, *profile.Result, error) {
	if m.deps.Coach == nil {
		return nil, nil, coach.ErrNoModel
	}
	soFar, err := m.deps.Profiles.Load(ctx, m.deps.LearnerID, "")
	if err != nil {
		return nil, nil, err
	}
	summary, err := m.deps.Coach.Summarize(ctx, soFar, turns)
	if err != nil {
		return nil, nil, err
	}
	res, err := m.deps.Profiles.Apply(ctx, m.deps.LearnerID, courseID, summary.Update)
	if err != nil {
		return nil, nil, fmt.Errorf("merge profile: %w", err)
	}
	return summary, res, nil
}

// ExportSummary summarizes the chat, merges it into the profile and returns
// the learning summary as Markdown. With an active session the session
// transcript is used, otherwise the current chat.
func (m *Manager) ExportSummary(ctx context.Context) (string, error) {
	m.mu.Lock()
	s := m.current
	turns := append([]domain.Turn(nil), m.history...)
	courseID := ""
	if s != nil && len(s.transcript) > 0 {
		turns = append([]domain.Turn(nil), s.transcript...)
		courseID = s.assignment.CourseID
	} else {
		s = nil
	}
	m.mu.Unlock()

	if len(turns) == 0 {
		return "", fmt.Errorf("%w: no chat history yet in this session", domain.ErrValidation)
	}

	events := m.sink()
	events.Busy(true)
	defer events.Busy(false)

	// Always summarize afresh, even when every turn is already merged.
	summary, res, err := m.summarizeAndMerge(ctx, courseID, turns)
	if err != nil {
		return "", fmt.Errorf("export summary: %w", err)
	}
	if s != nil {
		m.mu.Lock()
		if m.current == s && s.mergedTurns < len(turns) {
			s.mergedTurns = len(turns)
		}
		m.mu.Unlock()
		m.persist(ctx)
	}

	md := profile.RenderMarkdown(&summary.Session, res.Overall)
	events.Document("CodeCoach Learning Summary", md)
	return md, nil
}
