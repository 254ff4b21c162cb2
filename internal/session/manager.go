// Package session owns the coaching session lifecycle: connect, chat
// tracing, submit, and restore after a restart.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/codecoach/internal/coach"
	"github.com/ashureev/codecoach/internal/domain"
	"github.com/ashureev/codecoach/internal/profile"
	"github.com/ashureev/codecoach/internal/starter"
	"github.com/ashureev/codecoach/internal/trace"
	"github.com/ashureev/codecoach/internal/transcript"
	"github.com/google/uuid"
)

var (
	// ErrNoActiveSession is returned when an operation needs a session and none exists.
	ErrNoActiveSession = errors.New("no active assignment, open an assignment first")
	// ErrInvalidState is returned when an operation is not allowed in the current state.
	ErrInvalidState = errors.New("operation not allowed in current session state")
	// ErrSuperseded marks a result dropped because a newer session replaced the one it was for.
	ErrSuperseded = errors.New("session was replaced while the request was in flight")
	// ErrRetryable marks a submit that stopped part way; calling Submit again is safe.
	ErrRetryable = errors.New("submit incomplete, retry")
)

// AssignmentSource reads assignments.
type AssignmentSource interface {
	GetAssignment(ctx context.Context, id string) (*domain.Assignment, error)
}

// SessionStore is the remote session store.
type SessionStore interface {
	Start(ctx context.Context, assignmentID string) (string, error)
	AppendEvents(ctx context.Context, sessionID string, events []domain.TraceEvent) (int, error)
	Submit(ctx context.Context, sessionID string) error
}

// Coach produces replies and session summaries.
type Coach interface {
	Reply(ctx context.Context, req coach.Request) (string, error)
	Summarize(ctx context.Context, soFar domain.LearningProfile, transcript []domain.Turn) (*profile.Summary, error)
}

// Profiles reads and merges learning profiles.
type Profiles interface {
	Load(ctx context.Context, learnerID, courseID string) (domain.LearningProfile, error)
	Apply(ctx context.Context, learnerID, courseID string, partial profile.Partial) (*profile.Result, error)
}

// Installer installs starter bundles.
type Installer interface {
	Install(ctx context.Context, bundle domain.StarterBundle, assignmentID string) (*starter.Result, error)
	Resume(ctx context.Context) (*starter.Result, error)
}

// SnapshotStore persists the active session across restarts.
type SnapshotStore interface {
	GetSessionSnapshot(ctx context.Context) (*domain.SessionSnapshot, error)
	SaveSessionSnapshot(ctx context.Context, s *domain.SessionSnapshot) error
	ClearSessionSnapshot(ctx context.Context) error
}

// TurnLogger records chat turns.
type TurnLogger interface {
	Log(e transcript.Event)
}

// Deps are the collaborators of a Manager. Starter, Snapshots, Turns and
// Events are optional.
type Deps struct {
	Assignments    AssignmentSource
	Sessions       SessionStore
	Coach          Coach
	Profiles       Profiles
	Starter        Installer
	Snapshots      SnapshotStore
	Turns          TurnLogger
	Events         Events
	LearnerID      string
	FlushThreshold int
	Logger         *slog.Logger
}

// session is the single active coaching session.
type session struct {
	localID     string
	remoteID    string
	assignment  domain.Assignment
	state       domain.SessionState
	buffer      *trace.Buffer
	transcript  []domain.Turn
	mergedTurns int
	createdAt   time.Time
}

// StatusView is the externally visible session status.
type StatusView struct {
	State           domain.SessionState `json:"state"`
	LocalID         string              `json:"localId,omitempty"`
	SessionID       string              `json:"sessionId,omitempty"`
	AssignmentID    string              `json:"assignmentId,omitempty"`
	AssignmentTitle string              `json:"assignmentTitle,omitempty"`
	CourseID        string              `json:"courseId,omitempty"`
	Pending         int                 `json:"pendingEvents"`
	Turns           int                 `json:"turns"`
	Text            string              `json:"text"`
}

// Manager orchestrates one coaching session at a time. It is the only
// component that turns errors into user-facing notices.
type Manager struct {
	deps   Deps
	logger *slog.Logger
	now    func() time.Time

	mu         sync.Mutex
	events     Events
	current    *session
	generation uint64
	connecting bool
	// history is the chat shown to the coach; ClearChat empties it.
	history []domain.Turn
}

// NewManager creates a manager with no active session.
func NewManager(deps Deps) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.FlushThreshold <= 0 {
		deps.FlushThreshold = trace.DefaultFlushThreshold
	}
	events := deps.Events
	if events == nil {
		events = NopEvents{}
	}
	return &Manager{deps: deps, logger: deps.Logger, now: time.Now, events: events}
}

// SetEvents replaces the outbound event sink.
func (m *Manager) SetEvents(e Events) {
	if e == nil {
		e = NopEvents{}
	}
	m.mu.Lock()
	m.events = e
	m.mu.Unlock()
}

func (m *Manager) sink() Events {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events
}

// Connect fetches the assignment, starts a remote session and makes it the
// active session. A previous session is flushed best-effort and discarded.
// On failure the manager keeps whatever session it had before.
func (m *Manager) Connect(ctx context.Context, assignmentID string) (*domain.Assignment, error) {
	assignmentID = strings.TrimSpace(assignmentID)
	if assignmentID == "" {
		return nil, fmt.Errorf("%w: missing assignment id", domain.ErrValidation)
	}

	m.mu.Lock()
	m.generation++
	gen := m.generation
	m.connecting = true
	prev := m.current
	m.mu.Unlock()
	m.pushStatus()

	if prev != nil {
		if _, err := m.flush(ctx, prev); err != nil {
			m.logger.Warn("Best-effort flush of replaced session failed",
				"session_id", prev.remoteID, "pending", prev.buffer.Len(), "error", err)
		}
	}

	a, err := m.deps.Assignments.GetAssignment(ctx, assignmentID)
	if err == nil {
		var remoteID string
		remoteID, err = m.deps.Sessions.Start(ctx, a.ID)
		if err == nil {
			return m.activate(ctx, gen, a, remoteID)
		}
	}

	m.mu.Lock()
	if gen == m.generation {
		m.connecting = false
	}
	m.mu.Unlock()
	m.pushStatus()
	m.logger.Warn("Connect failed", "assignment_id", assignmentID, "error", err)
	return nil, fmt.Errorf("connect %s: %w", assignmentID, err)
}

func (m *Manager) activate(ctx context.Context, gen uint64, a *domain.Assignment, remoteID string) (*domain.Assignment, error) {
	s := &session{
		localID:    uuid.NewString(),
		remoteID:   remoteID,
		assignment: *a,
		state:      domain.StateActive,
		buffer:     trace.NewBuffer(m.deps.FlushThreshold),
		createdAt:  m.now().UTC(),
	}

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		m.logger.Warn("Dropping stale connect result", "assignment_id", a.ID, "session_id", remoteID)
		return nil, ErrSuperseded
	}
	m.current = s
	m.connecting = false
	m.mu.Unlock()

	m.persist(ctx)
	m.pushStatus()
	m.logger.Info("Session active",
		"assignment_id", a.ID, "session_id", remoteID, "local_id", s.localID)
	return a, nil
}

// OpenAssignment connects and then installs the assignment's starter files,
// if it ships any. Starter failures are reported as notices, not errors.
func (m *Manager) OpenAssignment(ctx context.Context, assignmentID string) (*domain.Assignment, error) {
	a, err := m.Connect(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	m.sink().Notice(LevelInfo, fmt.Sprintf("Opened %q.", a.Title))

	if a.HasStarter() && m.deps.Starter != nil {
		m.installStarter(ctx, a)
	}
	return a, nil
}

func (m *Manager) installStarter(ctx context.Context, a *domain.Assignment) {
	events := m.sink()
	res, err := m.deps.Starter.Install(ctx, *a.Starter, a.ID)
	switch {
	case err != nil:
		m.logger.Warn("Starter install failed", "assignment_id", a.ID, "error", err)
		events.Notice(LevelWarning, "Starter files could not be installed: "+err.Error())
	case res.Deferred:
		events.Notice(LevelInfo, "Starter files will be installed once "+res.Dest+" is open.")
	default:
		m.RecordCheckpoint(ctx, map[string]any{
			"event":      "starter_installed",
			"archiveRef": a.Starter.ArchiveRef,
			"files":      len(res.Files),
		})
		events.Notice(LevelInfo, fmt.Sprintf("Installed %d starter files into %s.", len(res.Files), res.Dest))
	}
}

// Activate restores the persisted session, if any, and resumes a pending
// starter installation. It runs once at process start.
func (m *Manager) Activate(ctx context.Context) error {
	if m.deps.Snapshots != nil {
		snap, err := m.deps.Snapshots.GetSessionSnapshot(ctx)
		if err != nil {
			m.logger.Warn("Failed to read session snapshot", "error", err)
		} else if snap != nil {
			m.restore(snap)
		}
	}
	m.pushStatus()
	return m.ResumeStarter(ctx)
}

// ResumeStarter completes a pending starter installation if a workspace
// folder is now open.
func (m *Manager) ResumeStarter(ctx context.Context) error {
	if m.deps.Starter == nil {
		return nil
	}
	res, err := m.deps.Starter.Resume(ctx)
	events := m.sink()
	switch {
	case err != nil:
		events.Notice(LevelWarning, "Pending starter installation failed: "+err.Error())
		return fmt.Errorf("resume starter installation: %w", err)
	case res != nil:
		events.Notice(LevelInfo, fmt.Sprintf("Installed %d starter files into %s.", len(res.Files), res.Dest))
	}
	return nil
}

func (m *Manager) restore(snap *domain.SessionSnapshot) {
	switch snap.State {
	case domain.StateActive, domain.StateSubmitting:
	default:
		return
	}

	s := &session{
		localID:     snap.LocalID,
		remoteID:    snap.SessionID,
		assignment:  snap.Assignment,
		state:       snap.State,
		buffer:      trace.NewBuffer(m.deps.FlushThreshold),
		transcript:  append([]domain.Turn(nil), snap.Transcript...),
		mergedTurns: snap.MergedTurns,
		createdAt:   snap.CreatedAt,
	}
	s.buffer.Restore(snap.Pending)

	m.mu.Lock()
	m.current = s
	m.history = append([]domain.Turn(nil), snap.Transcript...)
	m.mu.Unlock()
	m.logger.Info("Session restored",
		"assignment_id", s.assignment.ID, "session_id", s.remoteID, "state", s.state, "pending", len(snap.Pending))
}

// Status returns the current session status.
func (m *Manager) Status() StatusView {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

func (m *Manager) statusLocked() StatusView {
	s := m.current
	if m.connecting {
		v := StatusView{State: domain.StateConnecting, Text: "Connecting..."}
		if s != nil {
			v.AssignmentTitle = s.assignment.Title
		}
		return v
	}
	if s == nil {
		return StatusView{State: domain.StateDisconnected, Text: "Not connected. Open an assignment to start."}
	}

	v := StatusView{
		State:           s.state,
		LocalID:         s.localID,
		SessionID:       s.remoteID,
		AssignmentID:    s.assignment.ID,
		AssignmentTitle: s.assignment.Title,
		CourseID:        s.assignment.CourseID,
		Pending:         s.buffer.Len(),
		Turns:           len(s.transcript),
	}
	switch s.state {
	case domain.StateSubmitting:
		v.Text = "Submitting: " + s.assignment.Title
	case domain.StateSubmitted:
		v.Text = "Submitted: " + s.assignment.Title
	default:
		v.Text = "Active assignment: " + s.assignment.Title
	}
	return v
}

func (m *Manager) pushStatus() {
	m.mu.Lock()
	v := m.statusLocked()
	events := m.events
	m.mu.Unlock()
	events.Status(v)
}

// persist saves the active session snapshot. Failures are logged.
func (m *Manager) persist(ctx context.Context) {
	if m.deps.Snapshots == nil {
		return
	}
	m.mu.Lock()
	s := m.current
	if s == nil {
		m.mu.Unlock()
		return
	}
	if s.state == domain.StateSubmitted {
		id := s.remoteID
		m.mu.Unlock()
		// A submitted session has nothing left to resume.
		if err := m.deps.Snapshots.ClearSessionSnapshot(ctx); err != nil {
			m.logger.Warn("Failed to clear session snapshot", "session_id", id, "error", err)
		}
		return
	}
	snap := &domain.SessionSnapshot{
		LocalID:     s.localID,
		SessionID:   s.remoteID,
		Assignment:  s.assignment,
		State:       s.state,
		Pending:     s.buffer.Snapshot(),
		Transcript:  append([]domain.Turn(nil), s.transcript...),
		MergedTurns: s.mergedTurns,
		CreatedAt:   s.createdAt,
		UpdatedAt:   m.now().UTC(),
	}
	m.mu.Unlock()

	if err := m.deps.Snapshots.SaveSessionSnapshot(ctx, snap); err != nil {
		m.logger.Warn("Failed to persist session snapshot", "session_id", snap.SessionID, "error", err)
	}
}
