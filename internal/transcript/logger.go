// Package transcript writes an asynchronous NDJSON log of coaching turns.
package transcript

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

// Config controls the conversation log.
type Config struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Event is one logged chat turn.
type Event struct {
	Timestamp    time.Time `json:"ts"`
	LearnerID    string    `json:"learner_id"`
	SessionID    string    `json:"session_id"`
	AssignmentID string    `json:"assignment_id,omitempty"`
	Role         string    `json:"role"`
	Text         string    `json:"text"`
}

var unsafeSegment = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// Logger appends events to <dir>/<learner>/<session>.ndjson from a single
// background goroutine. Log never blocks: when the queue is full the event
// is dropped with a warning.
type Logger struct {
	cfg    Config
	logger *slog.Logger
	queue  chan Event
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewLogger starts the writer goroutine. A disabled config returns a logger
// whose Log is a no-op.
func NewLogger(cfg Config, logger *slog.Logger) (*Logger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Logger{cfg: cfg, logger: logger, done: make(chan struct{})}
	if !cfg.Enabled {
		close(l.done)
		return l, nil
	}

	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
		l.cfg.QueueSize = cfg.QueueSize
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create conversation log dir: %w", err)
	}
	l.queue = make(chan Event, cfg.QueueSize)
	go l.run()
	return l, nil
}

// Log enqueues e.
func (l *Logger) Log(e Event) {
	if l == nil || !l.cfg.Enabled {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- e:
	default:
		l.logger.Warn("Conversation log queue full, dropping event",
			"learner_id", e.LearnerID, "session_id", e.SessionID)
	}
}

// Close stops accepting events and waits for queued ones to be written.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	if !l.closed && l.cfg.Enabled {
		l.closed = true
		close(l.queue)
	}
	l.mu.Unlock()
	<-l.done
	return nil
}

func (l *Logger) run() {
	defer close(l.done)
	for e := range l.queue {
		if err := l.write(e); err != nil {
			l.logger.Warn("Failed to write conversation log", "session_id", e.SessionID, "error", err)
		}
	}
}

func (l *Logger) write(e Event) error {
	dir := filepath.Join(l.cfg.Dir, segment(e.LearnerID))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	line, err := json.Marshal(e)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(filepath.Join(dir, segment(e.SessionID)+".ndjson"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func segment(s string) string {
	s = unsafeSegment.ReplaceAllString(s, "_")
	if s == "" || s == "." || s == ".." {
		return "unknown"
	}
	return s
}
