package session

import "github.com/ashureev/codecoach/internal/domain"

// Notice levels.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Events receives the outbound pushes consumed by the host UI shell.
type Events interface {
	// Status replaces the connection/session summary line.
	Status(view StatusView)
	// Message appends a chat bubble.
	Message(role domain.Role, text string)
	// Busy toggles the thinking indicator.
	Busy(busy bool)
	// Notice shows a transient user-facing message.
	Notice(level, text string)
	// Document shows a rendered Markdown document.
	Document(title, markdown string)
}

// NopEvents discards every event.
type NopEvents struct{}

func (NopEvents) Status(StatusView)           {}
func (NopEvents) Message(domain.Role, string) {}
func (NopEvents) Busy(bool)                   {}
func (NopEvents) Notice(string, string)       {}
func (NopEvents) Document(string, string)     {}
