package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/ashureev/codecoach/internal/domain"
)

// Toolbar commands accepted by RunCommand.
const (
	CmdOpenAssignment = "openAssignment"
	CmdSubmit         = "submit"
	CmdClearChat      = "clearChat"
	CmdExportSummary  = "exportSummary"
	CmdInstallStarter = "installStarter"
)

// RunCommand dispatches a toolbar command from the UI shell. Failures are
// reported to the shell as notices and returned.
func (m *Manager) RunCommand(ctx context.Context, name, arg string) error {
	var err error
	switch name {
	case CmdOpenAssignment:
		_, err = m.OpenAssignment(ctx, arg)
	case CmdSubmit:
		err = m.Submit(ctx)
	case CmdClearChat:
		m.ClearChat()
	case CmdExportSummary:
		_, err = m.ExportSummary(ctx)
	case CmdInstallStarter:
		err = m.reinstallStarter(ctx)
	default:
		err = fmt.Errorf("%w: unknown command %q", domain.ErrValidation, name)
	}

	if err != nil {
		m.logger.Warn("Command failed", "command", name, "kind", domain.KindOf(err), "error", err)
		m.sink().Notice(LevelError, userMessage(err))
	}
	return err
}

func (m *Manager) reinstallStarter(ctx context.Context) error {
	m.mu.Lock()
	s := m.current
	m.mu.Unlock()
	if s == nil {
		return ErrNoActiveSession
	}
	if !s.assignment.HasStarter() {
		return fmt.Errorf("%w: %q has no starter files", domain.ErrValidation, strings.TrimSpace(s.assignment.Title))
	}
	if m.deps.Starter == nil {
		return fmt.Errorf("%w: starter installation is not configured", domain.ErrValidation)
	}
	a := s.assignment
	m.installStarter(ctx, &a)
	return nil
}
