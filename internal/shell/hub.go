// Package shell bridges the coaching engine to UI shells over WebSocket.
package shell

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/codecoach/internal/domain"
	"github.com/ashureev/codecoach/internal/session"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

const defaultPickTimeout = 2 * time.Minute

// Handler receives inbound shell actions.
type Handler interface {
	Chat(ctx context.Context, text, editorContext string) (string, error)
	RunCommand(ctx context.Context, name, arg string) error
	ResumeStarter(ctx context.Context) error
	Status() session.StatusView
}

// outbound is every message pushed to shells.
type outbound struct {
	Type      string              `json:"type"`
	Status    *session.StatusView `json:"status,omitempty"`
	Role      domain.Role         `json:"role,omitempty"`
	Text      string              `json:"text,omitempty"`
	Busy      *bool               `json:"busy,omitempty"`
	Level     string              `json:"level,omitempty"`
	Title     string              `json:"title,omitempty"`
	Markdown  string              `json:"markdown,omitempty"`
	RequestID string              `json:"requestId,omitempty"`
	Path      string              `json:"path,omitempty"`
}

// Hub tracks connected shells, broadcasts session events to them and acts
// as the installer's workspace. It implements session.Events and
// starter.Workspace.
type Hub struct {
	mu      sync.RWMutex
	conns   map[string]*websocket.Conn
	folders []string

	pickMu  sync.Mutex
	waiters map[string]chan string

	handler     Handler
	pickTimeout time.Duration
	logger      *slog.Logger
}

// NewHub creates a hub. folders are the workspace folders known at start.
func NewHub(folders []string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		conns:       make(map[string]*websocket.Conn),
		folders:     append([]string(nil), folders...),
		waiters:     make(map[string]chan string),
		pickTimeout: defaultPickTimeout,
		logger:      logger,
	}
}

// SetHandler sets the receiver of inbound actions.
func (h *Hub) SetHandler(handler Handler) {
	h.mu.Lock()
	h.handler = handler
	h.mu.Unlock()
}

func (h *Hub) getHandler() Handler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.handler
}

// Register adds a shell connection.
func (h *Hub) Register(id string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if existing, ok := h.conns[id]; ok && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "connection replaced")
	}
	h.conns[id] = conn
	h.logger.Info("Shell registered", "conn_id", id)
}

// Unregister removes a shell connection if it is still the registered one.
func (h *Hub) Unregister(id string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.conns[id]; ok && current == conn {
		delete(h.conns, id)
		h.logger.Info("Shell unregistered", "conn_id", id)
	}
}

// Count returns the number of connected shells.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// CloseAll disconnects every shell.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conn := range h.conns {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(h.conns, id)
	}
}

func (h *Hub) broadcast(msg outbound) int {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to encode shell message", "type", msg.Type, "error", err)
		return 0
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := c.Write(ctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			h.logger.Debug("Shell write failed", "type", msg.Type, "error", err)
			continue
		}
		sent++
	}
	return sent
}

// Status implements session.Events.
func (h *Hub) Status(v session.StatusView) {
	h.broadcast(outbound{Type: "status", Status: &v})
}

// Message implements session.Events.
func (h *Hub) Message(role domain.Role, text string) {
	h.broadcast(outbound{Type: "message", Role: role, Text: text})
}

// Busy implements session.Events.
func (h *Hub) Busy(busy bool) {
	h.broadcast(outbound{Type: "busy", Busy: &busy})
}

// Notice implements session.Events.
func (h *Hub) Notice(level, text string) {
	h.broadcast(outbound{Type: "notice", Level: level, Text: text})
}

// Document implements session.Events.
func (h *Hub) Document(title, markdown string) {
	h.broadcast(outbound{Type: "document", Title: title, Markdown: markdown})
}

// Folders implements starter.Workspace.
func (h *Hub) Folders() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string(nil), h.folders...)
}

// SetFolders records the folders a shell reports as open.
func (h *Hub) SetFolders(folders []string) {
	h.mu.Lock()
	h.folders = append([]string(nil), folders...)
	h.mu.Unlock()
}

// PickFolder implements starter.Workspace. Shells are asked to choose a
// folder; with no shell connected, or when none answers in time, the
// suggested folder is used.
func (h *Hub) PickFolder(ctx context.Context, suggested string) (string, error) {
	fallback, err := filepath.Abs(suggested)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", suggested, err)
	}

	id := uuid.NewString()
	ch := make(chan string, 1)
	h.pickMu.Lock()
	h.waiters[id] = ch
	h.pickMu.Unlock()
	defer func() {
		h.pickMu.Lock()
		delete(h.waiters, id)
		h.pickMu.Unlock()
	}()

	if h.broadcast(outbound{Type: "pick_folder", RequestID: id, Path: fallback}) == 0 {
		return fallback, nil
	}

	timer := time.NewTimer(h.pickTimeout)
	defer timer.Stop()
	select {
	case path := <-ch:
		if path == "" {
			return "", fmt.Errorf("%w: folder selection cancelled", domain.ErrFilesystem)
		}
		return path, nil
	case <-timer.C:
		h.logger.Warn("No folder picked in time, using suggested folder", "folder", fallback)
		return fallback, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (h *Hub) folderPicked(requestID, path string) {
	h.pickMu.Lock()
	ch, ok := h.waiters[requestID]
	h.pickMu.Unlock()
	if !ok {
		h.logger.Debug("Ignoring folder pick for unknown request", "request_id", requestID)
		return
	}
	select {
	case ch <- path:
	default:
	}
}

// OpenFolder implements starter.Workspace. Shells reopen on the folder and
// later report it through a workspace message. Without a shell the folder
// is created, becomes the current one, and a pending starter installation
// is resumed in the background the way a workspace report would.
func (h *Hub) OpenFolder(ctx context.Context, path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("%w: create %s: %w", domain.ErrFilesystem, path, err)
	}
	if h.broadcast(outbound{Type: "open_folder", Path: path}) > 0 {
		return nil
	}
	h.SetFolders([]string{path})
	if handler := h.getHandler(); handler != nil {
		// The caller may still hold the install lock; Resume waits for it.
		bg := context.WithoutCancel(ctx)
		go func() {
			if err := handler.ResumeStarter(bg); err != nil {
				h.logger.Warn("Starter resume after opening folder failed", "folder", path, "error", err)
			}
		}()
	}
	return nil
}

// OpenFile implements starter.Workspace.
func (h *Hub) OpenFile(_ context.Context, path string) error {
	if h.broadcast(outbound{Type: "open_file", Path: path}) == 0 {
		h.logger.Info("Starter file ready", "path", path)
	}
	return nil
}
