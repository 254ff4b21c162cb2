package shell

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// inbound is every message a shell may send.
type inbound struct {
	Type      string   `json:"type"`
	Text      string   `json:"text,omitempty"`
	Context   string   `json:"context,omitempty"`
	Command   string   `json:"command,omitempty"`
	Arg       string   `json:"arg,omitempty"`
	Folders   []string `json:"folders,omitempty"`
	RequestID string   `json:"requestId,omitempty"`
	Path      string   `json:"path,omitempty"`
}

// WebSocketHandler upgrades shell connections and serves them from the hub.
type WebSocketHandler struct {
	hub           *Hub
	allowedOrigin string
	isDev         bool
	// base outlives individual connections so actions finish after a shell disconnects.
	base context.Context
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(base context.Context, hub *Hub, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, allowedOrigin: allowedOrigin, isDev: isDev, base: base}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	connID := r.URL.Query().Get("conn_id")
	if connID == "" {
		connID = uuid.NewString()
	}
	h.hub.Register(connID, ws)
	defer h.hub.Unregister(connID, ws)

	if handler := h.hub.getHandler(); handler != nil {
		v := handler.Status()
		h.writeJSON(r.Context(), ws, outbound{Type: "status", Status: &v})
	}

	h.inputLoop(r.Context(), ws, connID)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *WebSocketHandler) inputLoop(ctx context.Context, ws *websocket.Conn, connID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "conn_id", connID)
			} else {
				slog.Debug("WebSocket read ended", "conn_id", connID, "error", err)
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			h.writeJSON(ctx, ws, outbound{Type: "notice", Level: "error", Text: "malformed message"})
			continue
		}
		h.dispatch(ctx, ws, msg)
	}
}

// dispatch handles one inbound message. Chat and commands run in their own
// goroutine so the read loop stays free to receive folder picks they wait on.
func (h *WebSocketHandler) dispatch(ctx context.Context, ws *websocket.Conn, msg inbound) {
	handler := h.hub.getHandler()
	switch msg.Type {
	case "ping":
		h.writeJSON(ctx, ws, outbound{Type: "pong"})
	case "folder_picked":
		h.hub.folderPicked(msg.RequestID, msg.Path)
	case "workspace":
		h.hub.SetFolders(msg.Folders)
		if handler != nil && len(msg.Folders) > 0 {
			go func() {
				if err := handler.ResumeStarter(h.base); err != nil {
					slog.Warn("Starter resume after workspace report failed", "error", err)
				}
			}()
		}
	case "send":
		if handler == nil {
			return
		}
		go func() {
			if _, err := handler.Chat(h.base, msg.Text, msg.Context); err != nil {
				slog.Debug("Chat from shell failed", "error", err)
			}
		}()
	case "cmd":
		if handler == nil {
			return
		}
		go func() {
			_ = handler.RunCommand(h.base, msg.Command, msg.Arg)
		}()
	default:
		slog.Debug("Ignoring unknown shell message", "type", msg.Type)
	}
}

func (h *WebSocketHandler) writeJSON(ctx context.Context, ws *websocket.Conn, msg outbound) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Debug("Failed to write shell message", "type", msg.Type, "error", err)
	}
}
