package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ashureev/codecoach/internal/domain"
)

// SessionClient talks to the session store.
type SessionClient struct {
	*Client
}

// NewSessionClient creates a session store client.
func NewSessionClient(c *Client) *SessionClient {
	return &SessionClient{Client: c}
}

// Start creates a remote session for assignmentID and returns its id.
func (c *SessionClient) Start(ctx context.Context, assignmentID string) (string, error) {
	var out struct {
		SessionID string `json:"sessionId"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/sessions/start", map[string]string{"assignmentId": assignmentID}, &out)
	if err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	if out.SessionID == "" {
		return "", fmt.Errorf("%w: start session: response has no sessionId", domain.ErrNetwork)
	}
	return out.SessionID, nil
}

// AppendEvents appends events to the session as one ordered batch and
// returns the number the store inserted.
func (c *SessionClient) AppendEvents(ctx context.Context, sessionID string, events []domain.TraceEvent) (int, error) {
	var out struct {
		Inserted int `json:"inserted"`
	}
	path := "/sessions/" + url.PathEscape(sessionID) + "/events"
	if err := c.doJSON(ctx, http.MethodPost, path, map[string]any{"events": events}, &out); err != nil {
		return 0, fmt.Errorf("append events: %w", err)
	}
	return out.Inserted, nil
}

// Submit marks the session submitted. Submitting twice is accepted by the store.
func (c *SessionClient) Submit(ctx context.Context, sessionID string) error {
	path := "/sessions/" + url.PathEscape(sessionID) + "/submit"
	if err := c.doJSON(ctx, http.MethodPost, path, map[string]any{}, nil); err != nil {
		return fmt.Errorf("submit session: %w", err)
	}
	return nil
}
