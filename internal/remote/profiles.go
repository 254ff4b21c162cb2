package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ashureev/codecoach/internal/domain"
)

// ProfileClient reads and writes learning profiles in the profile store.
type ProfileClient struct {
	*Client
}

// NewProfileClient creates a profile store client.
func NewProfileClient(c *Client) *ProfileClient {
	return &ProfileClient{Client: c}
}

func profilePath(learnerID, courseID string) string {
	p := "/profiles/" + url.PathEscape(learnerID)
	if courseID != "" {
		p += "?courseId=" + url.QueryEscape(courseID)
	}
	return p
}

// GetProfile returns the stored profile or nil when the store has none.
func (c *ProfileClient) GetProfile(ctx context.Context, learnerID, courseID string) (*domain.LearningProfile, error) {
	var out struct {
		Profile *domain.LearningProfile `json:"profile"`
	}
	err := c.doJSON(ctx, http.MethodGet, profilePath(learnerID, courseID), nil, &out)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return out.Profile, nil
}

// PutProfile replaces the stored profile.
func (c *ProfileClient) PutProfile(ctx context.Context, learnerID, courseID string, p *domain.LearningProfile) error {
	if err := c.doJSON(ctx, http.MethodPut, profilePath(learnerID, courseID), map[string]any{"profile": p}, nil); err != nil {
		return fmt.Errorf("put profile: %w", err)
	}
	return nil
}
