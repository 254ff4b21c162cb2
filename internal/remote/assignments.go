package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ashureev/codecoach/internal/domain"
)

// AssignmentClient reads assignments from the assignment store.
type AssignmentClient struct {
	*Client
}

// NewAssignmentClient creates an assignment store client.
func NewAssignmentClient(c *Client) *AssignmentClient {
	return &AssignmentClient{Client: c}
}

// GetAssignment fetches and normalizes one assignment.
func (c *AssignmentClient) GetAssignment(ctx context.Context, id string) (*domain.Assignment, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: missing assignment id", domain.ErrValidation)
	}

	var raw map[string]any
	if err := c.doJSON(ctx, http.MethodGet, "/assignments/"+url.PathEscape(id), nil, &raw); err != nil {
		return nil, fmt.Errorf("get assignment %s: %w", id, err)
	}
	a, err := NormalizeAssignment(raw)
	if err != nil {
		return nil, fmt.Errorf("get assignment %s: %w", id, err)
	}
	return a, nil
}

// NormalizeAssignment converts any of the assignment payload spellings the
// stores emit into a domain.Assignment. Payloads wrapped as
// {"assignment": {...}, "starter": {...}} are accepted too.
func NormalizeAssignment(raw map[string]any) (*domain.Assignment, error) {
	doc := raw
	if inner, ok := raw["assignment"].(map[string]any); ok {
		doc = inner
	}

	a := &domain.Assignment{
		ID:               str(doc, "id", "assignmentId", "assignment_id"),
		CourseID:         str(doc, "courseId", "course_id"),
		Title:            str(doc, "title"),
		Instructions:     str(doc, "instructions", "instructions_html", "instructionsHtml"),
		InstructionsHTML: str(doc, "instructionsHtml", "instructions_html"),
		Fundamentals:     list(doc, "fundamentals"),
		Objectives:       list(doc, "objectives"),
		TutorialURL:      str(doc, "tutorialUrl", "tutorial_url"),
		Starter:          starterBundle(first(doc, "starterBundle", "starter_bundle", "starter")),
	}
	if a.Starter == nil {
		// Bootstrap payloads carry an already-signed starter beside the assignment.
		a.Starter = starterBundle(raw["starter"])
	}
	if a.ID == "" {
		return nil, fmt.Errorf("%w: assignment payload has no id", domain.ErrValidation)
	}
	return a, nil
}

func starterBundle(v any) *domain.StarterBundle {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		var decoded map[string]any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return nil
		}
		v = decoded
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	ref := str(m, "zipPath", "zip_path", "zipUrl", "zip_url", "archiveRef")
	if ref == "" {
		return nil
	}
	return &domain.StarterBundle{ArchiveRef: ref, SuggestedOpen: list(m, "open")}
}

func first(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func str(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func list(m map[string]any, key string) []string {
	items, ok := m[key].([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}
