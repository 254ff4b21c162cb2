package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ashureev/codecoach/internal/domain"
	"github.com/google/go-cmp/cmp"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", "tok", 5*time.Second)
}

func TestNormalizeAssignmentKeyVariants(t *testing.T) {
	raw := map[string]any{
		"assignment": map[string]any{
			"id":                "A1",
			"course_id":         "C1",
			"title":             "Loops",
			"instructions_html": "<p>Write a loop</p>",
			"fundamentals":      []any{"loops", " ", 3},
			"objectives":        "not a list",
			"tutorial_url":      "https://example.com/t",
			"starter_bundle":    `{"zipPath":"starters/a1.zip","open":["main.go","README.md"]}`,
		},
	}
	got, err := NormalizeAssignment(raw)
	if err != nil {
		t.Fatalf("NormalizeAssignment failed: %v", err)
	}
	want := &domain.Assignment{
		ID:               "A1",
		CourseID:         "C1",
		Title:            "Loops",
		Instructions:     "<p>Write a loop</p>",
		InstructionsHTML: "<p>Write a loop</p>",
		Fundamentals:     []string{"loops"},
		Objectives:       []string{},
		TutorialURL:      "https://example.com/t",
		Starter: &domain.StarterBundle{
			ArchiveRef:    "starters/a1.zip",
			SuggestedOpen: []string{"main.go", "README.md"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected assignment (-want +got):\n%s", diff)
	}
}

func TestNormalizeAssignmentBootstrapStarter(t *testing.T) {
	got, err := NormalizeAssignment(map[string]any{
		"assignment": map[string]any{"id": 42.0},
		"starter":    map[string]any{"zipUrl": "https://cdn.example.com/s.zip", "open": []any{}},
	})
	if err != nil {
		t.Fatalf("NormalizeAssignment failed: %v", err)
	}
	if got.ID != "42" {
		t.Fatalf("ID = %q", got.ID)
	}
	if !got.HasStarter() || !got.Starter.IsDirectURL() {
		t.Fatalf("expected direct-url starter, got %+v", got.Starter)
	}
}

func TestNormalizeAssignmentRejectsMissingID(t *testing.T) {
	_, err := NormalizeAssignment(map[string]any{"title": "x"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestNormalizeAssignmentIgnoresBadStarter(t *testing.T) {
	got, err := NormalizeAssignment(map[string]any{"id": "A", "starter_bundle": "{not json"})
	if err != nil {
		t.Fatalf("NormalizeAssignment failed: %v", err)
	}
	if got.HasStarter() {
		t.Fatalf("expected no starter, got %+v", got.Starter)
	}
}

func TestGetAssignmentSendsBearer(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/assignments/A1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		_, _ = w.Write([]byte(`{"id":"A1","fundamentals":["loops"]}`))
	})

	a, err := NewAssignmentClient(c).GetAssignment(context.Background(), "A1")
	if err != nil {
		t.Fatalf("GetAssignment failed: %v", err)
	}
	if diff := cmp.Diff([]string{"loops"}, a.Fundamentals); diff != "" {
		t.Fatalf("unexpected fundamentals (-want +got):\n%s", diff)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, domain.ErrAuth},
		{http.StatusForbidden, domain.ErrAuth},
		{http.StatusNotFound, domain.ErrValidation},
		{http.StatusUnprocessableEntity, domain.ErrValidation},
		{http.StatusBadGateway, domain.ErrNetwork},
	}
	for _, tt := range tests {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte(`{"error":"nope"}`))
		})
		_, err := NewAssignmentClient(c).GetAssignment(context.Background(), "A1")
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: expected %v, got %v", tt.status, tt.want, err)
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Message != "nope" {
			t.Errorf("status %d: expected APIError with message, got %v", tt.status, err)
		}
	}
}

func TestTransportErrorIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := NewClient(srv.URL, "", time.Second)

	err := NewSessionClient(c).Submit(context.Background(), "s1")
	if !errors.Is(err, domain.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
}

func TestUnconfiguredClient(t *testing.T) {
	_, err := NewSessionClient(NewClient(" ", "", 0)).Start(context.Background(), "A1")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestSessionClientFlow(t *testing.T) {
	var gotEvents []domain.TraceEvent
	submitted := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sessions/start":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["assignmentId"] != "A1" {
				t.Errorf("assignmentId = %q", body["assignmentId"])
			}
			_, _ = w.Write([]byte(`{"sessionId":"s-1"}`))
		case "/sessions/s-1/events":
			var body struct {
				Events []domain.TraceEvent `json:"events"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			gotEvents = body.Events
			_, _ = w.Write([]byte(`{"ok":true,"inserted":2}`))
		case "/sessions/s-1/submit":
			submitted = true
			_, _ = w.Write([]byte(`{"ok":true}`))
		default:
			http.NotFound(w, r)
		}
	})
	sc := NewSessionClient(c)
	ctx := context.Background()

	id, err := sc.Start(ctx, "A1")
	if err != nil || id != "s-1" {
		t.Fatalf("Start = %q, %v", id, err)
	}

	at := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	events := []domain.TraceEvent{
		domain.NewMessageEvent(domain.EventUserMessage, "first", at),
		domain.NewMessageEvent(domain.EventCoachMessage, "second", at),
	}
	n, err := sc.AppendEvents(ctx, id, events)
	if err != nil || n != 2 {
		t.Fatalf("AppendEvents = %d, %v", n, err)
	}
	if len(gotEvents) != 2 || gotEvents[0].Text() != "first" || gotEvents[1].Kind != domain.EventCoachMessage {
		t.Fatalf("events not sent in order: %+v", gotEvents)
	}

	if err := sc.Submit(ctx, id); err != nil || !submitted {
		t.Fatalf("Submit failed: %v", err)
	}
}

func TestProfileClient(t *testing.T) {
	stored := map[string]json.RawMessage{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path + "?" + r.URL.RawQuery
		switch r.Method {
		case http.MethodGet:
			body, ok := stored[key]
			if !ok {
				http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
				return
			}
			_, _ = w.Write(body)
		case http.MethodPut:
			var body json.RawMessage
			_ = json.NewDecoder(r.Body).Decode(&body)
			stored[key] = body
			w.WriteHeader(http.StatusNoContent)
		}
	})
	pc := NewProfileClient(c)
	ctx := context.Background()

	p, err := pc.GetProfile(ctx, "anon_1", "C1")
	if err != nil || p != nil {
		t.Fatalf("expected nil profile on 404, got %+v, %v", p, err)
	}

	want := &domain.LearningProfile{
		UpdatedAt:  time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC),
		Mastered:   []string{"loops"},
		Developing: []string{},
		Topics:     []string{},
	}
	if err := pc.PutProfile(ctx, "anon_1", "C1", want); err != nil {
		t.Fatalf("PutProfile failed: %v", err)
	}
	got, err := pc.GetProfile(ctx, "anon_1", "C1")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("profile mismatch (-want +got):\n%s", diff)
	}
}

func TestSignedDownloadURL(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["bucket"] != "starter-zips" || body["path"] != "starters/a.zip" {
			t.Errorf("unexpected sign request %+v", body)
		}
		_, _ = w.Write([]byte(`{"signedUrl":"https://cdn.example.com/a.zip?sig=1"}`))
	})
	u, err := NewStorageClient(c).SignedDownloadURL(context.Background(), "starters/a.zip")
	if err != nil {
		t.Fatalf("SignedDownloadURL failed: %v", err)
	}
	if u != "https://cdn.example.com/a.zip?sig=1" {
		t.Fatalf("url = %q", u)
	}
}
