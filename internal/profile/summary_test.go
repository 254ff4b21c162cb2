package profile

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/codecoach/internal/domain"
	"github.com/google/go-cmp/cmp"
)

func TestParseSummary(t *testing.T) {
	raw := "```json\n" + `{
  "session": {
    "topicsDiscussed": ["loops"],
    "fundamentalsMastered": ["for loops"],
    "fundamentalsDeveloping": [],
    "highlights": ["wrote a loop invariant"]
  },
  "overallUpdate": {
    "topics": ["loops", " loops "],
    "mastered": ["for loops"],
    "developing": ["off-by-one reasoning"],
    "notes": " Good questions. "
  }
}` + "\n```"

	got, err := ParseSummary(raw)
	if err != nil {
		t.Fatalf("ParseSummary failed: %v", err)
	}
	want := Partial{
		Mastered:   []string{"for loops"},
		Developing: []string{"off-by-one reasoning"},
		Topics:     []string{"loops"},
		Notes:      "Good questions.",
	}
	if diff := cmp.Diff(want, got.Update); diff != "" {
		t.Fatalf("unexpected update (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"wrote a loop invariant"}, got.Session.Highlights); diff != "" {
		t.Fatalf("unexpected highlights (-want +got):\n%s", diff)
	}
}

func TestParseSummaryMalformedListsAreEmpty(t *testing.T) {
	got, err := ParseSummary(`{"overallUpdate": {"mastered": "loops", "developing": null, "topics": [1, "arrays"]}}`)
	if err != nil {
		t.Fatalf("ParseSummary failed: %v", err)
	}
	if len(got.Update.Mastered) != 0 || len(got.Update.Developing) != 0 {
		t.Fatalf("malformed lists should be empty: %+v", got.Update)
	}
	if diff := cmp.Diff([]string{"arrays"}, got.Update.Topics); diff != "" {
		t.Fatalf("unexpected topics (-want +got):\n%s", diff)
	}
}

func TestParseSummaryAcceptsFlatPartial(t *testing.T) {
	got, err := ParseSummary(`{"mastered": ["loops"], "developing": [], "topics": [], "notes": ""}`)
	if err != nil {
		t.Fatalf("ParseSummary failed: %v", err)
	}
	if diff := cmp.Diff([]string{"loops"}, got.Update.Mastered); diff != "" {
		t.Fatalf("unexpected mastered (-want +got):\n%s", diff)
	}
}

func TestParseSummaryRejectsInvalidOutput(t *testing.T) {
	for _, raw := range []string{
		"Sure! Here is your summary.",
		`{"session": {}}`,
		"",
	} {
		if _, err := ParseSummary(raw); !errors.Is(err, ErrInvalidStructuredOutput) {
			t.Errorf("ParseSummary(%q) error = %v, want ErrInvalidStructuredOutput", raw, err)
		}
	}
}

func TestRenderMarkdown(t *testing.T) {
	overall := domain.LearningProfile{
		UpdatedAt: time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC),
		Mastered:  []string{"loops"},
	}
	md := RenderMarkdown(&SessionSummary{Highlights: []string{"asked great questions"}}, overall)

	for _, want := range []string{
		"# CodeCoach Learning Summary",
		"- asked great questions",
		"_Last updated: 2026-10-18T09:00:00Z_",
		"**Fundamentals mastered to date**\n- loops",
		"**Topics covered**\n- (none)",
		"**Notes**\n(none)",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}

	if strings.Contains(RenderMarkdown(nil, overall), "Session Summary") {
		t.Error("overall-only render should not include a session section")
	}
}
