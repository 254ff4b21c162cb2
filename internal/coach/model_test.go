package coach

import (
	"errors"
	"testing"

	"github.com/ashureev/codecoach/internal/domain"
	"google.golang.org/genai"
)

func TestReplyTextWithoutCandidatesIsNetworkError(t *testing.T) {
	for name, resp := range map[string]*genai.GenerateContentResponse{
		"nil":   nil,
		"empty": {},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := replyText(resp)
			if !errors.Is(err, domain.ErrNetwork) {
				t.Fatalf("expected ErrNetwork, got %v", err)
			}
			if kind := domain.KindOf(err); kind != "network" {
				t.Fatalf("kind = %q, want network", kind)
			}
		})
	}
}

func TestReplyTextReturnsFirstCandidate(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: genai.NewContentFromText("What bounds your loop?", genai.RoleModel),
	}}}
	got, err := replyText(resp)
	if err != nil {
		t.Fatalf("replyText failed: %v", err)
	}
	if got != "What bounds your loop?" {
		t.Fatalf("reply = %q", got)
	}
}
