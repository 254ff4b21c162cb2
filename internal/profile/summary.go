package profile

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ashureev/codecoach/internal/domain"
)

// ErrInvalidStructuredOutput means the model did not return the expected JSON document.
var ErrInvalidStructuredOutput = fmt.Errorf("%w: model did not return valid structured output", domain.ErrValidation)

// SessionSummary describes what happened in one chat session.
type SessionSummary struct {
	TopicsDiscussed        []string `json:"topicsDiscussed"`
	FundamentalsMastered   []string `json:"fundamentalsMastered"`
	FundamentalsDeveloping []string `json:"fundamentalsDeveloping"`
	Highlights             []string `json:"highlights"`
}

// Summary is the parsed summarization result: a per-session view plus the
// partial profile to merge into the learner's overall profile.
type Summary struct {
	Session SessionSummary
	Update  Partial
}

// ParseSummary decodes the summarization JSON. Fenced code blocks are
// tolerated. Lists that are missing or not lists of strings decode as empty;
// invalid JSON or a missing overallUpdate object is ErrInvalidStructuredOutput.
func ParseSummary(raw string) (*Summary, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(stripFences(raw)), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStructuredOutput, err)
	}

	update, ok := doc["overallUpdate"].(map[string]any)
	if !ok {
		// A bare {mastered, developing, topics, notes} document is accepted too.
		if _, flat := doc["mastered"]; !flat {
			return nil, fmt.Errorf("%w: missing overallUpdate", ErrInvalidStructuredOutput)
		}
		update = doc
	}
	session, _ := doc["session"].(map[string]any)

	notes, _ := update["notes"].(string)
	return &Summary{
		Session: SessionSummary{
			TopicsDiscussed:        stringList(session["topicsDiscussed"]),
			FundamentalsMastered:   stringList(session["fundamentalsMastered"]),
			FundamentalsDeveloping: stringList(session["fundamentalsDeveloping"]),
			Highlights:             stringList(session["highlights"]),
		},
		Update: Partial{
			Mastered:   stringList(update["mastered"]),
			Developing: stringList(update["developing"]),
			Topics:     stringList(update["topics"]),
			Notes:      strings.TrimSpace(notes),
		},
	}, nil
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return Normalize(out)
}

func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
