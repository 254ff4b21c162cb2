package coach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/codecoach/internal/domain"
	"github.com/ashureev/codecoach/internal/profile"
)

const (
	// DefaultHistoryTurns is the number of user+coach pairs kept in the prompt.
	DefaultHistoryTurns = 12
	// DefaultContextChars caps the editor excerpt sent with each question.
	DefaultContextChars = 20000

	truncationMarker = "\n\n[Context truncated]"
)

// ErrEmptyReply is returned when the model answered with no text.
var ErrEmptyReply = errors.New("model returned an empty reply")

const coachingPolicy = `You are CodeCoach. Support learning first instead of providing solutions outright: engage the student in conversation about what they are trying to achieve, explain the fundamentals the task requires, and encourage thinking.

Primary interaction pattern:
- Coach by asking questions that help the user arrive at answers themselves.
- Keep it concise and not chatty.
- Default to exactly ONE question per message.

Code examples:
- Do NOT provide solution code for the student's specific homework/task.
- Only provide toy examples that demonstrate the underlying concept.

Corrections:
- If the student is wrong, correct them briefly and ask them to restate in their own words.

Conversation continuity:
- Track what the user has already tried and avoid repeating questions.`

const summaryInstructions = `You are producing a learning summary and a structured learning profile.

Return ONLY valid JSON matching this schema (no markdown, no extra keys):
{
  "session": {
    "topicsDiscussed": string[],
    "fundamentalsMastered": string[],
    "fundamentalsDeveloping": string[],
    "highlights": string[]
  },
  "overallUpdate": {
    "topics": string[],
    "mastered": string[],
    "developing": string[],
    "notes": string
  }
}

Rules:
- Be concise.
- "fundamentalsMastered" means the student demonstrated correct understanding or execution.
- "fundamentalsDeveloping" means confusion, errors, or incomplete understanding remains.
- Fundamentals should be generic skills (e.g., "Big-O reasoning", "state invariants", "regex basics") not project-specific tasks.
- Avoid duplicates and keep items short.`

// Request is one coaching question.
type Request struct {
	Assignment *domain.Assignment
	// History holds earlier turns, not including Message.
	History       []domain.Turn
	EditorContext string
	Message       string
}

// Adapter builds prompts and parses replies. It holds no session state.
type Adapter struct {
	model        Model
	historyTurns int
	contextChars int
}

// NewAdapter creates an adapter. Non-positive limits fall back to defaults.
func NewAdapter(model Model, historyTurns, contextChars int) *Adapter {
	if historyTurns <= 0 {
		historyTurns = DefaultHistoryTurns
	}
	if contextChars <= 0 {
		contextChars = DefaultContextChars
	}
	return &Adapter{model: model, historyTurns: historyTurns, contextChars: contextChars}
}

// Reply sends one completion request and returns the coach's answer.
// Failures are not retried.
func (a *Adapter) Reply(ctx context.Context, req Request) (string, error) {
	if a.model == nil {
		return "", ErrNoModel
	}
	raw, err := a.model.Complete(ctx, a.BuildPrompt(req))
	if err != nil {
		return "", fmt.Errorf("coach reply: %w", err)
	}
	reply := strings.TrimSpace(raw)
	if reply == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}

// BuildPrompt renders the completion prompt for req.
func (a *Adapter) BuildPrompt(req Request) string {
	history := renderTranscript(Window(req.History, a.historyTurns))
	if history == "" {
		history = "(none)"
	}
	excerpt := Truncate(req.EditorContext, a.contextChars)
	if strings.TrimSpace(excerpt) == "" {
		excerpt = "(no code context available)"
	}

	var b strings.Builder
	b.WriteString(coachingPolicy)
	b.WriteString("\n\n")
	b.WriteString(assignmentBlock(req.Assignment))
	b.WriteString("\n\nConversation so far:\n")
	b.WriteString(history)
	b.WriteString("\n\nRelevant code context (from the user's editor):\n")
	b.WriteString(excerpt)
	b.WriteString("\n\nUser question:\n")
	b.WriteString(strings.TrimSpace(req.Message))
	return b.String()
}

// Summarize asks the model to summarize transcript into a session summary and
// a partial profile update.
func (a *Adapter) Summarize(ctx context.Context, soFar domain.LearningProfile, transcript []domain.Turn) (*profile.Summary, error) {
	if a.model == nil {
		return nil, ErrNoModel
	}
	overall, err := json.MarshalIndent(soFar, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode profile: %w", err)
	}

	prompt := summaryInstructions +
		"\n\nOVERALL PROFILE SO FAR:\n" + string(overall) +
		"\n\nSESSION TRANSCRIPT:\n" + renderTranscript(transcript)

	raw, err := a.model.CompleteJSON(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("summarize session: %w", err)
	}
	summary, err := profile.ParseSummary(raw)
	if err != nil {
		return nil, fmt.Errorf("summarize session: %w", err)
	}
	return summary, nil
}

// Window returns the trailing maxTurns user+coach pairs of turns.
func Window(turns []domain.Turn, maxTurns int) []domain.Turn {
	limit := maxTurns * 2
	if maxTurns <= 0 || len(turns) <= limit {
		return turns
	}
	return turns[len(turns)-limit:]
}

// Truncate caps s at limit runes and appends a marker when anything was cut.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + truncationMarker
}

func assignmentBlock(a *domain.Assignment) string {
	if a == nil {
		return "(no active assignment)"
	}
	var b strings.Builder
	b.WriteString("ACTIVE ASSIGNMENT\n")
	fmt.Fprintf(&b, "Title: %s\n", a.Title)
	fmt.Fprintf(&b, "Objectives: %s\n", strings.Join(a.Objectives, "; "))
	fmt.Fprintf(&b, "Required fundamentals: %s\n", strings.Join(a.Fundamentals, ", "))
	b.WriteString("\nInstructions:\n")
	b.WriteString(a.Instructions)
	return strings.TrimSpace(b.String())
}

func renderTranscript(turns []domain.Turn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		speaker := "Coach"
		if t.Role == domain.RoleUser {
			speaker = "User"
		}
		lines = append(lines, speaker+": "+t.Text)
	}
	return strings.Join(lines, "\n")
}
