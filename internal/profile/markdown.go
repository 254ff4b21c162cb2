package profile

import (
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/codecoach/internal/domain"
)

// RenderMarkdown renders the learning summary document. session may be nil
// when only the overall profile is shown.
func RenderMarkdown(session *SessionSummary, overall domain.LearningProfile) string {
	var b strings.Builder
	b.WriteString("# CodeCoach Learning Summary\n\n")

	if session != nil {
		b.WriteString("## Session Summary (this chat)\n")
		writeSection(&b, "Topics discussed", session.TopicsDiscussed)
		writeSection(&b, "Fundamentals mastered (evidence shown)", session.FundamentalsMastered)
		writeSection(&b, "Fundamentals still developing", session.FundamentalsDeveloping)
		writeSection(&b, "Highlights", session.Highlights)
		b.WriteString("\n---\n\n")
	}

	b.WriteString("## Overall Learning Summary (to date)\n")
	fmt.Fprintf(&b, "_Last updated: %s_\n", overall.UpdatedAt.UTC().Format(time.RFC3339))
	writeSection(&b, "Topics covered", overall.Topics)
	writeSection(&b, "Fundamentals mastered to date", overall.Mastered)
	writeSection(&b, "Fundamentals still developing", overall.Developing)

	b.WriteString("\n**Notes**\n")
	if notes := strings.TrimSpace(overall.Notes); notes != "" {
		b.WriteString(notes)
	} else {
		b.WriteString("(none)")
	}
	b.WriteString("\n")
	return b.String()
}

func writeSection(b *strings.Builder, title string, items []string) {
	fmt.Fprintf(b, "\n**%s**\n", title)
	if len(items) == 0 {
		b.WriteString("- (none)\n")
		return
	}
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}
