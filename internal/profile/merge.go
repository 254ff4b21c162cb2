// Package profile folds session-derived learning signals into the durable
// learning profile and renders learning summaries.
package profile

import (
	"strings"
	"time"

	"github.com/ashureev/codecoach/internal/domain"
)

// Partial is the learning signal observed in one session.
type Partial struct {
	Mastered   []string `json:"mastered"`
	Developing []string `json:"developing"`
	Topics     []string `json:"topics"`
	Notes      string   `json:"notes"`
}

// IsEmpty reports whether the partial carries no signal at all.
func (p Partial) IsEmpty() bool {
	return len(Normalize(p.Mastered)) == 0 &&
		len(Normalize(p.Developing)) == 0 &&
		len(Normalize(p.Topics)) == 0 &&
		strings.TrimSpace(p.Notes) == ""
}

// Merge folds incoming into existing and stamps the result with now.
//
// Mastery is a one-way ratchet: any label in the merged mastered set is
// removed from developing, whatever order sessions are merged in. Notes are
// replaced by non-empty incoming notes. Merge does no I/O.
func Merge(existing domain.LearningProfile, incoming Partial, now time.Time) domain.LearningProfile {
	mastered := union(existing.Mastered, incoming.Mastered)

	masteredSet := make(map[string]struct{}, len(mastered))
	for _, m := range mastered {
		masteredSet[m] = struct{}{}
	}
	developing := make([]string, 0)
	for _, d := range union(existing.Developing, incoming.Developing) {
		if _, ok := masteredSet[d]; !ok {
			developing = append(developing, d)
		}
	}

	notes := existing.Notes
	if strings.TrimSpace(incoming.Notes) != "" {
		notes = incoming.Notes
	}

	return domain.LearningProfile{
		UpdatedAt:  now.UTC(),
		Mastered:   mastered,
		Developing: developing,
		Topics:     union(existing.Topics, incoming.Topics),
		Notes:      notes,
	}
}

// Empty returns a fresh profile with no labels.
func Empty(now time.Time) domain.LearningProfile {
	return domain.LearningProfile{
		UpdatedAt:  now.UTC(),
		Mastered:   []string{},
		Developing: []string{},
		Topics:     []string{},
	}
}

// Normalize trims labels, drops empties and removes duplicates, keeping
// first-seen order. Matching is case-sensitive.
func Normalize(labels []string) []string {
	out := make([]string, 0, len(labels))
	seen := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

func union(a, b []string) []string {
	all := make([]string, 0, len(a)+len(b))
	all = append(all, a...)
	all = append(all, b...)
	return Normalize(all)
}
