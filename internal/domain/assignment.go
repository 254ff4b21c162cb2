// Package domain contains core domain types for the CodeCoach engine.
package domain

import "strings"

// Assignment is the normalized, read-only view of an instructor assignment.
type Assignment struct {
	ID               string         `json:"id"`
	CourseID         string         `json:"courseId"`
	Title            string         `json:"title"`
	Instructions     string         `json:"instructions"`
	InstructionsHTML string         `json:"instructionsHtml,omitempty"`
	Fundamentals     []string       `json:"fundamentals"`
	Objectives       []string       `json:"objectives"`
	TutorialURL      string         `json:"tutorialUrl,omitempty"`
	Starter          *StarterBundle `json:"starter,omitempty"`
}

// StarterBundle points at a downloadable archive of starter files.
type StarterBundle struct {
	// ArchiveRef is either a storage path resolved to a signed URL or a direct http(s) URL.
	ArchiveRef    string   `json:"archiveRef"`
	SuggestedOpen []string `json:"open,omitempty"`
}

// HasStarter returns true if the assignment ships starter files.
func (a *Assignment) HasStarter() bool {
	return a.Starter != nil && strings.TrimSpace(a.Starter.ArchiveRef) != ""
}

// IsDirectURL reports whether the archive reference can be downloaded without signing.
func (b StarterBundle) IsDirectURL() bool {
	ref := strings.ToLower(strings.TrimSpace(b.ArchiveRef))
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}
