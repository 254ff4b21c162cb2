package domain

import "time"

// LearningProfile is the durable, cross-session record of a learner's skills.
// Mastered and Developing are disjoint.
type LearningProfile struct {
	UpdatedAt  time.Time `json:"updatedAtISO"`
	Mastered   []string  `json:"mastered"`
	Developing []string  `json:"developing"`
	Topics     []string  `json:"topics"`
	Notes      string    `json:"notes,omitempty"`
}

// PendingStarterInstallation is the continuation persisted when starter files
// could not be installed because no workspace folder was open.
type PendingStarterInstallation struct {
	ArchiveRef    string    `json:"archiveRef"`
	SuggestedOpen []string  `json:"open,omitempty"`
	Folder        string    `json:"folder,omitempty"`
	AssignmentID  string    `json:"assignmentId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Bundle returns the starter bundle the continuation should install.
func (p *PendingStarterInstallation) Bundle() StarterBundle {
	return StarterBundle{ArchiveRef: p.ArchiveRef, SuggestedOpen: p.SuggestedOpen}
}
