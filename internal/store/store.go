// Package store provides durable local state for the coaching engine.
package store

import (
	"context"

	"github.com/ashureev/codecoach/internal/domain"
)

// Repository defines the interface for persisting local coaching state.
type Repository interface {
	// GetProfile retrieves a learning profile. courseID "" is the overall profile.
	// Returns nil, nil when none exists.
	GetProfile(ctx context.Context, learnerID, courseID string) (*domain.LearningProfile, error)

	// PutProfile creates or replaces a learning profile.
	PutProfile(ctx context.Context, learnerID, courseID string, p *domain.LearningProfile) error

	// GetPendingInstallation returns the single pending starter installation, if any.
	GetPendingInstallation(ctx context.Context) (*domain.PendingStarterInstallation, error)

	// SavePendingInstallation overwrites the pending installation slot.
	SavePendingInstallation(ctx context.Context, p *domain.PendingStarterInstallation) error

	// ClearPendingInstallation empties the pending installation slot.
	ClearPendingInstallation(ctx context.Context) error

	// GetSessionSnapshot returns the persisted active session, if any.
	GetSessionSnapshot(ctx context.Context) (*domain.SessionSnapshot, error)

	// SaveSessionSnapshot overwrites the persisted active session.
	SaveSessionSnapshot(ctx context.Context, s *domain.SessionSnapshot) error

	// ClearSessionSnapshot removes the persisted active session.
	ClearSessionSnapshot(ctx context.Context) error

	// GetSetting returns a stored setting, or "" if unset.
	GetSetting(ctx context.Context, key string) (string, error)

	// PutSetting stores a setting.
	PutSetting(ctx context.Context, key, value string) error

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
