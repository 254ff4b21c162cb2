package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ashureev/codecoach/internal/coach"
	"github.com/ashureev/codecoach/internal/config"
	"github.com/ashureev/codecoach/internal/identity"
	"github.com/ashureev/codecoach/internal/profile"
	"github.com/ashureev/codecoach/internal/remote"
	"github.com/ashureev/codecoach/internal/starter"
	"github.com/ashureev/codecoach/internal/store"
)

// app holds the collaborators shared by every command.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	repo      *store.SQLiteStore
	learnerID string

	assignments *remote.AssignmentClient
	sessions    *remote.SessionClient
	storage     *remote.StorageClient
	profiles    *profile.Service
}

func newApp(ctx context.Context, logger *slog.Logger) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	if err := repo.Ping(ctx); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("database health check: %w", err)
	}

	learnerID, err := identity.Resolve(ctx, repo, cfg.LearnerID)
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("resolve learner id: %w", err)
	}

	r := cfg.Remote
	a := &app{
		cfg:         cfg,
		logger:      logger,
		repo:        repo,
		learnerID:   learnerID,
		assignments: remote.NewAssignmentClient(remote.NewClient(r.AssignmentsURL, r.Token, cfg.HTTPTimeout)),
		sessions:    remote.NewSessionClient(remote.NewClient(r.SessionsURL, r.Token, cfg.HTTPTimeout)),
		storage:     remote.NewStorageClient(remote.NewClient(r.StorageURL, r.Token, cfg.HTTPTimeout)),
	}

	// Assign through the interface only when configured so an unset store
	// stays a nil Store.
	var remoteProfiles profile.Store
	if r.ProfilesURL != "" {
		remoteProfiles = remote.NewProfileClient(remote.NewClient(r.ProfilesURL, r.Token, cfg.HTTPTimeout))
	}
	a.profiles = profile.NewService(repo, remoteProfiles, logger)

	return a, nil
}

// newCoach returns the coach adapter. Without an API key the adapter has no
// model and replies with coach.ErrNoModel.
func (a *app) newCoach(ctx context.Context) *coach.Adapter {
	var model coach.Model
	m, err := coach.NewGenAIModel(ctx, a.cfg.Coach.APIKey, a.cfg.Coach.Model)
	switch {
	case errors.Is(err, coach.ErrNoModel):
		a.logger.Info("Text generation disabled (GEMINI_API_KEY not set)")
	case err != nil:
		a.logger.Warn("Failed to initialize text generation", "error", err)
	default:
		model = m
		a.logger.Info("Text generation enabled", "model", a.cfg.Coach.Model)
	}
	return coach.NewAdapter(model, a.cfg.Coach.HistoryTurns, a.cfg.Coach.ContextChars)
}

// newInstaller wires the starter installer to ws. The archive store is only
// consulted for non-URL references.
func (a *app) newInstaller(ws starter.Workspace) *starter.Installer {
	var resolver starter.Resolver
	if a.storage.Configured() {
		resolver = a.storage
	}
	inst := starter.NewInstaller(resolver, ws, a.repo, &http.Client{Timeout: a.cfg.HTTPTimeout * 4},
		a.cfg.Starter.MaxBytes, a.logger)
	inst.Suggested = a.cfg.Starter.Root
	return inst
}

func (a *app) Close() {
	if err := a.repo.Close(); err != nil {
		a.logger.Error("Failed to close repository", "error", err)
	}
}
