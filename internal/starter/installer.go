// Package starter installs instructor starter bundles into the learner's workspace.
package starter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ashureev/codecoach/internal/domain"
)

const (
	// DefaultMaxBytes caps archive downloads.
	DefaultMaxBytes int64 = 50 << 20
	maxOpen               = 5
)

// ErrTooLarge is returned when an archive exceeds the size cap.
var ErrTooLarge = fmt.Errorf("%w: starter archive exceeds size limit", domain.ErrValidation)

// Resolver turns a storage path into a downloadable URL.
type Resolver interface {
	SignedDownloadURL(ctx context.Context, archiveRef string) (string, error)
}

// Workspace is the host editor surface the installer drives.
type Workspace interface {
	// Folders returns the currently open workspace folders.
	Folders() []string
	// PickFolder asks the user for a destination folder; suggested is the default.
	PickFolder(ctx context.Context, suggested string) (string, error)
	// OpenFolder opens path as the workspace. The host may restart afterwards.
	OpenFolder(ctx context.Context, path string) error
	// OpenFile shows a file in the editor.
	OpenFile(ctx context.Context, path string) error
}

// PendingStore persists the single pending-installation slot.
type PendingStore interface {
	GetPendingInstallation(ctx context.Context) (*domain.PendingStarterInstallation, error)
	SavePendingInstallation(ctx context.Context, p *domain.PendingStarterInstallation) error
	ClearPendingInstallation(ctx context.Context) error
}

// Result describes one install attempt.
type Result struct {
	// Deferred is set when installation waits for the workspace to reopen.
	Deferred bool
	Dest     string
	Files    []string
	Opened   []string
}

// Installer downloads and extracts starter archives.
type Installer struct {
	resolver  Resolver
	workspace Workspace
	pending   PendingStore
	http      *http.Client
	maxBytes  int64
	// Suggested is offered as the destination when no folder is open.
	Suggested string
	logger    *slog.Logger

	// installMu serializes Install and Resume so one archive is never
	// extracted twice at once.
	installMu sync.Mutex
}

// NewInstaller creates an installer. resolver may be nil when only direct
// URLs are used.
func NewInstaller(resolver Resolver, workspace Workspace, pending PendingStore, client *http.Client, maxBytes int64, logger *slog.Logger) *Installer {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Installer{
		resolver:  resolver,
		workspace: workspace,
		pending:   pending,
		http:      client,
		maxBytes:  maxBytes,
		logger:    logger,
	}
}

// Install populates the first open workspace folder with bundle. With no
// folder open it persists a continuation, asks the host to open a folder and
// returns a deferred result without installing.
func (i *Installer) Install(ctx context.Context, bundle domain.StarterBundle, assignmentID string) (*Result, error) {
	i.installMu.Lock()
	defer i.installMu.Unlock()

	if bundle.ArchiveRef == "" {
		return nil, fmt.Errorf("%w: starter bundle has no archive reference", domain.ErrValidation)
	}

	folders := i.workspace.Folders()
	if len(folders) > 0 {
		return i.installInto(ctx, bundle, folders[0])
	}

	folder, err := i.workspace.PickFolder(ctx, i.Suggested)
	if err != nil {
		return nil, fmt.Errorf("%w: choose starter folder: %w", domain.ErrFilesystem, err)
	}
	if folder == "" {
		return nil, fmt.Errorf("%w: no starter folder chosen", domain.ErrFilesystem)
	}

	p := &domain.PendingStarterInstallation{
		ArchiveRef:    bundle.ArchiveRef,
		SuggestedOpen: bundle.SuggestedOpen,
		Folder:        folder,
		AssignmentID:  assignmentID,
		CreatedAt:     time.Now().UTC(),
	}
	if err := i.pending.SavePendingInstallation(ctx, p); err != nil {
		return nil, fmt.Errorf("persist pending installation: %w", err)
	}
	i.logger.Info("Starter installation deferred until workspace opens",
		"assignment_id", assignmentID, "folder", folder)

	if err := i.workspace.OpenFolder(ctx, folder); err != nil {
		return nil, fmt.Errorf("%w: open folder %s: %w", domain.ErrFilesystem, folder, err)
	}
	return &Result{Deferred: true, Dest: folder}, nil
}

// Resume completes a persisted installation into the first open workspace
// folder, or into the folder chosen at install time when none is open. It
// returns nil, nil when nothing is pending or there is no destination.
// The pending slot is read under the install lock, so a call that waited on
// a finished Resume finds nothing to do.
func (i *Installer) Resume(ctx context.Context) (*Result, error) {
	i.installMu.Lock()
	defer i.installMu.Unlock()

	p, err := i.pending.GetPendingInstallation(ctx)
	if err != nil {
		return nil, fmt.Errorf("read pending installation: %w", err)
	}
	if p == nil {
		return nil, nil
	}

	dest := p.Folder
	if folders := i.workspace.Folders(); len(folders) > 0 {
		dest = folders[0]
	}
	if dest == "" {
		i.logger.Info("Pending starter installation waits for an open folder", "archive_ref", p.ArchiveRef)
		return nil, nil
	}

	res, err := i.installInto(ctx, p.Bundle(), dest)
	if err != nil {
		// Network failures stay pending for the next activation; anything
		// else can never succeed as given and is abandoned.
		if !errors.Is(err, domain.ErrNetwork) {
			i.clearPending(ctx, "abandoned")
		}
		return nil, err
	}
	i.clearPending(ctx, "completed")
	return res, nil
}

// Pending returns the persisted continuation, if any.
func (i *Installer) Pending(ctx context.Context) (*domain.PendingStarterInstallation, error) {
	return i.pending.GetPendingInstallation(ctx)
}

// ClearPending drops the persisted continuation.
func (i *Installer) ClearPending(ctx context.Context) error {
	return i.pending.ClearPendingInstallation(ctx)
}

func (i *Installer) clearPending(ctx context.Context, reason string) {
	if err := i.pending.ClearPendingInstallation(ctx); err != nil {
		i.logger.Warn("Failed to clear pending starter installation", "reason", reason, "error", err)
	}
}

func (i *Installer) installInto(ctx context.Context, bundle domain.StarterBundle, dest string) (*Result, error) {
	url, err := i.resolve(ctx, bundle)
	if err != nil {
		return nil, err
	}
	data, err := i.download(ctx, url)
	if err != nil {
		return nil, err
	}
	files, err := Extract(data, dest, i.logger)
	if err != nil {
		return nil, err
	}

	opened := i.openFiles(ctx, dest, ChooseOpen(bundle.SuggestedOpen, files))
	i.logger.Info("Starter files installed", "dest", dest, "files", len(files), "opened", len(opened))
	return &Result{Dest: dest, Files: files, Opened: opened}, nil
}

func (i *Installer) resolve(ctx context.Context, bundle domain.StarterBundle) (string, error) {
	if bundle.IsDirectURL() {
		return bundle.ArchiveRef, nil
	}
	if i.resolver == nil {
		return "", fmt.Errorf("%w: no archive store configured for %s", domain.ErrValidation, bundle.ArchiveRef)
	}
	return i.resolver.SignedDownloadURL(ctx, bundle.ArchiveRef)
}
