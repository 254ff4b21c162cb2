package starter

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/ashureev/codecoach/internal/domain"
)

// LocalWorkspace is a Workspace backed by plain directories, used when no
// editor shell is attached. Opening a folder makes it the current one;
// opening a file prints its path.
type LocalWorkspace struct {
	mu      sync.Mutex
	folders []string
	out     io.Writer
}

// NewLocalWorkspace creates a workspace with the given open folders.
func NewLocalWorkspace(folders []string, out io.Writer) *LocalWorkspace {
	if out == nil {
		out = io.Discard
	}
	return &LocalWorkspace{folders: append([]string(nil), folders...), out: out}
}

// Folders implements Workspace.
func (w *LocalWorkspace) Folders() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.folders...)
}

// PickFolder implements Workspace by accepting the suggested folder.
func (w *LocalWorkspace) PickFolder(_ context.Context, suggested string) (string, error) {
	if suggested == "" {
		return "", fmt.Errorf("%w: no folder suggested", domain.ErrFilesystem)
	}
	return filepath.Abs(suggested)
}

// OpenFolder implements Workspace.
func (w *LocalWorkspace) OpenFolder(_ context.Context, path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("%w: create %s: %w", domain.ErrFilesystem, path, err)
	}
	w.mu.Lock()
	w.folders = append([]string{path}, w.folders...)
	w.mu.Unlock()
	return nil
}

// OpenFile implements Workspace.
func (w *LocalWorkspace) OpenFile(_ context.Context, path string) error {
	_, err := fmt.Fprintln(w.out, path)
	return err
}
