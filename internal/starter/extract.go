package starter

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ashureev/codecoach/internal/domain"
)

// SanitizePath turns an archive entry name into a safe relative slash path.
// Separators are normalized, leading separators and any drive prefix are
// stripped, and "." and ".." segments are dropped. The result may be empty.
func SanitizePath(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if len(name) >= 2 && name[1] == ':' {
		name = name[2:]
	}

	segments := strings.Split(name, "/")
	kept := segments[:0]
	for _, s := range segments {
		if s == "" || s == "." || s == ".." {
			continue
		}
		kept = append(kept, s)
	}
	return strings.Join(kept, "/")
}

// Extract writes every file entry of the zip archive in data under dest and
// returns the written relative paths in archive order. Directory entries
// and entries whose sanitized path is empty are skipped. A failure part way
// through may leave already written files in place.
func Extract(data []byte, dest string, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if errors.Is(err, zip.ErrInsecurePath) {
		// Entries are sanitized below.
		err = nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open starter archive: %w", domain.ErrValidation, err)
	}

	root, err := filepath.Abs(dest)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %w", domain.ErrFilesystem, dest, err)
	}

	var written []string
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		rel := SanitizePath(f.Name)
		if rel == "" {
			logger.Warn("Skipping archive entry with empty path", "entry", f.Name)
			continue
		}

		target := filepath.Join(root, filepath.FromSlash(rel))
		if !within(root, target) {
			logger.Warn("Skipping archive entry outside destination", "entry", f.Name)
			continue
		}
		if err := writeEntry(f, target); err != nil {
			return written, err
		}
		written = append(written, rel)
	}
	return written, nil
}

func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

func writeEntry(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("%w: create directory for %s: %w", domain.ErrFilesystem, f.Name, err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: read entry %s: %w", domain.ErrValidation, f.Name, err)
	}
	defer func() { _ = rc.Close() }()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", domain.ErrFilesystem, target, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return fmt.Errorf("%w: write %s: %w", domain.ErrFilesystem, target, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", domain.ErrFilesystem, target, err)
	}
	return nil
}

// ChooseOpen picks up to five files to show after extraction: the suggested
// list when present, otherwise any README followed by the first extracted
// files.
func ChooseOpen(suggested, files []string) []string {
	var picks []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if len(picks) >= maxOpen {
			return
		}
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		picks = append(picks, p)
	}

	for _, s := range suggested {
		if s = SanitizePath(s); s != "" {
			add(s)
		}
	}
	if len(picks) > 0 {
		return picks
	}

	for _, f := range files {
		if strings.HasPrefix(strings.ToLower(path.Base(f)), "readme") {
			add(f)
		}
	}
	for _, f := range files {
		add(f)
	}
	return picks
}

// openFiles opens picks relative to dest. Missing or unopenable files are skipped.
func (i *Installer) openFiles(ctx context.Context, dest string, picks []string) []string {
	var opened []string
	for _, p := range picks {
		full := filepath.Join(dest, filepath.FromSlash(p))
		if _, err := os.Stat(full); err != nil {
			i.logger.Debug("Skipping missing starter file", "path", p)
			continue
		}
		if err := i.workspace.OpenFile(ctx, full); err != nil {
			i.logger.Debug("Failed to open starter file", "path", p, "error", err)
			continue
		}
		opened = append(opened, p)
	}
	return opened
}
