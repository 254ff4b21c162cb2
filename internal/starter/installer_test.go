package starter

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/codecoach/internal/domain"
	"github.com/google/go-cmp/cmp"
)

type memPending struct {
	mu      sync.Mutex
	pending *domain.PendingStarterInstallation
	cleared int
}

func (m *memPending) GetPendingInstallation(context.Context) (*domain.PendingStarterInstallation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending, nil
}

func (m *memPending) SavePendingInstallation(_ context.Context, p *domain.PendingStarterInstallation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = p
	return nil
}

func (m *memPending) ClearPendingInstallation(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = nil
	m.cleared++
	return nil
}

type fakeWorkspace struct {
	folders       []string
	picked        string
	openedFolders []string
	openedFiles   []string
}

func (w *fakeWorkspace) Folders() []string { return w.folders }

func (w *fakeWorkspace) PickFolder(_ context.Context, suggested string) (string, error) {
	if w.picked != "" {
		return w.picked, nil
	}
	return suggested, nil
}

func (w *fakeWorkspace) OpenFolder(_ context.Context, path string) error {
	w.openedFolders = append(w.openedFolders, path)
	return nil
}

func (w *fakeWorkspace) OpenFile(_ context.Context, path string) error {
	w.openedFiles = append(w.openedFiles, path)
	return nil
}

type entry struct {
	name string
	body string
}

func makeZip(t *testing.T, entries ...entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err != nil {
			t.Fatalf("zip create %s: %v", e.name, err)
		}
		if _, err := w.Write([]byte(e.body)); err != nil {
			t.Fatalf("zip write %s: %v", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func serveArchive(t *testing.T, data []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSanitizePath(t *testing.T) {
	tests := map[string]string{
		"src/main.go":        "src/main.go",
		"/abs/file.txt":      "abs/file.txt",
		"../../etc/passwd":   "etc/passwd",
		`..\..\win\evil.txt`: "win/evil.txt",
		"./a/./b/../c":       "a/b/c",
		"C:\\temp\\x.txt":    "temp/x.txt",
		"../..":              "",
		"./":                 "",
		"dir//double//x.txt": "dir/double/x.txt",
	}
	for in, want := range tests {
		if got := SanitizePath(in); got != want {
			t.Errorf("SanitizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExtractNeverEscapesRoot(t *testing.T) {
	parent := t.TempDir()
	dest := filepath.Join(parent, "ws")
	data := makeZip(t,
		entry{"../../etc/passwd", "root:x"},
		entry{"../outside.txt", "nope"},
		entry{"..", "empty"},
		entry{"src/", ""},
		entry{"src/main.go", "package main"},
	)

	files, err := Extract(data, dest, nil)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if diff := cmp.Diff([]string{"etc/passwd", "outside.txt", "src/main.go"}, files); diff != "" {
		t.Fatalf("unexpected files (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Join(parent, "outside.txt")); !os.IsNotExist(err) {
		t.Fatal("entry escaped destination root")
	}
	if _, err := os.Stat(filepath.Join(dest, "etc", "passwd")); err != nil {
		t.Fatalf("sanitized entry not written under root: %v", err)
	}
	entries, _ := os.ReadDir(dest)
	for _, e := range entries {
		if !e.IsDir() && e.Name() != "outside.txt" {
			t.Fatalf("unexpected file at root: %s", e.Name())
		}
	}
}

func TestExtractRejectsCorruptArchive(t *testing.T) {
	_, err := Extract([]byte("not a zip"), t.TempDir(), nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestInstallRejectsDeclaredOversize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		_, _ = w.Write(make([]byte, 1000))
	}))
	defer srv.Close()

	dest := t.TempDir()
	inst := NewInstaller(nil, &fakeWorkspace{folders: []string{dest}}, &memPending{}, srv.Client(), 100, nil)
	_, err := inst.Install(context.Background(), domain.StarterBundle{ArchiveRef: srv.URL + "/a.zip"}, "A1")
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if entries, _ := os.ReadDir(dest); len(entries) != 0 {
		t.Fatalf("workspace modified: %d entries", len(entries))
	}
}

func TestInstallRejectsActualOversize(t *testing.T) {
	data := makeZip(t, entry{"big.txt", string(make([]byte, 4096))})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Flushing before the body forces a chunked response with no Content-Length.
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	dest := t.TempDir()
	inst := NewInstaller(nil, &fakeWorkspace{folders: []string{dest}}, &memPending{}, srv.Client(), int64(len(data)-1), nil)
	_, err := inst.Install(context.Background(), domain.StarterBundle{ArchiveRef: srv.URL}, "A1")
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if entries, _ := os.ReadDir(dest); len(entries) != 0 {
		t.Fatalf("workspace modified: %d entries", len(entries))
	}
}

func TestInstallIntoOpenFolder(t *testing.T) {
	data := makeZip(t,
		entry{"main.go", "package main"},
		entry{"README.md", "# hi"},
	)
	srv := serveArchive(t, data)
	dest := t.TempDir()
	ws := &fakeWorkspace{folders: []string{dest}}
	inst := NewInstaller(nil, ws, &memPending{}, srv.Client(), 0, nil)

	res, err := inst.Install(context.Background(), domain.StarterBundle{
		ArchiveRef:    srv.URL + "/starter.zip",
		SuggestedOpen: []string{"main.go", "missing.go"},
	}, "A1")
	if err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	if res.Deferred {
		t.Fatal("install should not defer with an open folder")
	}
	if diff := cmp.Diff([]string{"main.go"}, res.Opened); diff != "" {
		t.Fatalf("unexpected opened files (-want +got):\n%s", diff)
	}
	if len(ws.openedFiles) != 1 || ws.openedFiles[0] != filepath.Join(dest, "main.go") {
		t.Fatalf("unexpected OpenFile calls %v", ws.openedFiles)
	}
}

type fakeResolver struct {
	url   string
	calls []string
}

func (r *fakeResolver) SignedDownloadURL(_ context.Context, ref string) (string, error) {
	r.calls = append(r.calls, ref)
	return r.url, nil
}

func TestDeferredInstallThenResume(t *testing.T) {
	data := makeZip(t, entry{"README.md", "# start here"})
	srv := serveArchive(t, data)
	resolver := &fakeResolver{url: srv.URL + "/signed"}
	pending := &memPending{}
	folder := filepath.Join(t.TempDir(), "starter")
	ws := &fakeWorkspace{picked: folder}

	inst := NewInstaller(resolver, ws, pending, srv.Client(), 0, nil)
	res, err := inst.Install(context.Background(), domain.StarterBundle{ArchiveRef: "starters/a1.zip"}, "A1")
	if err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	if !res.Deferred {
		t.Fatal("expected deferred install")
	}
	if pending.pending == nil || pending.pending.ArchiveRef != "starters/a1.zip" {
		t.Fatalf("pending installation not persisted: %+v", pending.pending)
	}
	if len(resolver.calls) != 0 {
		t.Fatal("deferred install must not download")
	}
	if diff := cmp.Diff([]string{folder}, ws.openedFolders); diff != "" {
		t.Fatalf("unexpected OpenFolder calls (-want +got):\n%s", diff)
	}

	// Next activation: the host reopened with the chosen folder.
	ws.folders = []string{folder}
	if err := os.MkdirAll(folder, 0755); err != nil {
		t.Fatal(err)
	}
	res, err = inst.Resume(context.Background())
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if res == nil || len(res.Files) != 1 {
		t.Fatalf("unexpected resume result %+v", res)
	}
	if pending.pending != nil {
		t.Fatal("pending installation not cleared after success")
	}
	if _, err := os.Stat(filepath.Join(folder, "README.md")); err != nil {
		t.Fatalf("README not installed: %v", err)
	}

	// Nothing left to replay.
	if res, err := inst.Resume(context.Background()); err != nil || res != nil {
		t.Fatalf("expected no-op resume, got %+v, %v", res, err)
	}
}

func TestResumeKeepsPendingOnNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	pending := &memPending{pending: &domain.PendingStarterInstallation{ArchiveRef: srv.URL + "/a.zip"}}
	inst := NewInstaller(nil, &fakeWorkspace{folders: []string{t.TempDir()}}, pending, srv.Client(), 0, nil)

	if _, err := inst.Resume(context.Background()); !errors.Is(err, domain.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	if pending.pending == nil {
		t.Fatal("pending installation dropped on network failure")
	}
}

func TestResumeWaitsForFolder(t *testing.T) {
	pending := &memPending{pending: &domain.PendingStarterInstallation{ArchiveRef: "x.zip"}}
	inst := NewInstaller(nil, &fakeWorkspace{}, pending, nil, 0, nil)
	res, err := inst.Resume(context.Background())
	if err != nil || res != nil {
		t.Fatalf("expected no-op, got %+v, %v", res, err)
	}
	if pending.cleared != 0 {
		t.Fatal("pending cleared without an install")
	}
}

func TestChooseOpen(t *testing.T) {
	files := []string{"a.go", "b.go", "docs/readme.txt", "c.go", "d.go", "e.go", "f.go"}

	if diff := cmp.Diff([]string{"x.go", "y.go"}, ChooseOpen([]string{"x.go", "/y.go", "x.go"}, files)); diff != "" {
		t.Errorf("suggested list not preferred (-want +got):\n%s", diff)
	}
	want := []string{"docs/readme.txt", "a.go", "b.go", "c.go", "d.go"}
	if diff := cmp.Diff(want, ChooseOpen(nil, files)); diff != "" {
		t.Errorf("fallback selection (-want +got):\n%s", diff)
	}
	if got := ChooseOpen(nil, nil); len(got) != 0 {
		t.Errorf("expected no picks, got %v", got)
	}
}

func TestConcurrentResumeInstallsOnce(t *testing.T) {
	data := makeZip(t, entry{"main.go", "package main"})
	var downloads atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		downloads.Add(1)
		time.Sleep(50 * time.Millisecond)
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)

	folder := t.TempDir()
	pending := &memPending{pending: &domain.PendingStarterInstallation{ArchiveRef: srv.URL + "/a1.zip"}}
	inst := NewInstaller(nil, &fakeWorkspace{folders: []string{folder}}, pending, srv.Client(), 0, nil)

	var wg sync.WaitGroup
	results := make([]*Result, 2)
	errs := make([]error, 2)
	for n := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[n], errs[n] = inst.Resume(context.Background())
		}()
	}
	wg.Wait()

	installed := 0
	for n := range results {
		if errs[n] != nil {
			t.Fatalf("Resume %d failed: %v", n, errs[n])
		}
		if results[n] != nil {
			installed++
		}
	}
	if installed != 1 || downloads.Load() != 1 || pending.cleared != 1 {
		t.Fatalf("expected one install, got installs=%d downloads=%d cleared=%d",
			installed, downloads.Load(), pending.cleared)
	}
}

func TestResumeAfterRestartUsesChosenFolder(t *testing.T) {
	data := makeZip(t, entry{"README.md", "# start here"})
	srv := serveArchive(t, data)
	folder := filepath.Join(t.TempDir(), "starter")
	pending := &memPending{pending: &domain.PendingStarterInstallation{
		ArchiveRef: srv.URL + "/a1.zip",
		Folder:     folder,
	}}

	// A fresh process knows no open folders.
	inst := NewInstaller(nil, &fakeWorkspace{}, pending, srv.Client(), 0, nil)
	res, err := inst.Resume(context.Background())
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if res == nil || res.Dest != folder {
		t.Fatalf("expected install into %s, got %+v", folder, res)
	}
	if _, err := os.Stat(filepath.Join(folder, "README.md")); err != nil {
		t.Fatalf("README not installed: %v", err)
	}
	if pending.pending != nil {
		t.Fatal("pending installation not cleared after success")
	}
}
