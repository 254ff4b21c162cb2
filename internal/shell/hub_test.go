package shell

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/codecoach/internal/domain"
	"github.com/ashureev/codecoach/internal/session"
	"github.com/coder/websocket"
)

type fakeHandler struct {
	chats    chan string
	commands chan string
	resumes  chan struct{}
}

func newFakeHandler() *fakeHandler {
	return &fakeHandler{
		chats:    make(chan string, 4),
		commands: make(chan string, 4),
		resumes:  make(chan struct{}, 4),
	}
}

func (f *fakeHandler) Chat(_ context.Context, text, _ string) (string, error) {
	f.chats <- text
	return "ok", nil
}

func (f *fakeHandler) RunCommand(_ context.Context, name, arg string) error {
	f.commands <- name + ":" + arg
	return nil
}

func (f *fakeHandler) ResumeStarter(context.Context) error {
	f.resumes <- struct{}{}
	return nil
}

func (f *fakeHandler) Status() session.StatusView {
	return session.StatusView{State: domain.StateActive, Text: "Active assignment: Loops"}
}

func startShell(t *testing.T) (*Hub, *fakeHandler, *websocket.Conn) {
	t.Helper()
	hub := NewHub(nil, nil)
	handler := newFakeHandler()
	hub.SetHandler(handler)

	srv := httptest.NewServer(NewWebSocketHandler(context.Background(), hub, "", true))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })

	if msg := readMsg(t, conn); msg.Type != "status" || msg.Status == nil || msg.Status.State != domain.StateActive {
		t.Fatalf("expected initial status, got %+v", msg)
	}
	return hub, handler, conn
}

func readMsg(t *testing.T, conn *websocket.Conn) outbound {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var msg outbound
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return msg
}

func sendMsg(t *testing.T, conn *websocket.Conn, msg inbound) {
	t.Helper()
	data, _ := json.Marshal(msg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for handler call")
	}
	var zero T
	return zero
}

func TestSendAndCommandDispatch(t *testing.T) {
	_, handler, conn := startShell(t)

	sendMsg(t, conn, inbound{Type: "send", Text: "what is a loop?"})
	if got := waitFor(t, handler.chats); got != "what is a loop?" {
		t.Fatalf("chat = %q", got)
	}

	sendMsg(t, conn, inbound{Type: "cmd", Command: "openAssignment", Arg: "A1"})
	if got := waitFor(t, handler.commands); got != "openAssignment:A1" {
		t.Fatalf("command = %q", got)
	}
}

func TestEventsAreBroadcast(t *testing.T) {
	hub, _, conn := startShell(t)

	hub.Message(domain.RoleCoach, "Why that bound?")
	msg := readMsg(t, conn)
	if msg.Type != "message" || msg.Role != domain.RoleCoach || msg.Text != "Why that bound?" {
		t.Fatalf("unexpected message %+v", msg)
	}

	hub.Busy(true)
	if msg := readMsg(t, conn); msg.Type != "busy" || msg.Busy == nil || !*msg.Busy {
		t.Fatalf("unexpected busy %+v", msg)
	}

	hub.Notice(session.LevelWarning, "careful")
	if msg := readMsg(t, conn); msg.Type != "notice" || msg.Level != session.LevelWarning {
		t.Fatalf("unexpected notice %+v", msg)
	}
}

func TestPickFolderRoundTrip(t *testing.T) {
	hub, _, conn := startShell(t)
	want := filepath.Join(t.TempDir(), "chosen")

	result := make(chan string, 1)
	go func() {
		path, err := hub.PickFolder(context.Background(), "./workspace")
		if err != nil {
			t.Errorf("PickFolder failed: %v", err)
		}
		result <- path
	}()

	req := readMsg(t, conn)
	if req.Type != "pick_folder" || req.RequestID == "" {
		t.Fatalf("expected pick_folder request, got %+v", req)
	}
	sendMsg(t, conn, inbound{Type: "folder_picked", RequestID: req.RequestID, Path: want})

	if got := waitFor(t, result); got != want {
		t.Fatalf("PickFolder = %q, want %q", got, want)
	}
}

func TestPickFolderWithoutShellUsesSuggested(t *testing.T) {
	hub := NewHub(nil, nil)
	got, err := hub.PickFolder(context.Background(), "workspace")
	if err != nil {
		t.Fatalf("PickFolder failed: %v", err)
	}
	want, _ := filepath.Abs("workspace")
	if got != want {
		t.Fatalf("PickFolder = %q, want %q", got, want)
	}
}

func TestPickFolderTimeoutFallsBack(t *testing.T) {
	hub, _, conn := startShell(t)
	hub.pickTimeout = 50 * time.Millisecond

	dir := t.TempDir()
	got, err := hub.PickFolder(context.Background(), dir)
	if err != nil {
		t.Fatalf("PickFolder failed: %v", err)
	}
	if got != dir {
		t.Fatalf("PickFolder = %q, want %q", got, dir)
	}
	_ = readMsg(t, conn) // drain the request
}

func TestOpenFolderWithoutShellBecomesCurrent(t *testing.T) {
	hub := NewHub(nil, nil)
	dir := filepath.Join(t.TempDir(), "starter")
	if err := hub.OpenFolder(context.Background(), dir); err != nil {
		t.Fatalf("OpenFolder failed: %v", err)
	}
	if got := hub.Folders(); len(got) != 1 || got[0] != dir {
		t.Fatalf("Folders = %v", got)
	}
}

func TestWorkspaceReportResumesStarter(t *testing.T) {
	hub, handler, conn := startShell(t)

	sendMsg(t, conn, inbound{Type: "workspace", Folders: []string{"/home/learner/ws"}})
	waitFor(t, handler.resumes)
	if got := hub.Folders(); len(got) != 1 || got[0] != "/home/learner/ws" {
		t.Fatalf("Folders = %v", got)
	}
}

func TestRegisterReplacesConnection(t *testing.T) {
	hub := NewHub(nil, nil)
	conn := &websocket.Conn{}
	hub.Register("tab-1", conn)
	if hub.Count() != 1 {
		t.Fatalf("Count = %d", hub.Count())
	}
	hub.Unregister("tab-1", &websocket.Conn{})
	if hub.Count() != 1 {
		t.Fatal("stale unregister removed live connection")
	}
	hub.Unregister("tab-1", conn)
	if hub.Count() != 0 {
		t.Fatal("connection not removed")
	}
}
