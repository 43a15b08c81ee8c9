package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nhle/agent-notify/internal/credential"
	"github.com/nhle/agent-notify/internal/desktop"
	"github.com/nhle/agent-notify/internal/permission"
)

const historyBody = `{
	"notifications": [
		{"id": 1, "type": "email", "title": "Inbox digest", "message": "3 new emails", "read": false,
		 "created_at": "2026-01-02T10:00:00Z", "data": {"url": "https://example.com/mail"}},
		{"id": 2, "type": "paper", "title": "New paper", "message": "Attention again", "read": true,
		 "created_at": "2026-01-01T10:00:00Z"}
	],
	"unread_count": 1
}`

// fakeBackend serves the notification routes for user abc123 and records
// the paths it was called on.
type fakeBackend struct {
	mu    sync.Mutex
	calls []string
}

func (b *fakeBackend) record(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, path)
}

func (b *fakeBackend) called(path string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.calls {
		if c == path {
			return true
		}
	}
	return false
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.record(r.Method + " " + r.URL.Path)
	w.Header().Set("Content-Type", "application/json")

	switch r.Method + " " + r.URL.Path {
	case "POST /notifications/register":
		fmt.Fprint(w, `{"success": true, "user_id": "abc123"}`)
	case "GET /notifications/user/abc123/history":
		fmt.Fprint(w, historyBody)
	case "POST /notifications/mark-read/1",
		"POST /notifications/mark-all-read",
		"POST /notifications/clear-history",
		"POST /notifications/user/abc123/test":
		fmt.Fprint(w, `{"success": true}`)
	default:
		http.NotFound(w, r)
	}
}

// setupCLI writes a config pointing at baseURL and stubs the keyring and
// the desktop bus. It returns the config path.
func setupCLI(t *testing.T, baseURL string) string {
	t.Helper()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := fmt.Sprintf(`backend:
  base_url: %s
  timeout: 2s
registration:
  retry_delay: 10ms
  device_name: test-device
store:
  db_path: %s
log:
  level: error
  file: %s
`, baseURL, filepath.Join(dir, "agentnotify.db"), filepath.Join(dir, "agentnotify.log"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	prevCreds, prevNotifier := openCredentials, connectNotifier
	openCredentials = func() (*credential.Store, error) {
		return credential.NewStore(keyring.NewArrayKeyring(nil)), nil
	}
	connectNotifier = func(*zap.Logger) (*desktop.Notifier, error) {
		return nil, desktop.ErrUnavailable
	}
	t.Cleanup(func() {
		openCredentials, connectNotifier = prevCreds, prevNotifier
	})

	return cfgPath
}

func execute(t *testing.T, cfgPath string, args ...string) (string, string, error) {
	t.Helper()

	cmd := NewRootCmdForTest()
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	cmd := NewRootCmdForTest()

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"run", "worker", "test", "history", "read", "read-all", "clear", "permission"} {
		assert.Contains(t, names, want)
	}
}

func TestHistoryCmd_PrintsBackendHistory(t *testing.T) {
	srv := httptest.NewServer(&fakeBackend{})
	defer srv.Close()
	cfgPath := setupCLI(t, srv.URL)

	out, _, err := execute(t, cfgPath, "history")
	require.NoError(t, err)

	assert.Contains(t, out, "2 notifications, 1 unread")
	assert.Contains(t, out, "Inbox digest")
	assert.Contains(t, out, "#1")
	assert.Contains(t, out, "https://example.com/mail")
	assert.NotContains(t, out, "offline snapshot")
}

func TestHistoryCmd_UnreadJSON(t *testing.T) {
	srv := httptest.NewServer(&fakeBackend{})
	defer srv.Close()
	cfgPath := setupCLI(t, srv.URL)

	out, _, err := execute(t, cfgPath, "history", "--json", "--unread")
	require.NoError(t, err)

	var result historyJSON
	require.NoError(t, json.Unmarshal([]byte(out), &result), "output should be valid JSON")
	assert.Equal(t, "backend", result.Source)
	assert.Equal(t, 1, result.UnreadCount)
	require.Len(t, result.Notifications, 1)
	assert.Equal(t, "1", result.Notifications[0].ID)
}

func TestHistoryCmd_FallsBackToSnapshot(t *testing.T) {
	srv := httptest.NewServer(&fakeBackend{})
	cfgPath := setupCLI(t, srv.URL)

	_, _, err := execute(t, cfgPath, "history")
	require.NoError(t, err)
	srv.Close()

	out, _, err := execute(t, cfgPath, "history", "--timeout", "100ms")
	require.NoError(t, err)
	assert.Contains(t, out, "offline snapshot")
	assert.Contains(t, out, "Inbox digest")
}

func TestHistoryCmd_OfflineWithoutSnapshot(t *testing.T) {
	cfgPath := setupCLI(t, "http://127.0.0.1:1")

	out, _, err := execute(t, cfgPath, "history", "--offline")
	require.NoError(t, err)
	assert.Contains(t, out, "0 notifications, 0 unread")
	assert.Contains(t, out, "No notifications yet.")
}

func TestReadCmd_MarksNotificationRead(t *testing.T) {
	backend := &fakeBackend{}
	srv := httptest.NewServer(backend)
	defer srv.Close()
	cfgPath := setupCLI(t, srv.URL)

	out, _, err := execute(t, cfgPath, "read", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Marked 1 as read.")
	assert.True(t, backend.called("POST /notifications/mark-read/1"))
}

func TestReadCmd_AlreadyRead(t *testing.T) {
	backend := &fakeBackend{}
	srv := httptest.NewServer(backend)
	defer srv.Close()
	cfgPath := setupCLI(t, srv.URL)

	out, _, err := execute(t, cfgPath, "read", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "already read")
	assert.False(t, backend.called("POST /notifications/mark-read/2"))
}

func TestReadCmd_UnknownID(t *testing.T) {
	srv := httptest.NewServer(&fakeBackend{})
	defer srv.Close()
	cfgPath := setupCLI(t, srv.URL)

	_, _, err := execute(t, cfgPath, "read", "99")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestReadAllCmd_WithYes(t *testing.T) {
	backend := &fakeBackend{}
	srv := httptest.NewServer(backend)
	defer srv.Close()
	cfgPath := setupCLI(t, srv.URL)

	out, _, err := execute(t, cfgPath, "read-all", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "All notifications marked as read.")
	assert.True(t, backend.called("POST /notifications/mark-all-read"))

	out, _, err = execute(t, cfgPath, "history", "--offline")
	require.NoError(t, err)
	assert.Contains(t, out, "2 notifications, 0 unread")
}

func TestClearCmd_WithYes(t *testing.T) {
	backend := &fakeBackend{}
	srv := httptest.NewServer(backend)
	defer srv.Close()
	cfgPath := setupCLI(t, srv.URL)

	out, _, err := execute(t, cfgPath, "clear", "-y")
	require.NoError(t, err)
	assert.Contains(t, out, "Notification history cleared.")
	assert.True(t, backend.called("POST /notifications/clear-history"))
}

func TestTestCmd_RequestsTestNotification(t *testing.T) {
	backend := &fakeBackend{}
	srv := httptest.NewServer(backend)
	defer srv.Close()
	cfgPath := setupCLI(t, srv.URL)

	out, _, err := execute(t, cfgPath, "test")
	require.NoError(t, err)
	assert.Contains(t, out, "Test notification requested")
	assert.True(t, backend.called("POST /notifications/register"))
	assert.True(t, backend.called("POST /notifications/user/abc123/test"))
}

func TestTestCmd_RegistrationTimeout(t *testing.T) {
	cfgPath := setupCLI(t, "http://127.0.0.1:1")

	_, _, err := execute(t, cfgPath, "test", "--timeout", "50ms")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registering with")
}

func TestPermissionCmd_UnsupportedPlatform(t *testing.T) {
	cfgPath := setupCLI(t, "http://127.0.0.1:1")

	out, _, err := execute(t, cfgPath, "permission")
	require.NoError(t, err)
	assert.Contains(t, out, "Desktop notifications: unsupported")

	out, errOut, err := execute(t, cfgPath, "permission", "request", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "unsupported")
	assert.Contains(t, errOut, permission.WarnUnsupported)
}

func TestPermissionCmd_RejectsUnknownAction(t *testing.T) {
	cfgPath := setupCLI(t, "http://127.0.0.1:1")

	_, _, err := execute(t, cfgPath, "permission", "maybe")
	require.Error(t, err)
}
