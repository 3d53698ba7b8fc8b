package main

import (
	"bytes"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regdesk/internal/api"
	"regdesk/internal/registration"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	content := fmt.Sprintf(`
storage:
  requests_file: %s
accounts:
  db_path: %s
admin:
  tokens:
    - token: secret
      admin_id: ops
logging:
  level: error
`, filepath.Join(dir, "requests.json"), filepath.Join(dir, "accounts.db"))

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// startServer runs the admin API for cfgPath the way serve does and returns
// the app behind it with the server's base URL.
func startServer(t *testing.T, cfgPath string) (*app, string) {
	t.Helper()

	cfg, err := loadConfig(cfgPath)
	require.NoError(t, err)

	var buf bytes.Buffer
	a, err := newApp(cfg, newLogger(cfg.Logging, &buf), nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	srv := httptest.NewServer(api.NewServer(a.service, cfg.Admin, a.logger, api.Options{}).Router())
	t.Cleanup(srv.Close)
	return a, srv.URL
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func submit(t *testing.T, a *app, username string) string {
	t.Helper()

	id, err := a.service.Submit(username, "password1", username+"@example.com")
	require.NoError(t, err)
	return id
}

func TestPendingCmd_Empty(t *testing.T) {
	cfg := writeTestConfig(t)
	_, url := startServer(t, cfg)

	out, err := runCmd(t, "pending", "--config", cfg, "--server", url, "--token", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "No pending registration requests.")
}

func TestPendingCmd_ListsRequests(t *testing.T) {
	cfg := writeTestConfig(t)
	a, url := startServer(t, cfg)
	id := submit(t, a, "alice")

	out, err := runCmd(t, "pending", "--config", cfg, "--server", url, "--token", "secret")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "USERNAME")
	assert.Contains(t, lines[1], id)
	assert.Contains(t, lines[1], "alice")
	assert.NotContains(t, out, "password1")
}

func TestApproveCmd(t *testing.T) {
	cfg := writeTestConfig(t)
	a, url := startServer(t, cfg)
	id := submit(t, a, "bob")

	out, err := runCmd(t, "approve", id, "--config", cfg, "--server", url, "--token", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "Approved "+id)

	// The running server's store sees the change; nothing else wrote the file
	req, err := a.service.Get(id)
	require.NoError(t, err)
	assert.Equal(t, registration.StatusApproved, req.Status)
	require.NotNil(t, req.ProcessedBy)
	assert.Equal(t, "ops", *req.ProcessedBy)

	out, err = runCmd(t, "pending", "--config", cfg, "--server", url, "--token", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "No pending")

	_, err = runCmd(t, "approve", id, "--config", cfg, "--server", url, "--token", "secret")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already been processed")
}

func TestRejectCmd(t *testing.T) {
	cfg := writeTestConfig(t)
	a, url := startServer(t, cfg)
	id := submit(t, a, "carol")

	out, err := runCmd(t, "reject", id, "--config", cfg, "--server", url, "--token", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "Rejected "+id)

	req, err := a.service.Get(id)
	require.NoError(t, err)
	assert.Equal(t, registration.StatusRejected, req.Status)
}

func TestProcessCmd_TokenFromConfig(t *testing.T) {
	cfg := writeTestConfig(t)
	a, url := startServer(t, cfg)
	id := submit(t, a, "dave")

	f, err := os.OpenFile(cfg, os.O_APPEND|os.O_WRONLY, 0600)
	require.NoError(t, err)
	_, err = fmt.Fprintf(f, "cli:\n  server_url: %s\n  token: secret\n", url)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	out, err := runCmd(t, "reject", id, "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Rejected "+id)
}

func TestProcessCmd_RequiresToken(t *testing.T) {
	cfg := writeTestConfig(t)
	_, url := startServer(t, cfg)

	_, err := runCmd(t, "approve", "some-id", "--config", cfg, "--server", url)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token")
}

func TestProcessCmd_WrongToken(t *testing.T) {
	cfg := writeTestConfig(t)
	a, url := startServer(t, cfg)
	id := submit(t, a, "erin")

	_, err := runCmd(t, "approve", id, "--config", cfg, "--server", url, "--token", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")

	req, err := a.service.Get(id)
	require.NoError(t, err)
	assert.True(t, req.Pending())
}

func TestProcessCmd_RequiresID(t *testing.T) {
	cfg := writeTestConfig(t)

	_, err := runCmd(t, "reject", "--config", cfg, "--token", "secret")
	assert.Error(t, err)
}

func TestMissingConfigFile(t *testing.T) {
	_, err := runCmd(t, "pending", "--config", filepath.Join(t.TempDir(), "nope.yaml"), "--token", "secret")
	assert.Error(t, err)
}

func TestNewLogger_Levels(t *testing.T) {
	var buf bytes.Buffer

	cfg, err := loadConfig(writeTestConfig(t))
	require.NoError(t, err)

	logger := newLogger(cfg.Logging, &buf)
	logger.Warn("hidden")
	logger.Error("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
