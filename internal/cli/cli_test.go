package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthwatch/internal/app"
	"healthwatch/internal/config"
	"healthwatch/internal/models"
	"healthwatch/internal/report"
)

type fakeRunner struct {
	monitor  app.RunResult
	window   time.Duration
	notify   bool
	test     bool
	since    time.Duration
	snaps    []models.Snapshot
	closed   bool
	serveErr error
	addr     string
}

func (f *fakeRunner) Monitor(_ context.Context, test bool) app.RunResult {
	f.test = test
	return f.monitor
}

func (f *fakeRunner) Report(_ context.Context, window time.Duration, notify bool) (report.Report, app.RunResult) {
	f.window, f.notify = window, notify
	return report.Report{Status: report.StatusWarning, Window: window.String()},
		app.RunResult{Success: true, Status: app.StatusOK, Summary: &app.RunSummary{ReportStatus: report.StatusWarning}}
}

func (f *fakeRunner) History(since time.Duration) []models.Snapshot {
	f.since = since
	return f.snaps
}

func (f *fakeRunner) Latest() (models.Snapshot, bool) {
	if len(f.snaps) == 0 {
		return models.Snapshot{}, false
	}
	return f.snaps[len(f.snaps)-1], true
}

func (f *fakeRunner) Serve(_ context.Context, addr string, _ time.Duration) error {
	f.addr = addr
	return f.serveErr
}

func (f *fakeRunner) Close() error {
	f.closed = true
	return nil
}

func run(t *testing.T, r *fakeRunner, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HEALTHWATCH_LOGGING_OUTPUT", "none")
	var out, errOut bytes.Buffer
	c := newCLI(&out, &errOut)
	c.newRunner = func(config.Config, *slog.Logger) (Runner, error) { return r, nil }
	root := c.rootCmd()
	root.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "none.yaml")}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMonitorPrintsResult(t *testing.T) {
	r := &fakeRunner{monitor: app.RunResult{Success: true, RunID: "abc", Status: app.StatusOK}}
	out, err := run(t, r, "monitor", "--test")
	require.NoError(t, err)
	assert.True(t, r.test)
	assert.True(t, r.closed)

	var res app.RunResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "abc", res.RunID)
	assert.True(t, res.Success)
}

func TestMonitorFailureSetsExitError(t *testing.T) {
	r := &fakeRunner{monitor: app.RunResult{Success: false, Status: app.StatusFailed, Error: "disk full"}}
	out, err := run(t, r, "monitor")
	require.ErrorIs(t, err, errRunFailed)
	assert.Contains(t, out, `"status": "failed"`)
	assert.Contains(t, out, "disk full")
}

func TestRunnerInitFailurePrintsFailedResult(t *testing.T) {
	t.Setenv("HEALTHWATCH_LOGGING_OUTPUT", "none")
	var out bytes.Buffer
	c := newCLI(&out, &bytes.Buffer{})
	c.newRunner = func(config.Config, *slog.Logger) (Runner, error) { return nil, errors.New("permission denied") }
	root := c.rootCmd()
	root.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "none.yaml"), "monitor"})

	err := root.ExecuteContext(context.Background())
	require.ErrorIs(t, err, errRunFailed)
	assert.Contains(t, out.String(), `"success": false`)
	assert.Contains(t, out.String(), "permission denied")
}

func TestConfigErrorPrintsFailedResult(t *testing.T) {
	t.Setenv("HEALTHWATCH_LOGGING_OUTPUT", "none")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("thresholds:\n  ram_warning: 96\n  ram_critical: 95\n"), 0o600))

	var out bytes.Buffer
	c := newCLI(&out, &bytes.Buffer{})
	called := false
	c.newRunner = func(config.Config, *slog.Logger) (Runner, error) { called = true; return &fakeRunner{}, nil }
	root := c.rootCmd()
	root.SetArgs([]string{"--config", path, "report"})

	err := root.ExecuteContext(context.Background())
	require.ErrorIs(t, err, errRunFailed)
	assert.False(t, called)

	var res app.RunResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.False(t, res.Success)
	assert.Equal(t, app.StatusFailed, res.Status)
	assert.Contains(t, res.Error, "load config")
	assert.Contains(t, res.Error, "ram warning threshold")
}

func TestReportWindowAndFormats(t *testing.T) {
	r := &fakeRunner{}
	out, err := run(t, r, "report", "--window", "7d", "--notify")
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, r.window)
	assert.True(t, r.notify)
	assert.Contains(t, out, `"report_status": "warning"`)

	out, err = run(t, r, "report", "--debug", "-o", "yaml")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, r.window)
	assert.Contains(t, out, "status: warning")
	assert.Contains(t, out, "window: 24h0m0s")

	_, err = run(t, r, "report", "--window", "soon")
	assert.Error(t, err)
}

func TestHistory(t *testing.T) {
	r := &fakeRunner{snaps: []models.Snapshot{
		{Timestamp: "2026-02-21T11:00:00Z", CPUPercent: 1},
		{Timestamp: "2026-02-21T12:00:00Z", CPUPercent: 2},
	}}
	out, err := run(t, r, "history", "--since", "2d")
	require.NoError(t, err)
	assert.Equal(t, 48*time.Hour, r.since)
	var snaps []models.Snapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snaps))
	assert.Len(t, snaps, 2)

	out, err = run(t, r, "history", "--latest")
	require.NoError(t, err)
	assert.Contains(t, out, "2026-02-21T12:00:00Z")

	_, err = run(t, &fakeRunner{}, "history", "--latest")
	assert.Error(t, err)
}

func TestServeUsesConfiguredAddr(t *testing.T) {
	r := &fakeRunner{}
	_, err := run(t, r, "serve")
	require.NoError(t, err)
	assert.Equal(t, ":8080", r.addr)

	_, err = run(t, r, "serve", "--addr", "127.0.0.1:9100")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9100", r.addr)
}

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	out, err := run(t, &fakeRunner{}, "init-config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "cpu_warning: 80")

	_, err = run(t, &fakeRunner{}, "init-config", path)
	assert.Error(t, err)
	_, err = run(t, &fakeRunner{}, "init-config", "--force", path)
	assert.NoError(t, err)
}
