package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthwatch/internal/alerts"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadWithoutFileUsesFallbackThresholds(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Source)
	assert.Equal(t, 7*24*time.Hour, cfg.Horizon())
	assert.Equal(t, 50, cfg.Monitoring.ErrorLogLines)

	th, restarts := cfg.ThresholdConfig()
	require.Contains(t, th, alerts.MetricCPU)
	assert.Equal(t, 80.0, *th[alerts.MetricCPU].Warning)
	assert.Equal(t, 90.0, *th[alerts.MetricDisk].Critical)
	assert.Nil(t, restarts.Warning)
}

func TestLoadFileWithoutThresholdsDisablesChecks(t *testing.T) {
	path := writeFile(t, "config.yaml", `
paths:
  history_file: /tmp/h.json
monitoring:
  history_retention_days: 3
  cpu_sample_interval: 250ms
docker:
  containers_to_ignore: [healthwatch, portainer]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Source)
	assert.Equal(t, "/tmp/h.json", cfg.Paths.HistoryFile)
	assert.Equal(t, 3*24*time.Hour, cfg.Horizon())
	assert.Equal(t, 250*time.Millisecond, cfg.Monitoring.CPUSampleInterval)
	assert.Equal(t, []string{"healthwatch", "portainer"}, cfg.Docker.ContainersToIgnore)
	assert.Equal(t, 5, cfg.Reporting.TopMemoryContainers)

	th, _ := cfg.ThresholdConfig()
	assert.Empty(t, th)
}

func TestLoadJSONThresholds(t *testing.T) {
	path := writeFile(t, "config.json", `{
  "thresholds": {
    "cpu_critical": 90,
    "disk_warning": 70,
    "container_restart_critical": 8,
    "disks": {"/backup": {"warning": 95}}
  }
}`)
	cfg, err := Load(path)
	require.NoError(t, err)

	th, restarts := cfg.ThresholdConfig()
	assert.Nil(t, th[alerts.MetricCPU].Warning)
	assert.Equal(t, 90.0, *th[alerts.MetricCPU].Critical)
	assert.Equal(t, 70.0, *th[alerts.MetricDisk].Warning)
	assert.Equal(t, 95.0, *th["disk:/backup"].Warning)
	assert.NotContains(t, th, alerts.MetricRAM)
	require.NotNil(t, restarts.Critical)
	assert.Equal(t, 8, *restarts.Critical)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HEALTHWATCH_SERVER_ADDR", ":9999")
	t.Setenv("HEALTHWATCH_THRESHOLDS_CPU_WARNING", "70")
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok")

	path := writeFile(t, "config.yaml", "alerts:\n  telegram:\n    chat_id: \"42\"\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "tok", cfg.Alerts.Telegram.Token)
	assert.Equal(t, "42", cfg.Alerts.Telegram.ChatID)

	th, _ := cfg.ThresholdConfig()
	assert.Equal(t, 70.0, *th[alerts.MetricCPU].Warning)
}

func TestValidateRejectsInvertedThresholds(t *testing.T) {
	path := writeFile(t, "config.yaml", `
monitoring:
  history_retention_days: 0
thresholds:
  ram_warning: 96
  ram_critical: 95
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history_retention_days")
	assert.Contains(t, err.Error(), "ram warning threshold")
}

func TestWriteExampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "config.yaml")
	require.NoError(t, WriteExample(path, false))
	require.Error(t, WriteExample(path, false))

	cfg, err := Load(path)
	require.NoError(t, err)
	th, restarts := cfg.ThresholdConfig()
	assert.Equal(t, 95.0, *th[alerts.MetricRAM].Critical)
	assert.Equal(t, 3, *restarts.Warning)
	assert.Equal(t, time.Second, cfg.Monitoring.CPUSampleInterval)
	assert.Equal(t, 24*time.Hour, cfg.Reporting.Window)
	assert.True(t, cfg.Alerts.CriticalImmediate)
}
