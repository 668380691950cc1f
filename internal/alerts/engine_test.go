package alerts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthwatch/internal/models"
)

func f(v float64) *float64 { return &v }

func n(v int) *int { return &v }

func hostThresholds() ThresholdConfig {
	return ThresholdConfig{
		MetricCPU:  {Warning: f(80), Critical: f(95)},
		MetricRAM:  {Warning: f(85), Critical: f(95)},
		MetricDisk: {Warning: f(80), Critical: f(90)},
	}
}

func TestClassifyCPU(t *testing.T) {
	cases := []struct {
		cpu       float64
		critical  int
		warnings  int
		wantLevel string
	}{
		{96, 1, 0, LevelCritical},
		{95, 1, 0, LevelCritical},
		{82, 0, 1, LevelWarning},
		{50, 0, 0, ""},
	}
	ev := NewEvaluator(hostThresholds(), RestartOverride{})
	for _, tc := range cases {
		got := ev.Evaluate(models.Snapshot{CPUPercent: tc.cpu})
		require.Len(t, got.Critical, tc.critical, "cpu %v", tc.cpu)
		require.Len(t, got.Warnings, tc.warnings, "cpu %v", tc.cpu)
		if tc.wantLevel != "" {
			assert.Equal(t, tc.wantLevel, got.All()[0].Level)
			assert.Equal(t, MetricCPU, got.All()[0].Metric)
		}
	}
}

func TestHostMessages(t *testing.T) {
	ev := NewEvaluator(hostThresholds(), RestartOverride{})
	got := ev.Evaluate(models.Snapshot{CPUPercent: 96.5, RAMPercent: 87})
	require.Len(t, got.Critical, 1)
	require.Len(t, got.Warnings, 1)
	assert.Equal(t, "CPU usage critical: 96.5%", got.Critical[0].Message)
	assert.Equal(t, "RAM usage high: 87%", got.Warnings[0].Message)
}

func TestMissingThresholdsAreSkipped(t *testing.T) {
	ev := NewEvaluator(ThresholdConfig{MetricRAM: {Critical: f(95)}}, RestartOverride{})
	got := ev.Evaluate(models.Snapshot{
		CPUPercent: 100,
		RAMPercent: 90,
		Disks:      []models.Disk{{Mount: "/", UsedPercent: 99}},
	})
	assert.True(t, got.Empty())

	got = ev.Evaluate(models.Snapshot{RAMPercent: 96})
	require.Len(t, got.Critical, 1)
	assert.Empty(t, got.Warnings)
}

func TestDisksAreCheckedIndependently(t *testing.T) {
	th := hostThresholds()
	th["disk:/backup"] = Level{Warning: f(95)}
	ev := NewEvaluator(th, RestartOverride{})

	got := ev.Evaluate(models.Snapshot{Disks: []models.Disk{
		{Mount: "/", UsedPercent: 92},
		{Mount: "/data", UsedPercent: 85},
		{Mount: "/var", UsedPercent: 10},
		{Mount: "/backup", UsedPercent: 93},
	}})
	require.Len(t, got.Critical, 1)
	require.Len(t, got.Warnings, 1)
	assert.Equal(t, "/", got.Critical[0].Subject)
	assert.Equal(t, "Disk / critical: 92%", got.Critical[0].Message)
	assert.Equal(t, "/data", got.Warnings[0].Subject)
	assert.Equal(t, "Disk /data high: 85%", got.Warnings[0].Message)
}

func TestEntitySignals(t *testing.T) {
	ev := NewEvaluator(nil, RestartOverride{})
	got := ev.Evaluate(models.Snapshot{Entities: []models.Entity{
		{Name: "web", Status: models.StatusRunning, Restarts: 2},
		{Name: "worker", Status: "exited"},
		{Name: "db", Status: models.StatusRunning, Health: "unhealthy"},
		{Name: "cache", Status: models.StatusRunning, Restarts: 3},
		{Name: "queue", Status: models.StatusRunning, Restarts: 7},
	}})

	crit := messages(got.Critical)
	warn := messages(got.Warnings)
	assert.Equal(t, []string{"db: unhealthy", "queue: 7 restarts"}, crit)
	assert.Equal(t, []string{"worker: exited", "cache: 3 restarts"}, warn)
}

func TestRestartOverrides(t *testing.T) {
	ev := NewEvaluator(nil, RestartOverride{Critical: n(10)})
	assert.Equal(t, RestartLevels{Warning: 3, Critical: 10}, ev.RestartLevels())

	got := ev.Evaluate(models.Snapshot{Entities: []models.Entity{
		{Name: "web", Status: models.StatusRunning, Restarts: 7},
	}})
	assert.Empty(t, got.Critical)
	require.Len(t, got.Warnings, 1)
	assert.Equal(t, MetricRestarts, got.Warnings[0].Metric)
}

func TestSummary(t *testing.T) {
	ev := NewEvaluator(hostThresholds(), RestartOverride{})
	got := Summary(ev.Evaluate(models.Snapshot{
		CPUPercent: 97,
		Entities:   []models.Entity{{Name: "worker", Status: "exited"}},
	}))
	assert.True(t, got.HasCritical)
	assert.Equal(t, []string{"CPU usage critical: 97%"}, got.CriticalIssues)
	assert.Equal(t, []string{"worker: exited"}, got.Warnings)

	empty := Summary(Violations{})
	assert.False(t, empty.HasCritical)
	assert.NotNil(t, empty.Warnings)
}

func messages(vs []Violation) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.Message)
	}
	return out
}
