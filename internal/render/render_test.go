package render

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthwatch/internal/alerts"
	"healthwatch/internal/models"
	"healthwatch/internal/notifier"
	"healthwatch/internal/report"
)

func TestReportMessage(t *testing.T) {
	latest := models.Snapshot{
		ContainersRunning: 4,
		ContainersTotal:   5,
		Uptime:            "3d 2h 1m",
		Disks:             []models.Disk{{Mount: "/", UsedPercent: 55.5}, {Mount: "/data", UsedPercent: 80}},
	}
	r := report.Report{
		GeneratedAt: time.Date(2026, 2, 21, 8, 0, 0, 0, time.UTC),
		Window:      "24h0m0s",
		Status:      report.StatusCritical,
		Trends:      &report.Trends{CPU: report.Stat{Avg: 12.5, Max: 40}, RAM: report.Stat{Avg: 60, Max: 71.25}, DataPoints: 24},
		Problems: []report.Problem{
			{Name: "db", Severity: report.SeverityCritical, Issues: []string{"Uptime: 50%"}},
			{Name: "web", Severity: report.SeverityWarning, Issues: []string{"Uptime: 91.67%", "4 restarts"}},
		},
		TopMemory: []report.Consumer{{Name: "db", Avg: 512.4, Max: 600}},
		Latest:    &latest,
	}

	msg := Report(r, "asmo-01")
	assert.Equal(t, "🔴 asmo-01 • 24h Health Report", msg.Title)
	assert.Equal(t, "**CPU**: Avg 12.5% (peak 40%)  •  **RAM**: Avg 60% (peak 71.25%)  •  **Status**: Critical Issues", msg.Text)
	assert.Equal(t, notifier.ColorCritical, msg.Color)
	assert.Equal(t, "Analysis of 24 data points • 2026-02-21 08:00:00", msg.Footer)

	require.Len(t, msg.Fields, 4)
	assert.Equal(t, "**Containers**: 4/5 running\n**Disks**: /: 55.5% | /data: 80%\n**Uptime**: 3d 2h 1m", msg.Fields[0].Value)
	assert.Equal(t, "🔥 **db**: Uptime: 50%\n⚠️ **web**: Uptime: 91.67%, 4 restarts", msg.Fields[1].Value)
	assert.Equal(t, "• **db**: 512 MB avg (peak 600 MB)", msg.Fields[2].Value)
	assert.Equal(t, "N/A", msg.Fields[3].Value)
	assert.True(t, msg.Fields[3].Inline)
}

func TestReportMessageNoData(t *testing.T) {
	msg := Report(report.Report{NoData: true, Status: report.StatusNoData}, "asmo-01")
	assert.Contains(t, msg.Text, "No data")
	assert.Empty(t, msg.Fields)
}

func TestCriticalMessage(t *testing.T) {
	v := alerts.Violations{
		Critical: []alerts.Violation{{Message: "CPU usage critical: 97%"}},
		Warnings: []alerts.Violation{{Message: "worker: exited"}},
	}
	msg := Critical("asmo-01", models.Snapshot{Timestamp: "2026-02-21T12:00:00Z"}, v)
	assert.True(t, strings.HasPrefix(msg.Text, "🔥 CPU usage critical: 97%"))
	assert.Contains(t, msg.Text, "⚠️ worker: exited")
	assert.Equal(t, notifier.ColorCritical, msg.Color)
}
