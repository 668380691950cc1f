package render

import (
	"fmt"
	"strings"
	"time"

	"healthwatch/internal/alerts"
	"healthwatch/internal/models"
	"healthwatch/internal/notifier"
	"healthwatch/internal/report"
)

const maxProblems = 5

// Report turns an analysis into a channel message titled with host.
func Report(r report.Report, host string) notifier.Message {
	if r.NoData {
		return notifier.Message{
			Title:  fmt.Sprintf("%s • Health Report", host),
			Text:   "No data available for the requested window.",
			Color:  notifier.ColorWarning,
			Footer: footer(0, r.GeneratedAt),
		}
	}

	status, color := statusText(r.Status)
	msg := notifier.Message{
		Title: fmt.Sprintf("%s %s • %s Health Report", statusIcon(r.Status), host, windowLabel(r.Window)),
		Text: fmt.Sprintf("**CPU**: Avg %s%% (peak %s%%)  •  **RAM**: Avg %s%% (peak %s%%)  •  **Status**: %s",
			num(r.Trends.CPU.Avg), num(r.Trends.CPU.Max), num(r.Trends.RAM.Avg), num(r.Trends.RAM.Max), status),
		Color:  color,
		Footer: footer(r.Trends.DataPoints, r.GeneratedAt),
	}

	msg.Fields = append(msg.Fields, notifier.Field{Name: "💾 Current State", Value: currentState(r.Latest)})

	if len(r.Problems) > 0 {
		var sb strings.Builder
		for i, p := range r.Problems {
			if i == maxProblems {
				break
			}
			icon := "⚠️"
			if p.Severity == report.SeverityCritical {
				icon = "🔥"
			}
			fmt.Fprintf(&sb, "%s **%s**: %s\n", icon, p.Name, strings.Join(p.Issues, ", "))
		}
		msg.Fields = append(msg.Fields, notifier.Field{Name: "🚨 Issues Detected", Value: strings.TrimRight(sb.String(), "\n")})
	}

	mem := make([]string, 0, 3)
	for i, c := range r.TopMemory {
		if i == 3 {
			break
		}
		mem = append(mem, fmt.Sprintf("• **%s**: %.0f MB avg (peak %.0f MB)", c.Name, c.Avg, c.Max))
	}
	cpu := make([]string, 0, 3)
	for i, c := range r.TopCPU {
		if i == 3 {
			break
		}
		cpu = append(cpu, fmt.Sprintf("• **%s**: %.1f%% avg", c.Name, c.Avg))
	}
	msg.Fields = append(msg.Fields,
		notifier.Field{Name: "📊 Top Memory Users", Value: orNA(strings.Join(mem, "\n")), Inline: true},
		notifier.Field{Name: "⚡ Top CPU Users", Value: orNA(strings.Join(cpu, "\n")), Inline: true},
	)
	return msg
}

// Critical builds the immediate alert sent after a poll with critical findings.
func Critical(host string, snap models.Snapshot, v alerts.Violations) notifier.Message {
	lines := make([]string, 0, len(v.Critical)+len(v.Warnings))
	for _, c := range v.Critical {
		lines = append(lines, "🔥 "+c.Message)
	}
	for _, w := range v.Warnings {
		lines = append(lines, "⚠️ "+w.Message)
	}
	return notifier.Message{
		Title:  fmt.Sprintf("🔴 %s • Critical Alert", host),
		Text:   strings.Join(lines, "\n"),
		Color:  notifier.ColorCritical,
		Fields: []notifier.Field{{Name: "💾 Current State", Value: currentState(&snap)}},
		Footer: snap.Timestamp,
	}
}

func currentState(s *models.Snapshot) string {
	if s == nil {
		return "N/A"
	}
	disks := make([]string, 0, len(s.Disks))
	for _, d := range s.Disks {
		disks = append(disks, fmt.Sprintf("%s: %s%%", d.Mount, num(d.UsedPercent)))
	}
	uptime := s.Uptime
	if uptime == "" {
		uptime = "N/A"
	}
	return fmt.Sprintf("**Containers**: %d/%d running\n**Disks**: %s\n**Uptime**: %s",
		s.ContainersRunning, s.ContainersTotal, orNA(strings.Join(disks, " | ")), uptime)
}

func statusText(status string) (string, int) {
	switch status {
	case report.StatusCritical:
		return "Critical Issues", notifier.ColorCritical
	case report.StatusWarning:
		return "Warnings", notifier.ColorWarning
	default:
		return "All Systems Nominal", notifier.ColorOK
	}
}

func statusIcon(status string) string {
	switch status {
	case report.StatusCritical:
		return "🔴"
	case report.StatusWarning:
		return "⚠️"
	default:
		return "✅"
	}
}

func windowLabel(w string) string {
	if w == "" {
		return "24h"
	}
	d, err := time.ParseDuration(w)
	if err != nil {
		return w
	}
	if d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return d.String()
}

func footer(points int, at time.Time) string {
	return fmt.Sprintf("Analysis of %d data points • %s", points, at.Format("2006-01-02 15:04:05"))
}

func num(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
