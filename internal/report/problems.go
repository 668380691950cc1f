package report

import (
	"fmt"
	"sort"
	"strconv"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	default:
		return 2
	}
}

// raise returns the more severe of s and to.
func (s Severity) raise(to Severity) Severity {
	if to.rank() < s.rank() {
		return to
	}
	return s
}

type ProblemStats struct {
	UptimePercent float64 `json:"uptime_percent" yaml:"uptime_percent"`
	Restarts      int     `json:"restarts" yaml:"restarts"`
	AvgMemMB      float64 `json:"avg_mem_mb" yaml:"avg_mem_mb"`
}

type Problem struct {
	Name     string       `json:"name" yaml:"name"`
	Severity Severity     `json:"severity" yaml:"severity"`
	Issues   []string     `json:"issues" yaml:"issues"`
	Errors   []string     `json:"errors" yaml:"errors"`
	Stats    ProblemStats `json:"stats" yaml:"stats"`
}

const (
	uptimeCritical   = 90.0
	restartsCritical = 5
	restartsWarning  = 3
	errorsPerProblem = 3
)

// RankProblems flags entities with incomplete uptime, restarts or errors and
// orders them critical, warning, info. Entities of equal severity keep their
// input order.
func RankProblems(stats []EntityStats) []Problem {
	out := []Problem{}
	for _, st := range stats {
		var issues []string
		sev := SeverityInfo

		if st.UptimePercent < 100 {
			issues = append(issues, "Uptime: "+formatPercent(st.UptimePercent)+"%")
			if st.UptimePercent < uptimeCritical {
				sev = sev.raise(SeverityCritical)
			} else {
				sev = sev.raise(SeverityWarning)
			}
		}
		if st.Restarts > 0 {
			issues = append(issues, fmt.Sprintf("%d restarts", st.Restarts))
			switch {
			case st.Restarts >= restartsCritical:
				sev = sev.raise(SeverityCritical)
			case st.Restarts >= restartsWarning:
				sev = sev.raise(SeverityWarning)
			}
		}
		if len(st.Errors) > 0 {
			issues = append(issues, fmt.Sprintf("%d error types", len(st.Errors)))
			sev = sev.raise(SeverityWarning)
		}
		if len(issues) == 0 {
			continue
		}

		errs := st.Errors
		if len(errs) > errorsPerProblem {
			errs = errs[:errorsPerProblem]
		}
		out = append(out, Problem{
			Name:     st.Name,
			Severity: sev,
			Issues:   issues,
			Errors:   append([]string{}, errs...),
			Stats: ProblemStats{
				UptimePercent: st.UptimePercent,
				Restarts:      st.Restarts,
				AvgMemMB:      st.AvgMemMB,
			},
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity.rank() < out[j].Severity.rank()
	})
	return out
}

func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
