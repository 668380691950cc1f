package alerts

import (
	"fmt"
	"strconv"
	"strings"

	"healthwatch/internal/models"
)

const (
	LevelWarning  = "warning"
	LevelCritical = "critical"

	MetricCPU      = "cpu"
	MetricRAM      = "ram"
	MetricDisk     = "disk"
	MetricState    = "state"
	MetricHealth   = "health"
	MetricRestarts = "restarts"
)

// Level holds the warning and critical bounds for one metric. A nil bound
// disables that classification.
type Level struct {
	Warning  *float64 `json:"warning,omitempty" yaml:"warning,omitempty" mapstructure:"warning"`
	Critical *float64 `json:"critical,omitempty" yaml:"critical,omitempty" mapstructure:"critical"`
}

// ThresholdConfig maps a metric key (cpu, ram, disk or disk:<mount>) to its
// levels. Metrics without an entry are not checked.
type ThresholdConfig map[string]Level

type RestartOverride struct {
	Warning  *int `json:"warning,omitempty" yaml:"warning,omitempty" mapstructure:"warning"`
	Critical *int `json:"critical,omitempty" yaml:"critical,omitempty" mapstructure:"critical"`
}

type RestartLevels struct {
	Warning  int
	Critical int
}

var DefaultRestartThresholds = RestartLevels{Warning: 3, Critical: 5}

type Violation struct {
	Metric  string  `json:"metric"`
	Subject string  `json:"subject,omitempty"`
	Value   float64 `json:"value"`
	Level   string  `json:"level"`
	Message string  `json:"message"`
}

type Violations struct {
	Warnings []Violation `json:"warnings"`
	Critical []Violation `json:"critical"`
}

func (v Violations) HasCritical() bool { return len(v.Critical) > 0 }

func (v Violations) Empty() bool { return len(v.Warnings) == 0 && len(v.Critical) == 0 }

func (v Violations) All() []Violation {
	out := make([]Violation, 0, len(v.Critical)+len(v.Warnings))
	out = append(out, v.Critical...)
	return append(out, v.Warnings...)
}

func (v *Violations) add(x Violation) {
	if x.Level == LevelCritical {
		v.Critical = append(v.Critical, x)
		return
	}
	v.Warnings = append(v.Warnings, x)
}

// Evaluator classifies a single snapshot. It keeps no state between calls.
type Evaluator struct {
	thresholds ThresholdConfig
	restarts   RestartLevels
}

func NewEvaluator(thresholds ThresholdConfig, restarts RestartOverride) *Evaluator {
	levels := DefaultRestartThresholds
	if restarts.Warning != nil {
		levels.Warning = *restarts.Warning
	}
	if restarts.Critical != nil {
		levels.Critical = *restarts.Critical
	}
	if thresholds == nil {
		thresholds = ThresholdConfig{}
	}
	return &Evaluator{thresholds: thresholds, restarts: levels}
}

func (e *Evaluator) RestartLevels() RestartLevels { return e.restarts }

func (e *Evaluator) Evaluate(s models.Snapshot) Violations {
	var out Violations

	if lvl, ok := e.thresholds[MetricCPU]; ok {
		if v, hit := classify(s.CPUPercent, lvl); hit {
			out.add(Violation{Metric: MetricCPU, Value: s.CPUPercent, Level: v, Message: hostMessage("CPU", v, s.CPUPercent)})
		}
	}
	if lvl, ok := e.thresholds[MetricRAM]; ok {
		if v, hit := classify(s.RAMPercent, lvl); hit {
			out.add(Violation{Metric: MetricRAM, Value: s.RAMPercent, Level: v, Message: hostMessage("RAM", v, s.RAMPercent)})
		}
	}
	for _, d := range s.Disks {
		lvl, ok := e.diskLevel(d.Mount)
		if !ok {
			continue
		}
		if v, hit := classify(d.UsedPercent, lvl); hit {
			word := "high"
			if v == LevelCritical {
				word = "critical"
			}
			out.add(Violation{
				Metric: MetricDisk, Subject: d.Mount, Value: d.UsedPercent, Level: v,
				Message: fmt.Sprintf("Disk %s %s: %s%%", d.Mount, word, formatValue(d.UsedPercent)),
			})
		}
	}

	for _, ent := range s.Entities {
		if !ent.Running() {
			status := ent.Status
			if status == "" {
				status = "unknown"
			}
			out.add(Violation{
				Metric: MetricState, Subject: ent.Name, Level: LevelWarning,
				Message: fmt.Sprintf("%s: %s", ent.Name, status),
			})
		}
		if ent.Unhealthy() {
			out.add(Violation{
				Metric: MetricHealth, Subject: ent.Name, Level: LevelCritical,
				Message: fmt.Sprintf("%s: unhealthy", ent.Name),
			})
		}
		switch {
		case ent.Restarts >= e.restarts.Critical:
			out.add(Violation{
				Metric: MetricRestarts, Subject: ent.Name, Value: float64(ent.Restarts), Level: LevelCritical,
				Message: fmt.Sprintf("%s: %d restarts", ent.Name, ent.Restarts),
			})
		case ent.Restarts >= e.restarts.Warning:
			out.add(Violation{
				Metric: MetricRestarts, Subject: ent.Name, Value: float64(ent.Restarts), Level: LevelWarning,
				Message: fmt.Sprintf("%s: %d restarts", ent.Name, ent.Restarts),
			})
		}
	}
	return out
}

func (e *Evaluator) diskLevel(mount string) (Level, bool) {
	if lvl, ok := e.thresholds[MetricDisk+":"+mount]; ok {
		return lvl, true
	}
	lvl, ok := e.thresholds[MetricDisk]
	return lvl, ok
}

// Summary flattens violations into the alert block stored with a snapshot.
func Summary(v Violations) models.AlertSummary {
	sum := models.AlertSummary{
		HasCritical:    v.HasCritical(),
		CriticalIssues: make([]string, 0, len(v.Critical)),
		Warnings:       make([]string, 0, len(v.Warnings)),
	}
	for _, c := range v.Critical {
		sum.CriticalIssues = append(sum.CriticalIssues, c.Message)
	}
	for _, w := range v.Warnings {
		sum.Warnings = append(sum.Warnings, w.Message)
	}
	return sum
}

func classify(v float64, lvl Level) (string, bool) {
	if lvl.Critical != nil && v >= *lvl.Critical {
		return LevelCritical, true
	}
	if lvl.Warning != nil && v >= *lvl.Warning {
		return LevelWarning, true
	}
	return "", false
}

func hostMessage(name, level string, v float64) string {
	word := "high"
	if level == LevelCritical {
		word = "critical"
	}
	return fmt.Sprintf("%s usage %s: %s%%", name, word, formatValue(v))
}

func formatValue(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
