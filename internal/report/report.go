package report

import (
	"time"

	"healthwatch/internal/alerts"
	"healthwatch/internal/models"
)

const (
	StatusCritical = "critical"
	StatusWarning  = "warning"
	StatusOK       = "ok"
	StatusNoData   = "no_data"
)

type Options struct {
	MaxErrors int
	TopMemory int
	TopCPU    int
	// Evaluator, when set, classifies the latest snapshot into Violations.
	Evaluator *alerts.Evaluator
}

func DefaultOptions() Options {
	return Options{MaxErrors: 10, TopMemory: 5, TopCPU: 5}
}

type Report struct {
	GeneratedAt time.Time          `json:"generated_at" yaml:"generated_at"`
	Window      string             `json:"window,omitempty" yaml:"window,omitempty"`
	Status      string             `json:"status" yaml:"status"`
	NoData      bool               `json:"no_data" yaml:"no_data"`
	Trends      *Trends            `json:"trends" yaml:"trends"`
	Entities    []EntityStats      `json:"containers" yaml:"containers"`
	Problems    []Problem          `json:"problems" yaml:"problems"`
	TopMemory   []Consumer         `json:"top_memory" yaml:"top_memory"`
	TopCPU      []Consumer         `json:"top_cpu" yaml:"top_cpu"`
	Latest      *models.Snapshot   `json:"latest,omitempty" yaml:"latest,omitempty"`
	Violations  *alerts.Violations `json:"violations,omitempty" yaml:"violations,omitempty"`
}

// Build runs the full analysis over window. latest is the newest stored
// snapshot regardless of window and may be nil.
func Build(window []models.Snapshot, latest *models.Snapshot, opts Options, now time.Time) Report {
	r := Report{
		GeneratedAt: now.UTC(),
		Entities:    []EntityStats{},
		Problems:    []Problem{},
		TopMemory:   []Consumer{},
		TopCPU:      []Consumer{},
		Latest:      latest,
	}
	if latest != nil && opts.Evaluator != nil {
		v := opts.Evaluator.Evaluate(*latest)
		r.Violations = &v
	}

	trends, err := Summarize(window)
	if err != nil {
		r.NoData = true
		r.Status = StatusNoData
		return r
	}
	r.Trends = &trends
	r.Entities = AggregateEntities(window, opts.MaxErrors)
	r.Problems = RankProblems(r.Entities)
	r.TopMemory = TopMemory(r.Entities, opts.TopMemory)
	r.TopCPU = TopCPU(r.Entities, opts.TopCPU)
	r.Status = r.overallStatus()
	return r
}

func (r Report) overallStatus() string {
	status := StatusOK
	for _, p := range r.Problems {
		switch p.Severity {
		case SeverityCritical:
			return StatusCritical
		case SeverityWarning:
			status = StatusWarning
		}
	}
	if r.Violations != nil {
		if r.Violations.HasCritical() {
			return StatusCritical
		}
		if len(r.Violations.Warnings) > 0 {
			status = StatusWarning
		}
	}
	return status
}

func (r Report) Count(sev Severity) int {
	n := 0
	for _, p := range r.Problems {
		if p.Severity == sev {
			n++
		}
	}
	return n
}
