package report

import "healthwatch/internal/models"

// EntityStats folds every observation of one container name across a window.
// Restarts is the highest cumulative count reported. RestartsObserved sums the
// increases between consecutive observations and counts the full value again
// whenever the counter drops or the container ID changes.
type EntityStats struct {
	Name             string   `json:"name" yaml:"name"`
	RunningChecks    int      `json:"running_checks" yaml:"running_checks"`
	DownChecks       int      `json:"down_checks" yaml:"down_checks"`
	Restarts         int      `json:"restarts" yaml:"restarts"`
	RestartsObserved int      `json:"restarts_observed" yaml:"restarts_observed"`
	Recreations      int      `json:"recreations" yaml:"recreations"`
	Errors           []string `json:"errors" yaml:"errors"`
	UptimePercent    float64  `json:"uptime_percent" yaml:"uptime_percent"`
	AvgMemMB         float64  `json:"avg_mem_mb" yaml:"avg_mem_mb"`
	MaxMemMB         float64  `json:"max_mem_mb" yaml:"max_mem_mb"`
	AvgCPUPercent    float64  `json:"avg_cpu_percent" yaml:"avg_cpu_percent"`
	MaxCPUPercent    float64  `json:"max_cpu_percent" yaml:"max_cpu_percent"`
}

type entityAcc struct {
	stats      EntityStats
	memSamples []float64
	cpuSamples []float64
	seenErrors map[string]struct{}
	lastID     string
	lastCount  int
	observed   bool
}

// AggregateEntities returns one EntityStats per container name in the order the
// names first appear. maxErrors > 0 keeps only the earliest distinct errors.
func AggregateEntities(window []models.Snapshot, maxErrors int) []EntityStats {
	index := map[string]int{}
	var accs []*entityAcc
	for _, s := range window {
		for _, e := range s.Entities {
			i, ok := index[e.Name]
			if !ok {
				i = len(accs)
				index[e.Name] = i
				accs = append(accs, &entityAcc{
					stats:      EntityStats{Name: e.Name, Errors: []string{}},
					seenErrors: map[string]struct{}{},
				})
			}
			accs[i].observe(e)
		}
	}

	out := make([]EntityStats, 0, len(accs))
	for _, a := range accs {
		out = append(out, a.finish(maxErrors))
	}
	return out
}

func (a *entityAcc) observe(e models.Entity) {
	st := &a.stats
	if e.Running() {
		st.RunningChecks++
	} else {
		st.DownChecks++
	}
	if e.Restarts > st.Restarts {
		st.Restarts = e.Restarts
	}

	if a.observed {
		recreated := e.Restarts < a.lastCount ||
			(a.lastID != "" && e.ID != "" && e.ID != a.lastID)
		if recreated {
			st.Recreations++
			st.RestartsObserved += e.Restarts
		} else {
			st.RestartsObserved += e.Restarts - a.lastCount
		}
	}
	a.observed = true
	a.lastCount = e.Restarts
	if e.ID != "" {
		a.lastID = e.ID
	}

	if e.MemMB > 0 {
		a.memSamples = append(a.memSamples, e.MemMB)
	}
	if e.CPUPercent > 0 {
		a.cpuSamples = append(a.cpuSamples, e.CPUPercent)
	}
	for _, msg := range e.Errors {
		if _, dup := a.seenErrors[msg]; dup {
			continue
		}
		a.seenErrors[msg] = struct{}{}
		st.Errors = append(st.Errors, msg)
	}
}

func (a *entityAcc) finish(maxErrors int) EntityStats {
	st := a.stats
	if total := st.RunningChecks + st.DownChecks; total > 0 {
		st.UptimePercent = round2(float64(st.RunningChecks) / float64(total) * 100)
	}
	st.AvgMemMB, st.MaxMemMB = avgMax(a.memSamples)
	st.AvgCPUPercent, st.MaxCPUPercent = avgMax(a.cpuSamples)
	if maxErrors > 0 && len(st.Errors) > maxErrors {
		st.Errors = st.Errors[:maxErrors]
	}
	return st
}

func avgMax(vals []float64) (float64, float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	s := stat(vals)
	return s.Avg, s.Max
}
