package report

import "sort"

type Consumer struct {
	Name string  `json:"name" yaml:"name"`
	Avg  float64 `json:"avg" yaml:"avg"`
	Max  float64 `json:"max" yaml:"max"`
}

// TopMemory ranks entities by average memory, highest first.
func TopMemory(stats []EntityStats, n int) []Consumer {
	return top(stats, n, func(s EntityStats) Consumer {
		return Consumer{Name: s.Name, Avg: s.AvgMemMB, Max: s.MaxMemMB}
	})
}

// TopCPU ranks entities by average CPU percent, highest first.
func TopCPU(stats []EntityStats, n int) []Consumer {
	return top(stats, n, func(s EntityStats) Consumer {
		return Consumer{Name: s.Name, Avg: s.AvgCPUPercent, Max: s.MaxCPUPercent}
	})
}

func top(stats []EntityStats, n int, pick func(EntityStats) Consumer) []Consumer {
	if n <= 0 {
		return []Consumer{}
	}
	out := make([]Consumer, 0, len(stats))
	for _, s := range stats {
		out = append(out, pick(s))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Avg > out[j].Avg })
	if len(out) > n {
		out = out[:n]
	}
	return out
}
