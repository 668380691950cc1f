package report

import (
	"errors"
	"math"
	"time"

	"healthwatch/internal/models"
)

var ErrNoData = errors.New("no data in window")

type Stat struct {
	Avg     float64 `json:"avg" yaml:"avg"`
	Min     float64 `json:"min" yaml:"min"`
	Max     float64 `json:"max" yaml:"max"`
	Current float64 `json:"current" yaml:"current"`
}

type Trends struct {
	CPU           Stat            `json:"cpu" yaml:"cpu"`
	RAM           Stat            `json:"ram" yaml:"ram"`
	Disks         map[string]Stat `json:"disks,omitempty" yaml:"disks,omitempty"`
	DataPoints    int             `json:"data_points" yaml:"data_points"`
	From          time.Time       `json:"from" yaml:"from"`
	To            time.Time       `json:"to" yaml:"to"`
	TimeSpanHours float64         `json:"time_span_hours" yaml:"time_span_hours"`
}

// Summarize computes per-metric statistics over an ordered window. Current is
// the value from the last snapshot in the window.
func Summarize(window []models.Snapshot) (Trends, error) {
	if len(window) == 0 {
		return Trends{}, ErrNoData
	}
	cpu := make([]float64, 0, len(window))
	ram := make([]float64, 0, len(window))
	disks := map[string][]float64{}
	var from, to time.Time
	for _, s := range window {
		cpu = append(cpu, s.CPUPercent)
		ram = append(ram, s.RAMPercent)
		for _, d := range s.Disks {
			disks[d.Mount] = append(disks[d.Mount], d.UsedPercent)
		}
		if ts, ok := s.Time(); ok {
			if from.IsZero() || ts.Before(from) {
				from = ts
			}
			if to.IsZero() || ts.After(to) {
				to = ts
			}
		}
	}

	t := Trends{
		CPU:        stat(cpu),
		RAM:        stat(ram),
		DataPoints: len(window),
		From:       from,
		To:         to,
	}
	if !from.IsZero() {
		t.TimeSpanHours = round2(to.Sub(from).Hours())
	}
	if len(disks) > 0 {
		last := map[string]float64{}
		for _, d := range window[len(window)-1].Disks {
			last[d.Mount] = d.UsedPercent
		}
		t.Disks = make(map[string]Stat, len(disks))
		for mount, vals := range disks {
			st := stat(vals)
			// a mount missing from the final snapshot has no current reading
			st.Current = round2(last[mount])
			t.Disks[mount] = st
		}
	}
	return t, nil
}

func stat(vals []float64) Stat {
	if len(vals) == 0 {
		return Stat{}
	}
	sum, lo, hi := 0.0, vals[0], vals[0]
	for _, v := range vals {
		sum += v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return Stat{
		Avg:     round2(sum / float64(len(vals))),
		Min:     round2(lo),
		Max:     round2(hi),
		Current: round2(vals[len(vals)-1]),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
