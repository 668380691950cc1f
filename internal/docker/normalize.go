package docker

import (
	"math"

	"healthwatch/internal/models"
)

const mb = 1024 * 1024

type Usage struct {
	CPUPercent float64
	MemMB      float64
	MemPercent float64
	NetRxMB    float64
	NetTxMB    float64
}

func NormalizeStats(s Stats) Usage {
	var cpuPct float64
	cpus := float64(s.CPUStats.OnlineCPUs)
	if cpus == 0 {
		cpus = float64(len(s.CPUStats.CPUUsage.PercpuUsage))
		if cpus == 0 {
			cpus = 1
		}
	}
	if s.CPUStats.SystemCPUUsage > s.PreCPUStats.SystemCPUUsage &&
		s.CPUStats.CPUUsage.TotalUsage > s.PreCPUStats.CPUUsage.TotalUsage {
		sysDelta := float64(s.CPUStats.SystemCPUUsage - s.PreCPUStats.SystemCPUUsage)
		cpuDelta := float64(s.CPUStats.CPUUsage.TotalUsage - s.PreCPUStats.CPUUsage.TotalUsage)
		cpuPct = (cpuDelta / sysDelta) * cpus * 100
	}

	var memPct float64
	if s.MemoryStats.Limit > 0 {
		memPct = float64(s.MemoryStats.Usage) / float64(s.MemoryStats.Limit) * 100
	}
	var rx, tx uint64
	for _, n := range s.Networks {
		rx += n.RxBytes
		tx += n.TxBytes
	}
	return Usage{
		CPUPercent: round2(cpuPct),
		MemMB:      round2(float64(s.MemoryStats.Usage) / mb),
		MemPercent: round2(memPct),
		NetRxMB:    round2(float64(rx) / mb),
		NetTxMB:    round2(float64(tx) / mb),
	}
}

// ToEntity merges list, inspect and stats data into the stored record. Stopped
// containers carry zero usage and no errors.
func ToEntity(sum ContainerSummary, in ContainerInspect, u Usage, errs []string) models.Entity {
	state := in.State.Status
	if state == "" {
		state = sum.State
	}
	image := sum.Image
	if image == "" {
		image = in.Config.Image
	}
	e := models.Entity{
		Name:     sum.Name(),
		ID:       ShortID(sum.ID),
		Status:   state,
		State:    sum.Status,
		Health:   in.HealthStatus(),
		Image:    image,
		Restarts: in.RestartCount,
		Errors:   []string{},
	}
	if e.Running() {
		e.CPUPercent = u.CPUPercent
		e.MemMB = u.MemMB
		e.MemPercent = u.MemPercent
		e.NetRxMB = u.NetRxMB
		e.NetTxMB = u.NetTxMB
		if errs != nil {
			e.Errors = errs
		}
	}
	return e
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
