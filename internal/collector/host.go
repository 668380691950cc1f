package collector

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"

	"healthwatch/internal/models"
)

const gb = 1024 * 1024 * 1024

var skipFSTypes = map[string]bool{"tmpfs": true, "devtmpfs": true, "squashfs": true, "overlay": true}

// HostCollector reads host gauges through gopsutil. The function fields exist
// so tests can replace the system calls.
type HostCollector struct {
	cpuInterval time.Duration

	cpuPercent func(ctx context.Context, interval time.Duration, percpu bool) ([]float64, error)
	cpuCounts  func(ctx context.Context, logical bool) (int, error)
	virtualMem func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	swapMem    func(ctx context.Context) (*mem.SwapMemoryStat, error)
	partitions func(ctx context.Context, all bool) ([]disk.PartitionStat, error)
	diskUsage  func(ctx context.Context, path string) (*disk.UsageStat, error)
	netIO      func(ctx context.Context, pernic bool) ([]net.IOCountersStat, error)
	uptime     func(ctx context.Context) (uint64, error)
	loadAvg    func(ctx context.Context) (*load.AvgStat, error)
}

func NewHostCollector(cpuInterval time.Duration) *HostCollector {
	return &HostCollector{
		cpuInterval: cpuInterval,
		cpuPercent:  cpu.PercentWithContext,
		cpuCounts:   cpu.CountsWithContext,
		virtualMem:  mem.VirtualMemoryWithContext,
		swapMem:     mem.SwapMemoryWithContext,
		partitions:  disk.PartitionsWithContext,
		diskUsage:   disk.UsageWithContext,
		netIO:       net.IOCountersWithContext,
		uptime:      host.UptimeWithContext,
		loadAvg:     load.AvgWithContext,
	}
}

// Collect fills the host part of snap. Each gauge is read independently; a
// failed read leaves its fields zero and is reported in the returned errors.
func (h *HostCollector) Collect(ctx context.Context, snap *models.Snapshot) []error {
	var errs []error

	if pct, err := h.cpuPercent(ctx, h.cpuInterval, false); err != nil {
		errs = append(errs, fmt.Errorf("cpu percent: %w", err))
	} else if len(pct) > 0 {
		snap.CPUPercent = round2(pct[0])
	}
	if n, err := h.cpuCounts(ctx, true); err == nil {
		snap.CPUCount = n
	}

	if vm, err := h.virtualMem(ctx); err != nil {
		errs = append(errs, fmt.Errorf("virtual memory: %w", err))
	} else {
		snap.RAMTotalGB = round2(float64(vm.Total) / gb)
		snap.RAMUsedGB = round2(float64(vm.Used) / gb)
		snap.RAMPercent = round2(vm.UsedPercent)
	}
	if sw, err := h.swapMem(ctx); err == nil {
		snap.SwapTotalGB = round2(float64(sw.Total) / gb)
		snap.SwapUsedGB = round2(float64(sw.Used) / gb)
	}

	disks, err := h.collectDisks(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	snap.Disks = disks

	if counters, err := h.netIO(ctx, false); err == nil && len(counters) > 0 {
		c := counters[0]
		snap.Network = &models.Network{
			BytesSentMB: round2(float64(c.BytesSent) / (1024 * 1024)),
			BytesRecvMB: round2(float64(c.BytesRecv) / (1024 * 1024)),
			PacketsSent: c.PacketsSent,
			PacketsRecv: c.PacketsRecv,
			ErrorsIn:    c.Errin,
			ErrorsOut:   c.Errout,
		}
	}

	if up, err := h.uptime(ctx); err == nil {
		snap.UptimeSec = int64(up)
		snap.Uptime = humanUptime(up)
	}
	if avg, err := h.loadAvg(ctx); err == nil {
		snap.LoadAverage = []float64{round2(avg.Load1), round2(avg.Load5), round2(avg.Load15)}
	}
	return errs
}

func (h *HostCollector) collectDisks(ctx context.Context) ([]models.Disk, error) {
	parts, err := h.partitions(ctx, false)
	if err != nil {
		return []models.Disk{}, fmt.Errorf("disk partitions: %w", err)
	}
	out := []models.Disk{}
	seen := map[string]bool{}
	for _, p := range parts {
		if skipFSTypes[p.Fstype] || seen[p.Mountpoint] {
			continue
		}
		u, err := h.diskUsage(ctx, p.Mountpoint)
		if err != nil || u.Total == 0 {
			continue
		}
		seen[p.Mountpoint] = true
		out = append(out, models.Disk{
			Mount:       p.Mountpoint,
			Device:      p.Device,
			FSType:      p.Fstype,
			TotalGB:     round2(float64(u.Total) / gb),
			UsedGB:      round2(float64(u.Used) / gb),
			FreeGB:      round2(float64(u.Free) / gb),
			UsedPercent: round2(u.UsedPercent),
		})
	}
	return out, nil
}

func humanUptime(sec uint64) string {
	d := sec / 86400
	h := (sec % 86400) / 3600
	m := (sec % 3600) / 60
	return fmt.Sprintf("%dd %dh %dm", d, h, m)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
