package collector

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthwatch/internal/docker"
	"healthwatch/internal/models"
)

func stubHost() *HostCollector {
	h := NewHostCollector(0)
	h.cpuPercent = func(context.Context, time.Duration, bool) ([]float64, error) { return []float64{42.123}, nil }
	h.cpuCounts = func(context.Context, bool) (int, error) { return 8, nil }
	h.virtualMem = func(context.Context) (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{Total: 16 * gb, Used: 4 * gb, UsedPercent: 25}, nil
	}
	h.swapMem = func(context.Context) (*mem.SwapMemoryStat, error) { return &mem.SwapMemoryStat{Total: 2 * gb}, nil }
	h.partitions = func(context.Context, bool) ([]disk.PartitionStat, error) {
		return []disk.PartitionStat{
			{Device: "/dev/sda1", Mountpoint: "/", Fstype: "ext4"},
			{Device: "tmpfs", Mountpoint: "/run", Fstype: "tmpfs"},
			{Device: "/dev/sdb1", Mountpoint: "/data", Fstype: "xfs"},
			{Device: "/dev/sdc1", Mountpoint: "/denied", Fstype: "ext4"},
		}, nil
	}
	h.diskUsage = func(_ context.Context, p string) (*disk.UsageStat, error) {
		switch p {
		case "/":
			return &disk.UsageStat{Total: 100 * gb, Used: 55 * gb, Free: 45 * gb, UsedPercent: 55}, nil
		case "/data":
			return &disk.UsageStat{Total: 10 * gb, Used: 9 * gb, Free: gb, UsedPercent: 90}, nil
		}
		return nil, errors.New("permission denied")
	}
	h.netIO = func(context.Context, bool) ([]net.IOCountersStat, error) {
		return []net.IOCountersStat{{BytesSent: 1024 * 1024, BytesRecv: 2 * 1024 * 1024, Errin: 1}}, nil
	}
	h.uptime = func(context.Context) (uint64, error) { return 2*86400 + 3*3600 + 4*60 + 5, nil }
	h.loadAvg = func(context.Context) (*load.AvgStat, error) { return &load.AvgStat{Load1: 0.5, Load5: 0.25, Load15: 0.125}, nil }
	return h
}

type fakeDocker struct {
	containers []docker.ContainerSummary
	inspect    map[string]docker.ContainerInspect
	listErr    error
}

func (f *fakeDocker) ListContainers(context.Context) ([]docker.ContainerSummary, error) {
	return f.containers, f.listErr
}

func (f *fakeDocker) InspectContainer(_ context.Context, id string) (docker.ContainerInspect, error) {
	in, ok := f.inspect[id]
	if !ok {
		return docker.ContainerInspect{}, &docker.APIError{Endpoint: "/containers/" + id + "/json", Status: 404, Message: "No such container"}
	}
	return in, nil
}

func (f *fakeDocker) Stats(context.Context, string) (docker.Stats, error) {
	var s docker.Stats
	s.MemoryStats.Usage = 128 * 1024 * 1024
	s.MemoryStats.Limit = 512 * 1024 * 1024
	return s, nil
}

func (f *fakeDocker) Info(context.Context) (docker.Info, error) {
	return docker.Info{Containers: 3, ContainersRunning: 1, ServerVersion: "27.1.0"}, nil
}

type fakeScanner map[string][]string

func (f fakeScanner) ScanAll(_ context.Context, ids []string) map[string][]string {
	out := map[string][]string{}
	for _, id := range ids {
		out[id] = f[id]
	}
	return out
}

func inspected(status string, restarts int) docker.ContainerInspect {
	var in docker.ContainerInspect
	in.State.Status = status
	in.RestartCount = restarts
	return in
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestHostCollect(t *testing.T) {
	var snap models.Snapshot
	errs := stubHost().Collect(context.Background(), &snap)
	require.Empty(t, errs)

	assert.Equal(t, 42.12, snap.CPUPercent)
	assert.Equal(t, 8, snap.CPUCount)
	assert.Equal(t, 16.0, snap.RAMTotalGB)
	assert.Equal(t, 25.0, snap.RAMPercent)
	assert.Equal(t, 2.0, snap.SwapTotalGB)
	require.Len(t, snap.Disks, 2)
	assert.Equal(t, "/", snap.Disks[0].Mount)
	assert.Equal(t, 90.0, snap.Disks[1].UsedPercent)
	assert.Equal(t, "2d 3h 4m", snap.Uptime)
	assert.Equal(t, []float64{0.5, 0.25, 0.13}, snap.LoadAverage)
	require.NotNil(t, snap.Network)
	assert.Equal(t, 2.0, snap.Network.BytesRecvMB)
}

func TestHostCollectReportsFailures(t *testing.T) {
	h := stubHost()
	h.virtualMem = func(context.Context) (*mem.VirtualMemoryStat, error) { return nil, errors.New("no /proc") }
	var snap models.Snapshot
	errs := h.Collect(context.Background(), &snap)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "virtual memory")
	assert.Zero(t, snap.RAMPercent)
	assert.Equal(t, 42.12, snap.CPUPercent)
}

func TestServiceCollect(t *testing.T) {
	dc := &fakeDocker{
		containers: []docker.ContainerSummary{
			{ID: "id-web", Names: []string{"/web"}, State: "running"},
			{ID: "id-db", Names: []string{"/db"}, State: "exited"},
			{ID: "id-skip", Names: []string{"/watchtower"}, State: "running"},
		},
		inspect: map[string]docker.ContainerInspect{
			"id-web":  inspected("running", 1),
			"id-db":   inspected("exited", 4),
			"id-skip": inspected("running", 0),
		},
	}
	svc := NewService(stubHost(), dc, fakeScanner{"id-web": {"ERROR boom"}}, testLogger(), Options{Ignore: []string{"watchtower"}})
	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	snap := svc.Collect(context.Background())
	assert.Equal(t, "2026-02-21T12:00:00Z", snap.Timestamp)
	require.Len(t, snap.Entities, 2)
	assert.Equal(t, "web", snap.Entities[0].Name)
	assert.Equal(t, 128.0, snap.Entities[0].MemMB)
	assert.Equal(t, 25.0, snap.Entities[0].MemPercent)
	assert.Equal(t, []string{"ERROR boom"}, snap.Entities[0].Errors)
	assert.Equal(t, 4, snap.Entities[1].Restarts)
	assert.Zero(t, snap.Entities[1].MemMB)

	assert.Equal(t, 2, snap.ContainersTotal)
	assert.Equal(t, 1, snap.ContainersRunning)
	assert.Equal(t, 1, snap.ContainersStopped)
	require.NotNil(t, snap.DockerInfo)
	assert.Equal(t, "27.1.0", snap.DockerInfo.DockerVersion)
	assert.False(t, snap.Degraded())
	require.NoError(t, snap.Validate())
}

func TestServiceCollectDockerDown(t *testing.T) {
	dc := &fakeDocker{listErr: errors.New("dial unix /var/run/docker.sock: connect: no such file")}
	svc := NewService(stubHost(), dc, nil, testLogger(), Options{})

	snap := svc.Collect(context.Background())
	assert.True(t, snap.Degraded())
	assert.Contains(t, snap.DockerError, "list containers")
	assert.Empty(t, snap.Entities)
	assert.NotNil(t, snap.Entities)
	assert.Equal(t, 42.12, snap.CPUPercent)
	assert.Nil(t, snap.DockerInfo)
}

func TestServiceCollectSkipsRemovedContainer(t *testing.T) {
	dc := &fakeDocker{
		containers: []docker.ContainerSummary{
			{ID: "id-web", Names: []string{"/web"}, State: "running"},
			{ID: "id-gone", Names: []string{"/oneshot"}, State: "exited"},
		},
		inspect: map[string]docker.ContainerInspect{"id-web": inspected("running", 0)},
	}
	svc := NewService(nil, dc, nil, testLogger(), Options{})

	snap := svc.Collect(context.Background())
	require.Len(t, snap.Entities, 1)
	assert.Equal(t, "web", snap.Entities[0].Name)
	assert.Equal(t, 1, snap.ContainersTotal)
	assert.Empty(t, snap.DockerError)
}
