package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"healthwatch/internal/docker"
	"healthwatch/internal/models"
)

type DockerAPI interface {
	ListContainers(ctx context.Context) ([]docker.ContainerSummary, error)
	InspectContainer(ctx context.Context, id string) (docker.ContainerInspect, error)
	Stats(ctx context.Context, id string) (docker.Stats, error)
	Info(ctx context.Context) (docker.Info, error)
}

type ErrorScanner interface {
	ScanAll(ctx context.Context, ids []string) map[string][]string
}

type Options struct {
	Ignore []string
}

// Service produces one snapshot per call from the host and the Docker engine.
type Service struct {
	host    *HostCollector
	dc      DockerAPI
	scanner ErrorScanner
	log     *slog.Logger
	ignore  map[string]bool
	now     func() time.Time
}

func NewService(host *HostCollector, dc DockerAPI, scanner ErrorScanner, logger *slog.Logger, opts Options) *Service {
	ignore := make(map[string]bool, len(opts.Ignore))
	for _, n := range opts.Ignore {
		ignore[n] = true
	}
	return &Service{host: host, dc: dc, scanner: scanner, log: logger, ignore: ignore, now: time.Now}
}

// Collect never fails. Host read errors land in CollectErrors and a Docker
// failure leaves the snapshot with no containers and DockerError set.
func (s *Service) Collect(ctx context.Context) models.Snapshot {
	snap := models.Snapshot{
		Timestamp: models.FormatTimestamp(s.now()),
		Disks:     []models.Disk{},
		Entities:  []models.Entity{},
	}
	if s.host != nil {
		for _, err := range s.host.Collect(ctx, &snap) {
			s.log.Warn("collect host metric", "err", err)
			snap.CollectErrors = append(snap.CollectErrors, err.Error())
		}
	}

	if err := s.collectContainers(ctx, &snap); err != nil {
		s.log.Error("collect docker metrics", "err", err)
		snap.Entities = []models.Entity{}
		snap.DockerError = err.Error()
	}
	snap.ContainersTotal = len(snap.Entities)
	for _, e := range snap.Entities {
		if e.Running() {
			snap.ContainersRunning++
		} else {
			snap.ContainersStopped++
		}
		if e.Unhealthy() {
			snap.ContainersUnhealth++
		}
	}

	s.log.Info("metrics collected",
		"containers", snap.ContainersTotal,
		"cpu_percent", snap.CPUPercent,
		"ram_percent", snap.RAMPercent,
		"degraded", snap.Degraded(),
	)
	return snap
}

func (s *Service) collectContainers(ctx context.Context, snap *models.Snapshot) error {
	if s.dc == nil {
		return fmt.Errorf("docker client not configured")
	}
	containers, err := s.dc.ListContainers(ctx)
	if err != nil {
		return fmt.Errorf("list containers: %w", err)
	}

	type item struct {
		sum     docker.ContainerSummary
		inspect docker.ContainerInspect
		usage   docker.Usage
	}
	items := make([]item, 0, len(containers))
	var running []string
	seen := map[string]bool{}
	for _, c := range containers {
		name := c.Name()
		if s.ignore[name] || seen[name] {
			continue
		}
		seen[name] = true
		it := item{sum: c}
		inspect, err := s.dc.InspectContainer(ctx, c.ID)
		if docker.IsNotFound(err) {
			s.log.Debug("container gone before inspect", "container", name)
			continue
		}
		if err != nil {
			s.log.Warn("inspect container", "container", name, "err", err)
			inspect.State.Status = c.State
		}
		it.inspect = inspect
		if inspect.State.Status == models.StatusRunning {
			running = append(running, c.ID)
			if st, err := s.dc.Stats(ctx, c.ID); err != nil {
				s.log.Warn("container stats", "container", name, "err", err)
			} else {
				it.usage = docker.NormalizeStats(st)
			}
		}
		items = append(items, it)
	}

	var errs map[string][]string
	if s.scanner != nil && len(running) > 0 {
		errs = s.scanner.ScanAll(ctx, running)
	}
	for _, it := range items {
		snap.Entities = append(snap.Entities, docker.ToEntity(it.sum, it.inspect, it.usage, errs[it.sum.ID]))
	}

	if info, err := s.dc.Info(ctx); err != nil {
		s.log.Warn("docker info", "err", err)
	} else {
		snap.DockerInfo = &models.DockerInfo{
			ContainersTotal:   info.Containers,
			ContainersRunning: info.ContainersRunning,
			ContainersPaused:  info.ContainersPaused,
			ContainersStopped: info.ContainersStopped,
			Images:            info.Images,
			DockerVersion:     info.ServerVersion,
		}
	}
	return nil
}
