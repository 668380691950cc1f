package logs

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

type Source interface {
	Logs(ctx context.Context, id string, tail int) (io.ReadCloser, error)
}

// Scanner pulls the recent output of containers and reduces it to error lines.
type Scanner struct {
	src       Source
	log       *slog.Logger
	tail      int
	maxErrors int
	workers   int
	selfID    string
}

func NewScanner(src Source, logger *slog.Logger, tail, maxErrors int) *Scanner {
	hostname, _ := os.Hostname()
	if tail <= 0 {
		tail = 50
	}
	return &Scanner{
		src:       src,
		log:       logger,
		tail:      tail,
		maxErrors: maxErrors,
		workers:   4,
		selfID:    strings.TrimSpace(hostname),
	}
}

// RecentErrors never fails: a container whose logs cannot be read reports no
// errors.
func (s *Scanner) RecentErrors(ctx context.Context, id string) []string {
	if s.isSelfContainer(id) {
		return []string{}
	}
	rc, err := s.src.Logs(ctx, id, s.tail)
	if err != nil {
		s.log.Debug("read container logs", "container", id, "err", err)
		return []string{}
	}
	defer rc.Close()

	var lines []Line
	if err := ParseDockerStream(rc, func(l Line) { lines = append(lines, l) }); err != nil {
		s.log.Debug("parse container logs", "container", id, "err", err)
	}
	return ExtractErrors(lines, s.maxErrors)
}

// ScanAll runs RecentErrors for every id with bounded concurrency.
func (s *Scanner) ScanAll(ctx context.Context, ids []string) map[string][]string {
	out := make(map[string][]string, len(ids))
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.workers)
	)
	for _, id := range ids {
		wg.Add(1)
		sem <- struct{}{}
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()
			errs := s.RecentErrors(ctx, id)
			mu.Lock()
			out[id] = errs
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return out
}

func (s *Scanner) isSelfContainer(containerID string) bool {
	if s.selfID == "" {
		return false
	}
	return containerID == s.selfID || strings.HasPrefix(containerID, s.selfID) || strings.HasPrefix(s.selfID, containerID)
}
