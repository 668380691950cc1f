package retention

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"healthwatch/internal/models"
)

const (
	DefaultHorizon     = 7 * 24 * time.Hour
	defaultLockTimeout = 10 * time.Second
	lockRetryDelay     = 50 * time.Millisecond
)

var ErrLocked = errors.New("history is locked by another writer")

// Store is an append-only history of snapshots kept in a single JSON array
// document. Entries older than the horizon are dropped whenever a new one is
// written. Existing entries are never re-encoded, only re-indented.
type Store struct {
	path    string
	horizon time.Duration
	log     *slog.Logger
	now     func() time.Time

	mu          sync.Mutex
	lock        *flock.Flock
	lockTimeout time.Duration
}

type entry struct {
	raw  json.RawMessage
	snap models.Snapshot
	ts   time.Time
	ok   bool
}

func Open(path string, horizon time.Duration, logger *slog.Logger) (*Store, error) {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir history dir: %w", err)
	}
	s := &Store{
		path:    path,
		horizon: horizon,
		log:     logger,
		now:     time.Now,
		lock:    flock.New(path + ".lock"),

		lockTimeout: defaultLockTimeout,
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := s.writeAll(nil); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Horizon() time.Duration { return s.horizon }

// Append validates snap, stamps it with the current time when it carries no
// timestamp, and rewrites the document with snap added and expired entries
// removed. The returned snapshot is exactly what was persisted.
func (s *Store) Append(snap models.Snapshot) (models.Snapshot, error) {
	if snap.Timestamp == "" {
		snap.Timestamp = models.FormatTimestamp(s.now())
	}
	if err := snap.Validate(); err != nil {
		return snap, err
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return snap, fmt.Errorf("encode snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), s.lockTimeout)
	defer cancel()
	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return snap, fmt.Errorf("lock history: %w", err)
	}
	if !locked {
		return snap, fmt.Errorf("%w: %s", ErrLocked, s.lock.Path())
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.log.Warn("unlock history", "err", err)
		}
	}()

	entries := s.read()
	before := len(entries) + 1
	entries = append(entries, decode(raw))
	entries = s.evict(entries, s.now())
	if err := s.writeAll(entries); err != nil {
		return snap, err
	}
	if dropped := before - len(entries); dropped > 0 {
		s.log.Info("history entries evicted", "count", dropped, "horizon", s.horizon)
	}
	return snap, nil
}

// LoadAll returns every stored entry in storage order. A missing or unreadable
// document is an empty history.
func (s *Store) LoadAll() []models.Snapshot {
	entries := s.read()
	out := make([]models.Snapshot, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.snap)
	}
	return out
}

// Query returns the entries whose timestamp lies in [now-window, now]. Entries
// without a parsable timestamp are left out.
func (s *Store) Query(window time.Duration) []models.Snapshot {
	now := s.now()
	return s.Between(now.Add(-window), now)
}

func (s *Store) Between(start, end time.Time) []models.Snapshot {
	var out []models.Snapshot
	for _, e := range s.read() {
		if !e.ok {
			continue
		}
		if e.ts.Before(start) || e.ts.After(end) {
			continue
		}
		out = append(out, e.snap)
	}
	return out
}

// Latest returns the last entry in storage order.
func (s *Store) Latest() (models.Snapshot, bool) {
	entries := s.read()
	if len(entries) == 0 {
		return models.Snapshot{}, false
	}
	return entries[len(entries)-1].snap, true
}

func (s *Store) SizeBytes() int64 {
	fi, err := os.Stat(s.path)
	if err != nil {
		return 0
	}
	return fi.Size()
}

// evict keeps entries newer than the horizon and any entry whose age cannot be
// determined.
func (s *Store) evict(entries []entry, now time.Time) []entry {
	cutoff := now.Add(-s.horizon)
	kept := entries[:0]
	for _, e := range entries {
		if e.ok && e.ts.Before(cutoff) {
			continue
		}
		kept = append(kept, e)
	}
	return kept
}

func (s *Store) read() []entry {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("read history, treating as empty", "path", s.path, "err", err)
		}
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		s.log.Warn("decode history, treating as empty", "path", s.path, "err", err)
		return nil
	}
	out := make([]entry, 0, len(items))
	for _, raw := range items {
		out = append(out, decode(raw))
	}
	return out
}

// decode reads the timestamp on its own so a mistyped field elsewhere in the
// entry does not take it out of eviction or windowing. The snapshot itself is
// best effort: fields of the wrong type stay zero.
func decode(raw json.RawMessage) entry {
	e := entry{raw: raw}
	var head struct {
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(raw, &head); err == nil {
		e.ts, e.ok = models.ParseTimestamp(head.Timestamp)
	}
	if err := json.Unmarshal(raw, &e.snap); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			e.snap = models.Snapshot{}
		}
		e.snap.Timestamp = head.Timestamp
	}
	return e
}

// writeAll replaces the document through a temp file and rename so readers
// observe either the previous or the new content.
func (s *Store) writeAll(entries []entry) error {
	var buf bytes.Buffer
	buf.WriteString("[")
	for i, e := range entries {
		if i > 0 {
			buf.WriteString(",")
		}
		buf.WriteString("\n  ")
		if err := json.Indent(&buf, e.raw, "  ", "  "); err != nil {
			return fmt.Errorf("encode history entry %d: %w", i, err)
		}
	}
	if len(entries) > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString("]\n")

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp history: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write history: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close history: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod history: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace history: %w", err)
	}
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
