package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"healthwatch/internal/alerts"
	"healthwatch/internal/collector"
	"healthwatch/internal/config"
	"healthwatch/internal/db"
	"healthwatch/internal/docker"
	"healthwatch/internal/logs"
	"healthwatch/internal/metrics"
	"healthwatch/internal/models"
	"healthwatch/internal/notifier"
	"healthwatch/internal/render"
	"healthwatch/internal/report"
	"healthwatch/internal/retention"
	"healthwatch/internal/web"
)

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFailed   = "failed"
	StatusNoData   = "no_data"
)

type Collector interface {
	Collect(ctx context.Context) models.Snapshot
}

type Notifier interface {
	Enabled() bool
	Dispatch(ctx context.Context, runID string, msg notifier.Message) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// RunResult is the machine-readable outcome printed by batch commands.
type RunResult struct {
	Success   bool        `json:"success" yaml:"success"`
	RunID     string      `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Status    string      `json:"status" yaml:"status"`
	Timestamp string      `json:"timestamp" yaml:"timestamp"`
	Error     string      `json:"error,omitempty" yaml:"error,omitempty"`
	Summary   *RunSummary `json:"summary,omitempty" yaml:"summary,omitempty"`
}

type RunSummary struct {
	CPUPercent        float64  `json:"cpu_percent" yaml:"cpu_percent"`
	RAMPercent        float64  `json:"ram_percent" yaml:"ram_percent"`
	ContainersTotal   int      `json:"containers_total" yaml:"containers_total"`
	ContainersRunning int      `json:"containers_running" yaml:"containers_running"`
	CriticalIssues    []string `json:"critical_issues" yaml:"critical_issues"`
	Warnings          []string `json:"warnings" yaml:"warnings"`
	ReportStatus      string   `json:"report_status,omitempty" yaml:"report_status,omitempty"`
	DataPoints        int      `json:"data_points,omitempty" yaml:"data_points,omitempty"`
	HistoryEntries    int      `json:"history_entries" yaml:"history_entries"`
	Notified          bool     `json:"notified" yaml:"notified"`
	Persisted         bool     `json:"persisted" yaml:"persisted"`
}

type App struct {
	cfg  config.Config
	log  *slog.Logger
	host string

	store     *retention.Store
	journal   *db.Repository
	collector Collector
	evaluator *alerts.Evaluator
	notify    Notifier
	docker    Pinger
	metrics   *metrics.Metrics

	now     func() time.Time
	newID   func() string
	closers []io.Closer
}

func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	store, err := retention.Open(cfg.Paths.HistoryFile, cfg.Horizon(), logger.With("module", "retention"))
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:     cfg,
		log:     logger,
		host:    hostName(cfg),
		store:   store,
		metrics: metrics.New(),
		now:     time.Now,
		newID:   uuid.NewString,
	}

	var recorder notifier.Recorder
	if cfg.Paths.JournalFile != "" {
		sqldb, err := db.Open(cfg.Paths.JournalFile)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		if err := db.Migrate(sqldb); err != nil {
			_ = sqldb.Close()
			return nil, fmt.Errorf("migrate journal: %w", err)
		}
		a.journal = db.NewRepository(sqldb)
		a.closers = append(a.closers, sqldb)
		recorder = a.journal
	}

	dc := docker.NewClient(cfg.Docker.Socket, cfg.Docker.Timeout)
	scanner := logs.NewScanner(dc, logger.With("module", "logs"), cfg.Monitoring.ErrorLogLines, cfg.Reporting.MaxErrorsInReport)
	a.collector = collector.NewService(
		collector.NewHostCollector(cfg.Monitoring.CPUSampleInterval),
		dc, scanner, logger.With("module", "collector"),
		collector.Options{Ignore: cfg.Docker.ContainersToIgnore},
	)
	a.docker = dc

	th, restarts := cfg.ThresholdConfig()
	a.evaluator = alerts.NewEvaluator(th, restarts)

	tg := notifier.NewTelegram(cfg.Alerts.Telegram.Token, cfg.Alerts.Telegram.ChatID)
	dsc := notifier.NewDiscord(cfg.Alerts.Discord.WebhookURL)
	if cfg.Alerts.Discord.Username != "" {
		dsc.Username = cfg.Alerts.Discord.Username
	}
	a.notify = notifier.NewDispatcher(recorder, logger.With("module", "notifier"), tg, dsc)
	return a, nil
}

func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func (a *App) Store() *retention.Store { return a.store }

func (a *App) Metrics() *metrics.Metrics { return a.metrics }

// Monitor collects one snapshot, evaluates it, appends it to the history and
// sends an immediate alert when something is critical. With test set nothing
// is persisted or sent.
func (a *App) Monitor(ctx context.Context, test bool) RunResult {
	started := a.now()
	res := RunResult{RunID: a.newID(), Timestamp: models.FormatTimestamp(started)}
	log := a.log.With("run_id", res.RunID, "kind", db.RunMonitor)

	snap := a.collector.Collect(ctx)
	v := a.evaluator.Evaluate(snap)
	sum := alerts.Summary(v)
	snap.Alert = &sum

	res.Status = StatusOK
	if snap.Degraded() {
		res.Status = StatusDegraded
		log.Warn("snapshot degraded", "docker_error", snap.DockerError, "collect_errors", snap.CollectErrors)
	}
	res.Summary = &RunSummary{
		CPUPercent:        snap.CPUPercent,
		RAMPercent:        snap.RAMPercent,
		ContainersTotal:   snap.ContainersTotal,
		ContainersRunning: snap.ContainersRunning,
		CriticalIssues:    sum.CriticalIssues,
		Warnings:          sum.Warnings,
	}

	if !test {
		stored, err := a.store.Append(snap)
		if err != nil {
			log.Error("append snapshot", "err", err)
			res.Status = StatusFailed
			res.Error = err.Error()
			a.finish(ctx, db.RunMonitor, res, started, snap, v)
			return res
		}
		snap = stored
		res.Summary.Persisted = true
	}
	entries := len(a.store.LoadAll())
	res.Summary.HistoryEntries = entries
	a.metrics.ObserveSnapshot(snap)
	a.metrics.ObserveHistory(entries, a.store.SizeBytes())

	res.Success = true
	a.finish(ctx, db.RunMonitor, res, started, snap, v)

	if v.HasCritical() {
		log.Warn("critical issues detected", "count", len(v.Critical))
		if !test && a.cfg.Alerts.CriticalImmediate && a.notify.Enabled() {
			err := a.notify.Dispatch(ctx, res.RunID, render.Critical(a.host, snap, v))
			a.metrics.ObserveNotification(err)
			res.Summary.Notified = err == nil
		}
	}
	a.prune(ctx)
	log.Info("monitor run finished", "status", res.Status, "critical", len(v.Critical), "warnings", len(v.Warnings))
	return res
}

// Analyze builds a report over the trailing window. It reads the history and
// nothing else.
func (a *App) Analyze(window time.Duration) report.Report {
	if window <= 0 {
		window = a.cfg.Reporting.Window
	}
	snaps := a.store.Query(window)
	var latest *models.Snapshot
	if s, ok := a.store.Latest(); ok {
		latest = &s
	}
	opts := report.Options{
		MaxErrors: a.cfg.Reporting.MaxErrorsInReport,
		TopMemory: a.cfg.Reporting.TopMemoryContainers,
		TopCPU:    a.cfg.Reporting.TopCPUContainers,
		Evaluator: a.evaluator,
	}
	r := report.Build(snaps, latest, opts, a.now())
	r.Window = window.String()
	a.metrics.ObserveReport(r)
	return r
}

// Report analyzes the window and, when notify is set, delivers the rendered
// report to every configured channel.
func (a *App) Report(ctx context.Context, window time.Duration, notify bool) (report.Report, RunResult) {
	started := a.now()
	res := RunResult{RunID: a.newID(), Timestamp: models.FormatTimestamp(started), Success: true, Status: StatusOK}
	log := a.log.With("run_id", res.RunID, "kind", db.RunReport)

	r := a.Analyze(window)
	res.Summary = &RunSummary{
		ReportStatus:   r.Status,
		HistoryEntries: len(a.store.LoadAll()),
		CriticalIssues: []string{},
		Warnings:       []string{},
	}
	if r.Trends != nil {
		res.Summary.DataPoints = r.Trends.DataPoints
		res.Summary.CPUPercent = r.Trends.CPU.Current
		res.Summary.RAMPercent = r.Trends.RAM.Current
	}
	if r.Latest != nil {
		res.Summary.ContainersTotal = r.Latest.ContainersTotal
		res.Summary.ContainersRunning = r.Latest.ContainersRunning
	}
	var v alerts.Violations
	if r.Violations != nil {
		v = *r.Violations
		sum := alerts.Summary(v)
		res.Summary.CriticalIssues = sum.CriticalIssues
		res.Summary.Warnings = sum.Warnings
	}

	if r.NoData {
		res.Status = StatusNoData
		log.Info("no data in report window", "window", r.Window)
	} else if notify && !a.notify.Enabled() {
		res.Status = StatusDegraded
		res.Error = notifier.ErrNotConfigured.Error()
	}

	var snap models.Snapshot
	if r.Latest != nil {
		snap = *r.Latest
	}
	a.finish(ctx, db.RunReport, res, started, snap, v)

	if notify && !r.NoData && a.notify.Enabled() {
		err := a.notify.Dispatch(ctx, res.RunID, render.Report(r, a.host))
		a.metrics.ObserveNotification(err)
		if err != nil {
			res.Status = StatusDegraded
			res.Error = err.Error()
			a.updateRun(ctx, res)
		} else {
			res.Summary.Notified = true
		}
	}
	log.Info("report run finished", "status", res.Status, "report_status", r.Status, "problems", len(r.Problems))
	return r, res
}

// History returns stored snapshots newer than since, or every entry when since
// is zero.
func (a *App) History(since time.Duration) []models.Snapshot {
	if since <= 0 {
		return a.store.LoadAll()
	}
	return a.store.Query(since)
}

func (a *App) Latest() (models.Snapshot, bool) { return a.store.Latest() }

func (a *App) RecentRuns(ctx context.Context, since time.Time, limit int) ([]db.Run, error) {
	if a.journal == nil {
		return []db.Run{}, nil
	}
	return a.journal.RecentRuns(ctx, since, limit)
}

func (a *App) RunViolations(ctx context.Context, runID string) ([]alerts.Violation, error) {
	if a.journal == nil {
		return []alerts.Violation{}, nil
	}
	return a.journal.RunViolations(ctx, runID)
}

// Ready fails when the history file cannot be read, the journal is gone or
// the Docker engine does not answer.
func (a *App) Ready(ctx context.Context) error {
	if _, err := os.Stat(a.store.Path()); err != nil {
		return fmt.Errorf("history: %w", err)
	}
	if a.journal != nil {
		if err := a.journal.DB().PingContext(ctx); err != nil {
			return fmt.Errorf("journal: %w", err)
		}
	}
	if a.docker != nil {
		if err := a.docker.Ping(ctx); err != nil {
			return fmt.Errorf("docker: %w", err)
		}
	}
	return nil
}

// Serve runs the read-only HTTP API until ctx is cancelled. Metrics are
// refreshed from the history every interval and the journal is pruned every
// six hours.
func (a *App) Serve(ctx context.Context, addr string, interval time.Duration) error {
	if addr == "" {
		addr = a.cfg.Server.Addr
	}
	if interval <= 0 {
		interval = time.Minute
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           web.NewServer(a, a.metrics.Handler(), a.log.With("module", "web")).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	refresh := time.NewTicker(interval)
	pruneTicker := time.NewTicker(6 * time.Hour)
	defer refresh.Stop()
	defer pruneTicker.Stop()

	a.Analyze(a.cfg.Reporting.Window)
	a.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case err := <-errCh:
			return fmt.Errorf("http server: %w", err)
		case <-refresh.C:
			a.Analyze(a.cfg.Reporting.Window)
			a.metrics.ObserveHistory(len(a.store.LoadAll()), a.store.SizeBytes())
		case <-pruneTicker.C:
			a.prune(ctx)
		}
	}
}

// finish journals the run. Notification events reference the run row, so it
// must be stored before anything is dispatched.
func (a *App) finish(ctx context.Context, kind string, res RunResult, started time.Time, snap models.Snapshot, v alerts.Violations) {
	a.metrics.ObserveRun(kind, res.Status)
	if a.journal == nil {
		return
	}
	run := db.Run{
		ID:                res.RunID,
		Kind:              kind,
		Status:            res.Status,
		StartedAt:         started.UTC(),
		FinishedAt:        a.now().UTC(),
		SnapshotTS:        snap.Timestamp,
		CPUPercent:        snap.CPUPercent,
		RAMPercent:        snap.RAMPercent,
		ContainersTotal:   snap.ContainersTotal,
		ContainersRunning: snap.ContainersRunning,
		Critical:          len(v.Critical),
		Warnings:          len(v.Warnings),
		Error:             res.Error,
	}
	if err := a.journal.InsertRun(ctx, run, v.All()); err != nil {
		a.log.Warn("journal run", "run_id", res.RunID, "err", err)
	}
}

func (a *App) updateRun(ctx context.Context, res RunResult) {
	if a.journal == nil {
		return
	}
	if err := a.journal.UpdateRunStatus(ctx, res.RunID, res.Status, res.Error, a.now()); err != nil {
		a.log.Warn("journal run status", "run_id", res.RunID, "err", err)
	}
}

func (a *App) prune(ctx context.Context) {
	if a.journal == nil || a.cfg.Monitoring.JournalRetentionDays <= 0 {
		return
	}
	cutoff := a.now().Add(-time.Duration(a.cfg.Monitoring.JournalRetentionDays) * 24 * time.Hour)
	n, err := a.journal.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		a.log.Warn("journal prune failed", "err", err)
		return
	}
	if n > 0 {
		a.log.Info("journal pruned", "runs", n, "cutoff", cutoff.UTC())
	}
}

func hostName(cfg config.Config) string {
	if cfg.Reporting.HostName != "" {
		return cfg.Reporting.HostName
	}
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "host"
}
