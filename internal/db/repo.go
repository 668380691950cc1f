package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"healthwatch/internal/alerts"
)

const (
	RunMonitor = "monitor"
	RunReport  = "report"
)

// Run is one journaled invocation of monitor or report.
type Run struct {
	ID                string    `json:"id"`
	Kind              string    `json:"kind"`
	Status            string    `json:"status"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
	SnapshotTS        string    `json:"snapshot_ts,omitempty"`
	CPUPercent        float64   `json:"cpu_percent"`
	RAMPercent        float64   `json:"ram_percent"`
	ContainersTotal   int       `json:"containers_total"`
	ContainersRunning int       `json:"containers_running"`
	Critical          int       `json:"critical"`
	Warnings          int       `json:"warnings"`
	Error             string    `json:"error,omitempty"`
}

type NotificationEvent struct {
	RunID     string     `json:"run_id"`
	Channel   string     `json:"channel"`
	Status    string     `json:"status"`
	Attempts  int        `json:"attempts"`
	LastError string     `json:"last_error,omitempty"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
}

const runColumns = `id,kind,status,started_ts,finished_ts,snapshot_ts,cpu_pct,ram_pct,` +
	`containers_total,containers_running,critical_count,warning_count,error`

// Repository is the sqlite run journal.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DB() *sql.DB { return r.db }

// InsertRun stores the run and its violations in one transaction.
func (r *Repository) InsertRun(ctx context.Context, run Run, violations []alerts.Violation) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs (`+runColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		run.ID, run.Kind, run.Status, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.SnapshotTS, run.CPUPercent, run.RAMPercent,
		run.ContainersTotal, run.ContainersRunning, run.Critical, run.Warnings, run.Error)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	for _, v := range violations {
		if _, err := tx.ExecContext(ctx, `INSERT INTO violations (run_id,level,metric,subject,value,message) VALUES (?,?,?,?,?,?)`,
			run.ID, v.Level, v.Metric, v.Subject, v.Value, v.Message); err != nil {
			return fmt.Errorf("insert violation %s: %w", v.Metric, err)
		}
	}
	return tx.Commit()
}

// UpdateRunStatus records an outcome that changed after the run was stored,
// such as a failed delivery.
func (r *Repository) UpdateRunStatus(ctx context.Context, id, status, errMsg string, finished time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE runs SET status=?, error=?, finished_ts=? WHERE id=?`, status, errMsg, finished.UTC(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *Repository) RecentRuns(ctx context.Context, since time.Time, limit int) ([]Run, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs
		WHERE started_ts >= ? ORDER BY started_ts DESC LIMIT ?`, since.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Run, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func scanRun(rows *sql.Rows) (Run, error) {
	var run Run
	err := rows.Scan(&run.ID, &run.Kind, &run.Status, &run.StartedAt, &run.FinishedAt, &run.SnapshotTS,
		&run.CPUPercent, &run.RAMPercent, &run.ContainersTotal, &run.ContainersRunning,
		&run.Critical, &run.Warnings, &run.Error)
	return run, err
}

func (r *Repository) RunViolations(ctx context.Context, runID string) ([]alerts.Violation, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT level,metric,subject,value,message FROM violations WHERE run_id=? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []alerts.Violation
	for rows.Next() {
		var v alerts.Violation
		if err := rows.Scan(&v.Level, &v.Metric, &v.Subject, &v.Value, &v.Message); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *Repository) InsertNotificationEvent(ctx context.Context, runID, channel, status string, attempts int, lastErr string, sent *time.Time) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO notification_events (run_id,channel,status,attempts,last_error,sent_ts_nullable) VALUES (?,?,?,?,?,?)`,
		runID, channel, status, attempts, lastErr, sent)
	return err
}

func (r *Repository) NotificationEvents(ctx context.Context, runID string) ([]NotificationEvent, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT run_id,channel,status,attempts,last_error,sent_ts_nullable FROM notification_events WHERE run_id=? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []NotificationEvent
	for rows.Next() {
		var ev NotificationEvent
		var lastErr sql.NullString
		var sent sql.NullTime
		if err := rows.Scan(&ev.RunID, &ev.Channel, &ev.Status, &ev.Attempts, &lastErr, &sent); err != nil {
			return nil, err
		}
		ev.LastError = lastErr.String
		if sent.Valid {
			t := sent.Time
			ev.SentAt = &t
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// DeleteOlderThan drops runs started before cutoff together with their
// violations and notification events.
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM runs WHERE started_ts < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	_, _ = r.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`)
	_, _ = r.db.ExecContext(ctx, `PRAGMA optimize`)
	return n, nil
}
