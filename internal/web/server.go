package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"healthwatch/internal/alerts"
	"healthwatch/internal/db"
	"healthwatch/internal/models"
	"healthwatch/internal/report"
)

// Backend is the read side of the application served over HTTP.
type Backend interface {
	Latest() (models.Snapshot, bool)
	Analyze(window time.Duration) report.Report
	History(since time.Duration) []models.Snapshot
	RecentRuns(ctx context.Context, since time.Time, limit int) ([]db.Run, error)
	RunViolations(ctx context.Context, runID string) ([]alerts.Violation, error)
	Ready(ctx context.Context) error
}

type Server struct {
	backend Backend
	metrics http.Handler
	log     *slog.Logger
	now     func() time.Time
}

func NewServer(backend Backend, metrics http.Handler, logger *slog.Logger) *Server {
	return &Server{backend: backend, metrics: metrics, log: logger, now: time.Now}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/latest", s.handleLatest)
	mux.HandleFunc("/api/report", s.handleReport)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/runs", s.handleRuns)
	mux.HandleFunc("/api/runs/", s.handleRunSubroutes)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return logMiddleware(mux, s.log)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.backend.Latest()
	if !ok {
		http.Error(w, "no snapshots yet", http.StatusNotFound)
		return
	}
	writeJSON(w, snap)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	window, ok := parseRange(w, r.URL.Query().Get("window"), 24*time.Hour)
	if !ok {
		return
	}
	writeJSON(w, s.backend.Analyze(window))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	since, ok := parseRange(w, r.URL.Query().Get("since"), 24*time.Hour)
	if !ok {
		return
	}
	snaps := s.backend.History(since)
	if snaps == nil {
		snaps = []models.Snapshot{}
	}
	writeJSON(w, snaps)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	since, ok := parseRange(w, r.URL.Query().Get("since"), 24*time.Hour)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.backend.RecentRuns(r.Context(), s.now().Add(-since), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, runs)
}

func (s *Server) handleRunSubroutes(w http.ResponseWriter, r *http.Request) {
	// /api/runs/{id}/violations
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 4 || parts[3] != "violations" || parts[2] == "" {
		http.NotFound(w, r)
		return
	}
	vs, err := s.backend.RunViolations(r.Context(), parts[2])
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if vs == nil {
		vs = []alerts.Violation{}
	}
	writeJSON(w, vs)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.Ready(r.Context()); err != nil {
		s.log.Warn("not ready", "err", err)
		http.Error(w, "not ready: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func parseRange(w http.ResponseWriter, v string, def time.Duration) (time.Duration, bool) {
	if v == "" {
		return def, true
	}
	d, err := report.ParseWindow(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return 0, false
	}
	return d, true
}
