// Package api serves a finished run's sink database over HTTP for
// dashboards and spot checks. Every endpoint is read-only GET; the
// database is opened in read-only mode so a live writer is never
// disturbed.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/talgya/agora/internal/persistence"
)

const defaultLimit = 50

// Server serves sink database queries over HTTP.
type Server struct {
	DB   *sqlx.DB
	Addr string

	httpServer *http.Server
}

// Start begins serving in a goroutine. Stop shuts the listener down.
func (s *Server) Start() {
	limiter := NewRateLimiter(600, time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/runs", s.getOnly(s.handleRuns))
	mux.HandleFunc("/api/v1/trades", s.getOnly(s.handleTrades))
	mux.HandleFunc("/api/v1/volumes", s.getOnly(s.handleVolumes))
	mux.HandleFunc("/api/v1/aggregates", s.getOnly(s.handleAggregates))
	mux.HandleFunc("/api/v1/panel", s.getOnly(s.handlePanel))

	s.httpServer = &http.Server{
		Addr:              s.Addr,
		Handler:           RateLimitMiddleware(limiter, mux.ServeHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("inspection API starting", "addr", s.Addr)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Stop shuts the server down, waiting briefly for in-flight requests.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) getOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := persistence.Runs(s.DB)
	if err != nil {
		s.fail(w, "list runs", err)
		return
	}
	writeJSON(w, map[string]any{"runs": runs})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := persistence.RecentTrades(s.DB, queryLimit(r))
	if err != nil {
		s.fail(w, "list trades", err)
		return
	}
	writeJSON(w, map[string]any{"trades": trades})
}

func (s *Server) handleVolumes(w http.ResponseWriter, r *http.Request) {
	vols, err := persistence.Volumes(s.DB)
	if err != nil {
		s.fail(w, "list volumes", err)
		return
	}
	writeJSON(w, map[string]any{"volumes": vols})
}

func (s *Server) handleAggregates(w http.ResponseWriter, r *http.Request) {
	rows, err := persistence.Aggregates(s.DB, r.URL.Query().Get("group"), queryLimit(r))
	if err != nil {
		s.fail(w, "list aggregates", err)
		return
	}
	writeJSON(w, map[string]any{"aggregates": decodeDataRows(rows)})
}

func (s *Server) handlePanel(w http.ResponseWriter, r *http.Request) {
	group := r.URL.Query().Get("group")
	if group == "" {
		http.Error(w, "missing group parameter", http.StatusBadRequest)
		return
	}
	rows, err := persistence.PanelRows(s.DB, group, queryLimit(r))
	if err != nil {
		s.fail(w, "list panel rows", err)
		return
	}
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, map[string]any{
			"run_id":   row.RunID,
			"round":    row.Round,
			"subround": row.Subround,
			"group":    row.Group,
			"agent":    row.Agent,
			"data":     decodeData(row.Data),
		})
	}
	writeJSON(w, map[string]any{"panel": out})
}

func (s *Server) fail(w http.ResponseWriter, what string, err error) {
	slog.Error("query failed", "what", what, "error", err)
	http.Error(w, "query failed", http.StatusInternalServerError)
}

func queryLimit(r *http.Request) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			return n
		}
	}
	return defaultLimit
}

func decodeDataRows(rows []persistence.AggregateRow) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, map[string]any{
			"run_id": row.RunID,
			"round":  row.Round,
			"group":  row.Group,
			"data":   decodeData(row.Data),
		})
	}
	return out
}

func decodeData(raw string) map[string]float64 {
	var data map[string]float64
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil
	}
	return data
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
