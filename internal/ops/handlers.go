package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/good-yellow-bee/noisegate/internal/models"
	"github.com/good-yellow-bee/noisegate/internal/notify"
	"github.com/good-yellow-bee/noisegate/internal/storage"
	"github.com/good-yellow-bee/noisegate/internal/worker"
)

type dataResponse struct {
	Data any `json:"data"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	errCodeBadRequest    = "BAD_REQUEST"
	errCodeInternalError = "INTERNAL_ERROR"
)

func jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(dataResponse{Data: data})
}

func jsonError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: errorBody{Code: code, Message: message}})
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// handleHealth reports that the process is up. Use for liveness probes.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(healthResponse{Status: "ok"})
}

// handleReady runs every registered checker and returns 503 when any
// dependency is unhealthy. Use for readiness probes.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	ready := true
	for _, c := range s.checkers {
		if err := c.Check(ctx); err != nil {
			checks[c.Name()] = err.Error()
			ready = false
		} else {
			checks[c.Name()] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := healthResponse{Status: "ready", Checks: checks}
	if !ready {
		resp.Status = "not_ready"
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(resp)
}

const (
	defaultStatsHours    = 24
	maxStatsHours        = 24 * 30
	defaultRecentMinutes = 60
	maxRecentMinutes     = 7 * 24 * 60
)

// StatsResponse is the /api/v1/stats payload.
type StatsResponse struct {
	Hours int            `json:"hours"`
	Stats *storage.Stats `json:"stats"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	hours := queryInt(r, "hours", defaultStatsHours, maxStatsHours)

	ctx, cancel := context.WithTimeout(r.Context(), s.config.QueryTimeout)
	defer cancel()

	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	stats, err := s.store.Stats(ctx, since)
	if err != nil {
		s.log.Error().Err(err).Msg("stats query failed")
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	jsonOK(w, StatsResponse{Hours: hours, Stats: stats})
}

// RecentAlertsResponse is the /api/v1/alerts/recent payload.
type RecentAlertsResponse struct {
	Minutes int                   `json:"minutes"`
	Count   int                   `json:"count"`
	Items   []*models.AlertRecord `json:"items"`
}

func (s *Server) handleRecentAlerts(w http.ResponseWriter, r *http.Request) {
	minutes := queryInt(r, "minutes", defaultRecentMinutes, maxRecentMinutes)

	includeFiltered := true
	if v := r.URL.Query().Get("filtered"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid filtered value")
			return
		}
		includeFiltered = b
	}

	var minSeverity models.Severity
	if v := r.URL.Query().Get("min_severity"); v != "" {
		sev, err := models.ParseSeverity(v)
		if err != nil {
			jsonError(w, http.StatusBadRequest, errCodeBadRequest, err.Error())
			return
		}
		minSeverity = sev
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.QueryTimeout)
	defer cancel()

	since := time.Now().Add(-time.Duration(minutes) * time.Minute)
	items, err := s.store.FetchRecentAlerts(ctx, since, includeFiltered, minSeverity)
	if err != nil {
		s.log.Error().Err(err).Msg("recent alerts query failed")
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if items == nil {
		items = []*models.AlertRecord{}
	}

	jsonOK(w, RecentAlertsResponse{Minutes: minutes, Count: len(items), Items: items})
}

// StatusResponse is the /api/v1/status payload. Sections for sources
// that were not configured are omitted.
type StatusResponse struct {
	Worker    *worker.Status              `json:"worker,omitempty"`
	RateLimit *notify.RateLimitStats      `json:"rate_limit,omitempty"`
	Archive   *storage.ArchiveBufferStats `json:"archive,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var resp StatusResponse
	if s.worker != nil {
		st := s.worker.Status()
		resp.Worker = &st
	}
	if s.limits != nil {
		st := s.limits.RateLimitStats()
		resp.RateLimit = &st
	}
	if s.archive != nil {
		st := s.archive.BufferStats()
		resp.Archive = &st
	}
	jsonOK(w, resp)
}

// queryInt reads a positive integer query parameter, falling back to
// def when missing or unparseable and clamping to max.
func queryInt(r *http.Request, name string, def, max int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
