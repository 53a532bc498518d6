package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/campusgate/gatepass/internal/api"
	"github.com/campusgate/gatepass/internal/audit"
	"github.com/campusgate/gatepass/internal/model"
)

func (s *Server) handleLogsRecent(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	api.Success(w, http.StatusOK, s.Recorder.Recent(limit))
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	days := queryDays(r, 1)
	stats, err := s.Analytics.Statistics(r.Context(), days)
	if err != nil {
		api.InternalError(w, err)
		return
	}
	api.Success(w, http.StatusOK, stats)
}

func (s *Server) handleHourly(w http.ResponseWriter, r *http.Request) {
	day := time.Now()
	if v := r.URL.Query().Get("date"); v != "" {
		if parsed, err := time.Parse("2006-01-02", v); err == nil {
			day = parsed
		}
	}
	buckets, err := s.Analytics.Hourly(r.Context(), day)
	if err != nil {
		api.InternalError(w, err)
		return
	}
	api.Success(w, http.StatusOK, buckets)
}

func (s *Server) handleDailyLogs(w http.ResponseWriter, r *http.Request) {
	days := queryDays(r, 7)
	buckets, err := s.Analytics.Daily(r.Context(), days)
	if err != nil {
		api.InternalError(w, err)
		return
	}
	api.Success(w, http.StatusOK, buckets)
}

func (s *Server) handleTopStudents(w http.ResponseWriter, r *http.Request) {
	days := queryDays(r, 7)
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	top, err := s.Analytics.TopActive(r.Context(), days, limit)
	if err != nil {
		api.InternalError(w, err)
		return
	}
	api.Success(w, http.StatusOK, top)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := audit.SearchFilters{
		SubjectCodeLike: q.Get("subject_code"),
		Direction:       model.Direction(q.Get("direction")),
		Result:          model.ScanResult(q.Get("result")),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filters.Limit = n
		}
	}
	if v := q.Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filters.From = &t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filters.To = &t
		}
	}

	logs, err := s.Analytics.Search(r.Context(), filters)
	if err != nil {
		api.InternalError(w, err)
		return
	}
	api.Success(w, http.StatusOK, logs)
}

// handleLoginAudit lists recent login attempts, successful or not, for
// incident review. Distinct from the scan log: this is who tried to sign in,
// not who crossed the gate.
func (s *Server) handleLoginAudit(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	entries, err := s.LoginAudit.Recent(limit)
	if err != nil {
		api.InternalError(w, err)
		return
	}
	api.Success(w, http.StatusOK, entries)
}

func queryDays(r *http.Request, def int) int {
	if v := r.URL.Query().Get("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
