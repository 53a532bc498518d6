// Package httpapi translates HTTP requests into calls against the
// lifecycle, verify, audit, and authn packages, resolving a bearer
// credential and asserting role on every protected route.
package httpapi

import (
	"net/http"
	"time"

	"github.com/campusgate/gatepass/internal/audit"
	"github.com/campusgate/gatepass/internal/authn"
	"github.com/campusgate/gatepass/internal/geofence"
	"github.com/campusgate/gatepass/internal/lifecycle"
	"github.com/campusgate/gatepass/internal/middleware"
	"github.com/campusgate/gatepass/internal/model"
	"github.com/campusgate/gatepass/internal/store"
	"github.com/campusgate/gatepass/internal/verify"
)

// Server holds every dependency a handler needs. It has no mutable state of
// its own beyond what its fields already own (Store's write queue, the
// audit Hub's subscriber map).
type Server struct {
	Store      *store.Store
	Lifecycle  *lifecycle.Engine
	Verifier   *verify.Verifier
	Auth       *authn.Service
	Recorder   *audit.Recorder
	Hub        *audit.Hub
	Analytics  *audit.Analytics
	PolicyRepo *geofence.PolicyStore
	LoginAudit *audit.LoginAudit
}

// Routes builds the HTTP mux, applying auth/role middleware per route.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.Handle("GET /auth/me", middleware.RequireAuth(s.Auth)(http.HandlerFunc(s.handleMe)))
	mux.Handle("POST /auth/logout", middleware.RequireAuth(s.Auth)(http.HandlerFunc(s.handleLogout)))

	mux.Handle("POST /passes", s.withAuth(model.RoleStudent)(http.HandlerFunc(s.handleCreatePass)))
	mux.Handle("GET /passes", middleware.RequireAuth(s.Auth)(http.HandlerFunc(s.handleListPasses)))
	mux.Handle("POST /passes/{id}/approve", s.withAuth(model.RoleAdmin)(http.HandlerFunc(s.handleApprove)))
	mux.Handle("POST /passes/{id}/reject", s.withAuth(model.RoleAdmin)(http.HandlerFunc(s.handleReject)))
	mux.Handle("POST /passes/daily-entry", s.withAuth(model.RoleStudent)(http.HandlerFunc(s.handleDaily)))

	mux.Handle("POST /verify", s.withAuth(model.RoleGuard)(http.HandlerFunc(s.handleVerify)))

	mux.Handle("POST /api/emergency_exit", s.withAuth(model.RoleStudent)(http.HandlerFunc(s.handleEmergencyExit)))

	mux.Handle("GET /api/logs/recent", middleware.RequireAuth(s.Auth)(http.HandlerFunc(s.handleLogsRecent)))
	mux.Handle("GET /api/logs/statistics", middleware.RequireAuth(s.Auth)(http.HandlerFunc(s.handleStatistics)))
	mux.Handle("GET /api/logs/hourly", middleware.RequireAuth(s.Auth)(http.HandlerFunc(s.handleHourly)))
	mux.Handle("GET /api/logs/daily", middleware.RequireAuth(s.Auth)(http.HandlerFunc(s.handleDailyLogs)))
	mux.Handle("GET /api/logs/top_students", middleware.RequireAuth(s.Auth)(http.HandlerFunc(s.handleTopStudents)))
	mux.Handle("GET /api/logs/search", middleware.RequireAuth(s.Auth)(http.HandlerFunc(s.handleSearch)))

	mux.HandleFunc("GET /ws/logs", s.handleWS)

	mux.Handle("GET /api/admin/location", s.withAuth(model.RoleAdmin)(http.HandlerFunc(s.handleGetLocationAdmin)))
	mux.Handle("POST /api/admin/location", s.withAuth(model.RoleAdmin)(http.HandlerFunc(s.handleSetLocation)))
	mux.HandleFunc("GET /api/location", s.handleGetLocationPublic)

	mux.Handle("GET /api/admin/login-audit", s.withAuth(model.RoleAdmin)(http.HandlerFunc(s.handleLoginAudit)))

	return mux
}

// withAuth composes RequireAuth with RequireRole for a single-role route.
func (s *Server) withAuth(role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return middleware.RequireAuth(s.Auth)(middleware.RequireRole(role)(next))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok","time":"` + time.Now().UTC().Format(time.RFC3339) + `"}`))
}
