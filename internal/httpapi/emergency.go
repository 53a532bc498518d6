package httpapi

import (
	"net/http"

	"github.com/campusgate/gatepass/internal/api"
	"github.com/campusgate/gatepass/internal/middleware"
)

// handleEmergencyExit logs an unconditional exit scan for the calling
// subject, bypassing approval entirely. The subject is both the person
// leaving and the one triggering the scan: no guard involvement required.
func (s *Server) handleEmergencyExit(w http.ResponseWriter, r *http.Request) {
	subject, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		api.Unauthorized(w, "Authentication required")
		return
	}

	rec, err := s.Lifecycle.EmergencyExit(r.Context(), subject, subject)
	if err != nil {
		api.InternalError(w, err)
		return
	}
	api.Success(w, http.StatusOK, rec)
}
