package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/campusgate/gatepass/internal/api"
	"github.com/campusgate/gatepass/internal/authn"
	"github.com/campusgate/gatepass/internal/middleware"
)

// handleLogin accepts a form-encoded username/password and issues a bearer
// token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		api.InvalidJSON(w, "could not parse form body")
		return
	}
	username := r.FormValue("username")
	password := r.FormValue("password")
	if username == "" || password == "" {
		api.BadRequest(w, "username and password are required")
		return
	}

	ip := clientIP(r)
	token, role, err := s.Auth.Login(r.Context(), ip, username, password)
	switch {
	case errors.Is(err, authn.ErrRateLimited):
		api.RateLimited(w)
	case errors.Is(err, authn.ErrInvalidCredentials), errors.Is(err, authn.ErrInactive):
		api.InvalidCredentials(w)
	case err != nil:
		api.InternalError(w, err)
	default:
		api.Success(w, http.StatusOK, map[string]any{"access_token": token, "role": role})
	}
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		api.Unauthorized(w, "Authentication required")
		return
	}
	api.Success(w, http.StatusOK, p)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if err := s.Auth.Logout(r.Context(), token); err != nil {
		api.InternalError(w, err)
		return
	}
	api.Success(w, http.StatusOK, map[string]bool{"logged_out": true})
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for i, c := range xff {
			if c == ',' {
				return xff[:i]
			}
		}
		return xff
	}
	return r.RemoteAddr
}
