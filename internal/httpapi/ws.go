package httpapi

import "net/http"

// handleWS upgrades to a live scan-log feed. Authentication happens via a
// query-string token rather than a header, since browsers cannot attach
// custom headers to a WebSocket handshake.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	if _, err := s.Auth.Me(r.Context(), token); err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	s.Hub.ServeWS(w, r)
}
