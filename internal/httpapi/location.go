package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/campusgate/gatepass/internal/api"
	"github.com/campusgate/gatepass/internal/model"
)

func (s *Server) handleGetLocationAdmin(w http.ResponseWriter, r *http.Request) {
	policy, err := s.PolicyRepo.Load()
	if err != nil {
		api.InternalError(w, err)
		return
	}
	api.Success(w, http.StatusOK, policy)
}

// handleGetLocationPublic exposes only the label and enabled flag: the
// geofence center and radius stay admin-only so a forged "am I inside"
// check can't be reverse-engineered from public reads.
func (s *Server) handleGetLocationPublic(w http.ResponseWriter, r *http.Request) {
	policy, err := s.PolicyRepo.Load()
	if err != nil {
		api.InternalError(w, err)
		return
	}
	api.Success(w, http.StatusOK, map[string]any{
		"label":   policy.Label,
		"enabled": policy.Enabled,
	})
}

func (s *Server) handleSetLocation(w http.ResponseWriter, r *http.Request) {
	var policy model.LocationPolicy
	if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
		api.InvalidJSON(w, "could not parse request body")
		return
	}
	if !validCoordinate(policy.Latitude, policy.Longitude) {
		api.ValidationError(w, "latitude/longitude out of range", "latitude", "range")
		return
	}
	if policy.RadiusKM <= 0 {
		api.ValidationError(w, "radius_km must be positive", "radius_km", "range")
		return
	}

	if err := s.PolicyRepo.Save(policy); err != nil {
		api.InternalError(w, err)
		return
	}
	api.Success(w, http.StatusOK, policy)
}
