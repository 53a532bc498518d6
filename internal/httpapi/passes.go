package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/campusgate/gatepass/internal/api"
	"github.com/campusgate/gatepass/internal/lifecycle"
	"github.com/campusgate/gatepass/internal/middleware"
	"github.com/campusgate/gatepass/internal/model"
	"github.com/campusgate/gatepass/internal/store"
)

type createPassRequest struct {
	Direction string   `json:"direction"`
	Reason    string   `json:"reason"`
	Lat       *float64 `json:"lat"`
	Lon       *float64 `json:"lon"`
}

func (s *Server) handleCreatePass(w http.ResponseWriter, r *http.Request) {
	subject, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		api.Unauthorized(w, "Authentication required")
		return
	}

	var req createPassRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.InvalidJSON(w, "could not parse request body")
		return
	}

	if len(req.Reason) < 3 || len(req.Reason) > 300 {
		api.ValidationError(w, "reason must be between 3 and 300 characters", "reason", "length")
		return
	}

	direction := model.Direction(req.Direction)
	if !direction.Valid() {
		api.ValidationError(w, "direction must be entry or exit", "direction", "enum")
		return
	}

	var gps *lifecycle.GPS
	if req.Lat != nil && req.Lon != nil {
		if !validCoordinate(*req.Lat, *req.Lon) {
			api.ValidationError(w, "lat/lon out of range", "lat", "range")
			return
		}
		gps = &lifecycle.GPS{Lat: *req.Lat, Lon: *req.Lon}
	}

	pass, err := s.Lifecycle.Create(r.Context(), subject, direction, req.Reason, gps)
	if err != nil {
		api.InternalError(w, err)
		return
	}
	api.Success(w, http.StatusCreated, pass)
}

func validCoordinate(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// handleListPasses lists passes scoped to the caller: students see only
// their own requests, admins and guards see every request.
func (s *Server) handleListPasses(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		api.Unauthorized(w, "Authentication required")
		return
	}

	offset, limit := api.ParsePagination(r)

	filter := store.PassFilter{
		Direction: model.Direction(r.URL.Query().Get("direction")),
		State:     model.State(r.URL.Query().Get("state")),
	}
	if p.Role == model.RoleStudent {
		id := p.ID
		filter.SubjectID = &id
	}

	passes, err := s.Store.QueryPasses(r.Context(), filter, offset+limit)
	if err != nil {
		api.InternalError(w, err)
		return
	}
	if offset > len(passes) {
		offset = len(passes)
	}
	end := offset + limit
	if end > len(passes) {
		end = len(passes)
	}
	api.PaginatedSuccess(w, http.StatusOK, passes[offset:end], offset, limit, len(passes))
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	admin, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		api.Unauthorized(w, "Authentication required")
		return
	}
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		api.BadRequest(w, "invalid pass id")
		return
	}

	pass, err := s.Lifecycle.Approve(r.Context(), id, admin)
	s.respondPassMutation(w, pass, err)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	admin, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		api.Unauthorized(w, "Authentication required")
		return
	}
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		api.BadRequest(w, "invalid pass id")
		return
	}

	pass, err := s.Lifecycle.Reject(r.Context(), id, admin)
	s.respondPassMutation(w, pass, err)
}

func (s *Server) respondPassMutation(w http.ResponseWriter, pass model.PassRequest, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrWrongState):
		api.StateConflict(w, "wrong_state", "pass is not in a state that allows this action")
	case errors.Is(err, store.ErrNotFound):
		api.NotFound(w, "pass_not_found", "pass not found")
	case err != nil:
		api.InternalError(w, err)
	default:
		api.Success(w, http.StatusOK, pass)
	}
}

type dailyEntryRequest struct {
	Direction string  `json:"direction"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
}

func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	subject, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		api.Unauthorized(w, "Authentication required")
		return
	}

	var req dailyEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.InvalidJSON(w, "could not parse request body")
		return
	}

	direction := model.Direction(req.Direction)
	if !direction.Valid() {
		api.ValidationError(w, "direction must be entry or exit", "direction", "enum")
		return
	}
	if !validCoordinate(req.Lat, req.Lon) {
		api.ValidationError(w, "lat/lon out of range", "lat", "range")
		return
	}

	pass, err := s.Lifecycle.Daily(r.Context(), subject, direction, lifecycle.GPS{Lat: req.Lat, Lon: req.Lon})
	switch {
	case errors.Is(err, lifecycle.ErrExpiredLock):
		api.Forbidden(w, "subject validity window has expired")
	case errors.Is(err, lifecycle.ErrGeofence):
		api.Forbidden(w, "location verification failed")
	case err != nil:
		api.InternalError(w, err)
	default:
		api.Success(w, http.StatusOK, pass)
	}
}
