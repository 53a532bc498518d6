// Package api defines the JSON response envelope and pagination conventions
// shared by every HTTP handler: a response is either {"data":...} or
// {"error":{...}}, never both.
package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
)

// SuccessEnvelope carries a successful response. Success responses ONLY
// contain data (and optional meta), never error fields.
type SuccessEnvelope struct {
	Data interface{} `json:"data"`
	Meta interface{} `json:"meta,omitempty"`
}

// ErrorEnvelope carries a failed response. Error responses ONLY contain
// error details, never data fields.
type ErrorEnvelope struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail is the structured error body.
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Success writes a successful JSON response with data.
func Success(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(SuccessEnvelope{Data: data}); err != nil {
		log.Printf("encode success response: %v", err)
	}
}

// SuccessWithMeta writes a successful JSON response with data and metadata,
// used for paginated lists.
func SuccessWithMeta(w http.ResponseWriter, status int, data interface{}, meta interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(SuccessEnvelope{Data: data, Meta: meta}); err != nil {
		log.Printf("encode success response with meta: %v", err)
	}
}

// Error writes an error JSON response with structured error details.
func Error(w http.ResponseWriter, status int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorEnvelope{
		Error: ErrorDetail{Code: code, Message: message, Details: details},
	}); err != nil {
		log.Printf("encode error response: %v", err)
	}
}

// BadRequest returns a 400 for malformed requests.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, "BAD_REQUEST", message, nil)
}

// ValidationError returns a 400 with field-level detail, for coordinates out
// of range, reason length violations, and the like.
func ValidationError(w http.ResponseWriter, message, field, constraint string) {
	Error(w, http.StatusBadRequest, "VALIDATION_FAILED", message, map[string]interface{}{
		"field":      field,
		"constraint": constraint,
	})
}

// InvalidJSON returns a 400 for a body that doesn't parse.
func InvalidJSON(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, "INVALID_JSON", message, nil)
}

// Unauthorized returns a 401 for a missing or expired session.
func Unauthorized(w http.ResponseWriter, message string) {
	Error(w, http.StatusUnauthorized, "UNAUTHORIZED", message, nil)
}

// InvalidCredentials returns a 401 for a failed /auth/login.
func InvalidCredentials(w http.ResponseWriter) {
	Error(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password", nil)
}

// RateLimited returns a 429 when the login rate limit has been tripped.
func RateLimited(w http.ResponseWriter) {
	Error(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many failed attempts, try again later", nil)
}

// Forbidden returns a 403 for an authenticated caller with the wrong role,
// or a geofence refusal on a strict (non-advisory) path.
func Forbidden(w http.ResponseWriter, message string) {
	Error(w, http.StatusForbidden, "FORBIDDEN", message, nil)
}

// NotFound returns a 404 with a specific error code, e.g. PASS_NOT_FOUND.
func NotFound(w http.ResponseWriter, code, message string) {
	Error(w, http.StatusNotFound, code, message, nil)
}

// StateConflict returns a 400 for a state-machine error on a pass: wrong
// state for the requested action, or replay of an already-used pass.
func StateConflict(w http.ResponseWriter, code, message string) {
	Error(w, http.StatusBadRequest, code, message, nil)
}

// PayloadTooLarge returns a 413 for an oversized request body.
func PayloadTooLarge(w http.ResponseWriter, maxSize string) {
	Error(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
		"Request payload exceeds maximum size of "+maxSize, nil)
}

// InternalError returns a 500, logging the real cause but never exposing it
// to the client.
func InternalError(w http.ResponseWriter, err error) {
	if err != nil {
		log.Printf("internal error: %v", err)
	}
	Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
		"An unexpected error occurred. Please try again later.", nil)
}

// ServiceUnavailable returns a 503 with the given message. Handlers report
// write-queue admission rejections through InternalError (500), not here.
func ServiceUnavailable(w http.ResponseWriter, message string) {
	Error(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", message, nil)
}

// Pagination is the metadata attached to a paginated list response.
type Pagination struct {
	Offset  int  `json:"offset"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasMore bool `json:"has_more"`
}

// ParsePagination extracts offset/limit from the query string.
// Defaults: offset=0, limit=20, max limit=100.
func ParsePagination(r *http.Request) (offset, limit int) {
	offset = 0
	limit = 20

	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := parseInt(v); err == nil && n >= 0 {
			offset = n
		}
	}

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := parseInt(v); err == nil && n > 0 {
			limit = n
			if limit > 100 {
				limit = 100
			}
		}
	}

	return offset, limit
}

func parseInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

// PaginatedSuccess writes a paginated list response with pagination metadata.
func PaginatedSuccess(w http.ResponseWriter, status int, data interface{}, offset, limit, total int) {
	meta := Pagination{
		Offset:  offset,
		Limit:   limit,
		Total:   total,
		HasMore: offset+limit < total,
	}
	SuccessWithMeta(w, status, data, meta)
}
