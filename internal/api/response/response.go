// Package response writes the tracker's JSON envelopes: {"data": ...} for
// results and {"error": {"code", "message", "details"}} for failures.
package response

import (
	"encoding/json"
	"net/http"
)

// Code is a machine-readable error code. Each code implies its HTTP status,
// so clients can branch on the code alone.
type Code string

const (
	CodeInvalidRequest   Code = "INVALID_REQUEST"
	CodeNotFound         Code = "NOT_FOUND"
	CodeAlreadyFinished  Code = "ALREADY_FINISHED"
	CodeConflict         Code = "CONFLICT"
	CodeRateLimited      Code = "RATE_LIMIT_EXCEEDED"
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
	CodeDegraded         Code = "DEGRADED"
	CodeNotImplemented   Code = "NOT_IMPLEMENTED"
	CodeInternal         Code = "INTERNAL_ERROR"
)

var codeStatus = map[Code]int{
	CodeInvalidRequest:   http.StatusBadRequest,
	CodeNotFound:         http.StatusNotFound,
	CodeAlreadyFinished:  http.StatusConflict,
	CodeConflict:         http.StatusConflict,
	CodeRateLimited:      http.StatusTooManyRequests,
	CodeStoreUnavailable: http.StatusServiceUnavailable,
	CodeDegraded:         http.StatusServiceUnavailable,
	CodeNotImplemented:   http.StatusNotImplemented,
	CodeInternal:         http.StatusInternalServerError,
}

// Status is the HTTP status sent with c. Unknown codes are server errors.
func (c Code) Status() int {
	if s, ok := codeStatus[c]; ok {
		return s
	}
	return http.StatusInternalServerError
}

type envelope struct {
	Data any `json:"data"`
}

type collectionEnvelope struct {
	Data any            `json:"data"`
	Meta PaginationMeta `json:"meta"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type PaginationMeta struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasNext bool `json:"has_next"`
}

func JSON(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Data: data})
}

func Created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, envelope{Data: data})
}

// Page builds the pagination meta for a 1-based page over total items.
func Page(page, limit, total int) PaginationMeta {
	return PaginationMeta{
		Page:    page,
		Limit:   limit,
		Total:   total,
		HasNext: limit > 0 && page*limit < total,
	}
}

func Collection(w http.ResponseWriter, data any, meta PaginationMeta) {
	writeJSON(w, http.StatusOK, collectionEnvelope{Data: data, Meta: meta})
}

// Error writes the error envelope with the status implied by code.
func Error(w http.ResponseWriter, code Code, message string, details any) {
	writeJSON(w, code.Status(), errorEnvelope{Error: errorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

// Invalid is shorthand for an INVALID_REQUEST error without details.
func Invalid(w http.ResponseWriter, message string) {
	Error(w, CodeInvalidRequest, message, nil)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
