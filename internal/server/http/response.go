package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/gofrs/uuid/v5"
)

// Client-facing messages. Failure detail is logged, never returned.
const (
	msgInvalidRequest   = "Invalid request data"
	msgServerError      = "Server error"
	msgFetchFailed      = "An error occurred while fetching passwords."
	msgPasswordNotFound = "Password not found"
	msgDeleteFailed     = "Failed to delete password"
	msgFormNotFound     = "Form not found"
	msgFormDeleted      = "Form deleted successfully"
	msgTooManyMisses    = "Too many failed delete attempts, try again later"
)

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes {"error": message}.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

type errorResponse struct {
	Error string `json:"error"`
}

type checkResponse struct {
	Exists bool       `json:"exists"`
	ID     *uuid.UUID `json:"id,omitempty"`
}

type saveResponse struct {
	Success bool      `json:"success"`
	Result  uuid.UUID `json:"result"`
}

type deletedCount struct {
	DeletedCount int `json:"deletedCount"`
}

type looseDeleteResponse struct {
	Success bool         `json:"success"`
	Result  deletedCount `json:"result"`
}

// messageResponse covers {success, message} and {success, error} bodies.
type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type healthResponse struct {
	Status string `json:"status"`
}
