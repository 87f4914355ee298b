package server

import (
	"encoding/json"
	"errors"
	"net/http"
)

var (
	// ErrHandlerPanic wraps a value recovered from a panicking handler.
	ErrHandlerPanic = errors.New("server: handler panicked")

	// ErrSimulated is returned by the /error endpoint.
	ErrSimulated = errors.New("simulated error for testing")
)

// ErrorResponse is the JSON body of every error answered by the server.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Path      string `json:"path,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// genericErrorMessage replaces handler error text outside development.
const genericErrorMessage = "An error occurred"

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeIndentedJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(body)
}
