// Package httputil provides JSON helpers for the relay's HTTP surface.
package httputil

import (
	"encoding/json"
	"net/http"
)

// ErrorJson is the uniform error body returned by every endpoint.
type ErrorJson struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// HandleError writes a JSON error with the given message and status code.
func HandleError(w http.ResponseWriter, message string, code int) {
	WriteError(w, &ErrorJson{Message: message, Code: code})
}

// WriteError writes an ErrorJson to the response.
func WriteError(w http.ResponseWriter, errJson *ErrorJson) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(errJson.Code)
	// A failed encode here leaves nothing sensible to do.
	_ = json.NewEncoder(w).Encode(errJson)
}

// WriteJson writes v as a JSON 200 response.
func WriteJson(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
