package apitest

import (
	"encoding/json"
	"net/http"
	"strings"
)

func sendError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func isJSONContentType(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(strings.ToLower(ct), "application/json")
}

// decodeBody reads a JSON request body into v, answering 400/415 itself on
// failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if !isJSONContentType(r) {
		sendError(w, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		sendError(w, "Invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}
