package api

import (
	"encoding/json"
	"net/http"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// orgID extracts the tenant scope from the X-Org-ID header. Every read of
// event state requires one; a missing org is a 400, never a fall-through to
// another tenant's data.
func orgID(r *http.Request) string {
	return r.Header.Get("X-Org-ID")
}
