package handlers

import (
	"encoding/json"
	"net/http"
)

// Liveness answers GET / and HEAD / with a trivial payload. The hosting
// platform uses it to decide the process is up; no business logic runs here.
func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	}
}

// Health answers GET /health with a status payload.
func Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
