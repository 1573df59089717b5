package handlers

import (
	"encoding/json"
	"net/http"
)

// HealthCheck implements GET /healthz. It reports process liveness only;
// database reachability surfaces through the session endpoints themselves.
func HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": "reelmatch",
	})
}
