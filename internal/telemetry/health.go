package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// HealthCheck reports nil when the dependency is usable.
type HealthCheck func(ctx context.Context) error

type healthResponse struct {
	Status  string            `json:"status"`
	Details map[string]string `json:"details,omitempty"`
}

// HealthHandler answers 200 {"status":"UP"} when every check passes and 503
// {"status":"DOWN"} otherwise, with per-check details.
func HealthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "UP"}
		status := http.StatusOK

		for name, check := range checks {
			if resp.Details == nil {
				resp.Details = make(map[string]string, len(checks))
			}
			if err := check(ctx); err != nil {
				resp.Status = "DOWN"
				resp.Details[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Details[name] = "UP"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
