package health

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type probeResponse struct {
	Status     string            `json:"status"`
	Components map[string]Record `json:"components"`
}

// Routes mounts the probe endpoints on a chi router: /healthz for liveness
// and /readyz for readiness. Both return 200 with a JSON body when healthy
// and 503 otherwise, so an orchestrator only needs the status code.
func Routes(s *Supervisor) chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", probeHandler(s.Liveness))
	r.Get("/readyz", probeHandler(s.Readiness))
	return r
}

func probeHandler(probe func(ctx context.Context) (bool, map[string]Record)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		healthy, records := probe(r.Context())

		resp := probeResponse{Status: "ok", Components: records}
		code := http.StatusOK
		if !healthy {
			resp.Status = "unhealthy"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
