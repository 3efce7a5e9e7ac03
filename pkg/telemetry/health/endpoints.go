package health

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"nanogov/governor/internal/buildinfo"
	"nanogov/governor/pkg/config"
)

// LivenessHandler returns an HTTP handler for the liveness probe.
//
//	{"status": "ok", "timestamp": "2026-10-18T10:30:00Z"}
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, c.CheckLiveness(r.Context()))
	}
}

// ReadinessHandler returns an HTTP handler for the readiness probe. It
// answers 503 only when a critical check fails.
//
//	{
//	    "status": "degraded",
//	    "checks": {
//	        "default_policy": {"status": "ok", "critical": true, "duration_ms": 0.004},
//	        "evidence_sink": {"status": "unhealthy", "critical": false, "message": "dial tcp: ..."}
//	    },
//	    "timestamp": "2026-10-18T10:30:00Z"
//	}
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := c.CheckReadiness(r.Context())
		code := http.StatusOK
		if !status.Serving() {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, r, code, status)
	}
}

// VersionHandler returns an HTTP handler serving build information.
func VersionHandler() http.HandlerFunc {
	info := buildinfo.Get()
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, info)
	}
}

// Mount registers the liveness, readiness and version endpoints on r at the
// configured paths. GET and HEAD are accepted; chi answers 405 otherwise.
func (c *Checker) Mount(r chi.Router, cfg *config.HealthConfig) {
	routes := map[string]http.HandlerFunc{
		cfg.LivenessPath:  c.LivenessHandler(),
		cfg.ReadinessPath: c.ReadinessHandler(),
		cfg.VersionPath:   VersionHandler(),
	}
	for path, h := range routes {
		if path == "" {
			continue
		}
		r.Get(path, h)
		r.Head(path, h)
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	if r.Method != http.MethodHead {
		_ = json.NewEncoder(w).Encode(v)
	}
}
