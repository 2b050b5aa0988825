package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
)

// Pinger is a dependency reported by the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health returns a health check handler that verifies every named
// dependency. Nil pingers are reported as disabled.
func Health(deps map[string]Pinger) http.HandlerFunc {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		code := http.StatusOK
		checks := make(map[string]string, len(names))

		for _, name := range names {
			p := deps[name]
			if p == nil {
				checks[name] = "disabled"
				continue
			}
			if err := p.Ping(r.Context()); err != nil {
				checks[name] = "unreachable"
				status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": status, "checks": checks})
	}
}
