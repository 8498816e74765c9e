package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/baechuer/artfront/services/visitor-state/internal/transport/rest/response"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Healthz pings every named dependency and reports 503 if any is down.
func Healthz(deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		checks := make(map[string]string, len(deps))
		for name, p := range deps {
			if err := p.Ping(ctx); err != nil {
				checks[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}
		response.Data(w, status, map[string]any{"checks": checks})
	}
}
