package rest

import (
	"net/http"
	"time"

	"github.com/baechuer/artfront/services/visitor-state/internal/metrics"
	"github.com/baechuer/artfront/services/visitor-state/internal/security"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
)

type RouterDeps struct {
	Handler   *Handler
	Verifier  security.AccessTokenVerifier
	JWTIssuer string

	// Limiter backs the shared fixed-window limit; nil falls back to an
	// in-process limiter.
	Limiter   RateLimiter
	RLEnabled bool
	RLLimit   int
	RLWindow  time.Duration

	Health         map[string]Pinger
	MetricsEnabled bool
}

func NewRouter(d RouterDeps) http.Handler {
	if d.Handler == nil {
		panic("rest.NewRouter: nil handler")
	}
	if d.Verifier == nil {
		panic("rest.NewRouter: nil verifier")
	}

	r := chi.NewRouter()

	// Request ID + structured access log
	r.Use(RequestID)
	r.Use(middleware.RealIP)
	r.Use(HTTPLogger)

	// Panic recovery
	r.Use(middleware.Recoverer)

	// Cross-cutting
	if d.RLEnabled {
		if d.Limiter != nil {
			r.Use(RateLimitMiddleware(d.Limiter, d.RLLimit, d.RLWindow))
		} else {
			r.Use(httprate.LimitByIP(d.RLLimit, d.RLWindow))
		}
	}
	r.Use(SecurityHeaders)

	r.Get("/healthz", Healthz(d.Health))
	if d.MetricsEnabled {
		r.Handle("/metrics", metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(IdentityMiddleware(d.Verifier, AuthOptions{ExpectedIssuer: d.JWTIssuer}))

		// membership lists
		r.Get("/lists/{kind}", d.Handler.GetList)
		r.Post("/lists/{kind}", d.Handler.PostList)
		r.Post("/lists/{kind}/merge", d.Handler.MergeList)

		// engagement
		r.Post("/engagements/start", d.Handler.StartEngagement)
		r.Post("/engagements/end", d.Handler.EndEngagement)
		r.Get("/engagements/active", d.Handler.ActiveEngagement)
		r.Get("/engagements/{itemID}", d.Handler.GetEngagement)
		r.Patch("/engagements/{itemID}", d.Handler.UpdateEngagement)
		r.Get("/recent", d.Handler.RecentViews)

		// notifications (guest path)
		r.Post("/notifications/abandoned-cart", d.Handler.ScheduleAbandonedCart)
	})

	return r
}
