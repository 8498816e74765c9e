package rest

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/baechuer/artfront/services/visitor-state/internal/domain"
	appCtx "github.com/baechuer/artfront/services/visitor-state/internal/pkg/context"
	"github.com/baechuer/artfront/services/visitor-state/internal/security"
	"github.com/google/uuid"
)

const (
	deviceIDHeader = "X-Device-Id"
	deviceIDCookie = "device_id"
)

type AuthOptions struct {
	// If set (non-empty), enforce exact issuer match.
	ExpectedIssuer string
}

// IdentityMiddleware resolves the caller once per request. The bearer token
// selects the user path and the device id selects the guest path; both may
// be present. A bearer token that is sent but does not verify is rejected
// instead of silently falling back to the guest path.
func IdentityMiddleware(verifier security.AccessTokenVerifier, opt AuthOptions) func(next http.Handler) http.Handler {
	if verifier == nil {
		panic("IdentityMiddleware: nil verifier")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := domain.Identity{DeviceID: deviceIDFrom(r)}

			if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
				uid, err := bearerUserID(verifier, opt, h)
				if err != nil {
					fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
					return
				}
				id.UserID = uid
			}

			if id.DeviceID != "" {
				if err := domain.ValidateDeviceID(id.DeviceID); err != nil {
					fail(w, r, http.StatusBadRequest, "request.invalid", "invalid device id", map[string]string{
						"device_id": "1-128 characters of [A-Za-z0-9_-]",
					})
					return
				}
			}

			if err := id.Validate(); err != nil {
				handleErr(w, r, err)
				return
			}

			ctx := appCtx.WithIdentity(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func deviceIDFrom(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(deviceIDHeader)); v != "" {
		return v
	}
	if c, err := r.Cookie(deviceIDCookie); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

var errUnauthorized = errors.New("unauthorized")

func bearerUserID(verifier security.AccessTokenVerifier, opt AuthOptions, header string) (uuid.UUID, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return uuid.Nil, errUnauthorized
	}
	raw := strings.TrimSpace(parts[1])
	if raw == "" {
		return uuid.Nil, errUnauthorized
	}

	claims, err := verifier.VerifyAccessToken(raw)
	if err != nil {
		return uuid.Nil, err
	}
	if opt.ExpectedIssuer != "" && claims.Issuer != opt.ExpectedIssuer {
		return uuid.Nil, errUnauthorized
	}
	uid, err := uuid.Parse(strings.TrimSpace(claims.UserID))
	if err != nil || uid == uuid.Nil {
		return uuid.Nil, errUnauthorized
	}
	return uid, nil
}

// RateLimiter is satisfied by the redis store.
type RateLimiter interface {
	AllowRequest(ctx context.Context, ip string, limit int, window time.Duration) (bool, error)
}

func RateLimitMiddleware(limiter RateLimiter, limit int, window time.Duration) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, _ := limiter.AllowRequest(r.Context(), clientIP(r), limit, window)
			if !allowed {
				fail(w, r, http.StatusTooManyRequests, "rate_limited", "too many requests", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP uses the RemoteAddr host part. middleware.RealIP runs first, so
// proxy headers are already folded in.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// JSON-only API
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
		w.Header().Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=(), usb=(), bluetooth=()")

		next.ServeHTTP(w, r)
	})
}

func identityFrom(r *http.Request) (domain.Identity, bool) {
	return appCtx.GetIdentity(r.Context())
}
