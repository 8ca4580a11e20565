package middleware

import (
	"net/http"
	"net/url"
	"time"

	"fpp-app-layer/internal/domain"

	"github.com/rs/zerolog"
)

// SessionLoader resolves the session attached to a request
type SessionLoader interface {
	LoadCurrentSession(r *http.Request, isOnline bool) (*domain.Session, error)
}

// SessionOptions configures RequireSession
type SessionOptions struct {
	IsOnline bool
	// AuthPath is where the client is sent to restart OAuth, e.g. "/auth"
	AuthPath string
	Now      func() time.Time
}

// RequireSession rejects requests without an active session and stores the
// session in the request context for downstream handlers. Rejected requests
// carry the reauthorize headers so an embedded frontend can restart OAuth.
func RequireSession(loader SessionLoader, opts SessionOptions, logger zerolog.Logger) func(http.Handler) http.Handler {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := loader.LoadCurrentSession(r, opts.IsOnline)
			if err != nil {
				status := domain.HTTPStatus(err)
				logger.Warn().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("Failed to load session")
				if status == http.StatusUnauthorized {
					reauthorize(w, opts.AuthPath, r.URL.Query().Get("shop"))
				}
				http.Error(w, http.StatusText(status), status)
				return
			}

			if session == nil || !session.IsActive(now()) {
				shop := r.URL.Query().Get("shop")
				if session != nil {
					shop = session.Shop
				}
				logger.Debug().Str("path", r.URL.Path).Str("shop", shop).Msg("No active session")
				reauthorize(w, opts.AuthPath, shop)
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			ctx := domain.WithSession(r.Context(), session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func reauthorize(w http.ResponseWriter, authPath, shop string) {
	w.Header().Set(domain.HeaderReauthorize, "1")
	if authPath == "" {
		return
	}
	target := authPath
	if shop != "" {
		target += "?" + url.Values{"shop": {shop}}.Encode()
	}
	w.Header().Set(domain.HeaderReauthorizeURL, target)
}

// SecurityHeaders sets the response headers every page of the app needs
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			next.ServeHTTP(w, r)
		})
	}
}
