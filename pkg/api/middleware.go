package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Sternrassler/chapters-api/pkg/cache"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// CacheAside serves the default chapter listing from the cache when it is
// present. Every other case, including a cache that is down or holds a
// corrupt value, falls through to next. It never writes the cache.
func CacheAside(m *cache.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m == nil || !m.Available() {
				next.ServeHTTP(w, r)
				return
			}

			q, err := ParseListQuery(r.URL.Query())
			if err != nil || !q.CacheKey().Cacheable() {
				next.ServeHTTP(w, r)
				return
			}

			body, err := m.GetRaw(r.Context(), cache.ChaptersKey)
			if err != nil {
				if !errors.Is(err, cache.ErrCacheMiss) {
					hlog.FromRequest(r).Warn().Err(err).Str("key", cache.ChaptersKey).Msg("Cache read failed, serving from store")
				}
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Cache", "HIT")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(body)
		})
	}
}

// RequireAdmin rejects requests without the admin bearer token. An empty
// token rejects everything.
func RequireAdmin(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				hlog.FromRequest(r).Warn().
					Bool("token_present", ok && got != "").
					Msg("Rejected admin request")
				respondError(w, r, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger attaches logger to each request, tagged with the chi
// request id, and writes one access log line per request.
func requestLogger(logger zerolog.Logger) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		hlog.NewHandler(logger),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if id := middleware.GetReqID(r.Context()); id != "" {
					hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
						return c.Str("request_id", id)
					})
				}
				next.ServeHTTP(w, r)
			})
		},
		hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
			hlog.FromRequest(r).Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", size).
				Dur("duration", duration).
				Str("remote_addr", r.RemoteAddr).
				Msg("HTTP request")
		}),
	}
}
