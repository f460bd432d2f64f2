package middlewares

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// AccessLog writes one log line per request. Only the path is logged: the
// query of /auth and /confirm carries the email address and the login code.
// A nil logger means slog.Default().
func AccessLog(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				logger := l
				if logger == nil {
					logger = slog.Default()
				}

				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}

				attrs := []slog.Attr{
					slog.String("request_id", middleware.GetReqID(r.Context())),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
					slog.Int("status", status),
					slog.Int("bytes", ww.BytesWritten()),
					slog.Duration("duration", time.Since(start)),
				}
				if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
					attrs = append(attrs, slog.String("route", rctx.RoutePattern()))
				}

				logger.LogAttrs(r.Context(), accessLevel(status), "http request", attrs...)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// rejected codes and unknown sessions are ordinary traffic
func accessLevel(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status == http.StatusTooManyRequests:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
