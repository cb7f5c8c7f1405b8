package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"git.home.luguber.info/inful/linkscan/internal/logfields"
	"git.home.luguber.info/inful/linkscan/internal/observability"
)

// RequestLogger logs one line per request with its status and duration. It
// must run after middleware.RequestID.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := observability.WithComponent(r.Context(), "api")
			ctx = observability.WithRequestID(ctx, middleware.GetReqID(ctx))
			r = r.WithContext(ctx)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			level := slog.LevelDebug
			if ww.Status() >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			attrs := append(observability.Attrs(ctx),
				logfields.Method(r.Method),
				logfields.Path(r.URL.Path),
				logfields.Status(ww.Status()),
				logfields.RemoteAddr(r.RemoteAddr),
				logfields.DurationMS(float64(time.Since(start).Microseconds())/1000))
			logger.LogAttrs(ctx, level, "HTTP request", attrs...)
		})
	}
}
