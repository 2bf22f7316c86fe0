package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"mediagrab/internal/core/domain"
	"mediagrab/internal/logger"
)

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			args := logger.WithDuration(start,
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"request_id", middleware.GetReqID(r.Context()),
			)
			if ww.Status() >= http.StatusInternalServerError {
				log.Warn("Request completed", args...)
				return
			}
			log.Info("Request completed", args...)
		})
	}
}

// rateLimit rejects requests once limiter runs dry. A nil limiter lets
// everything through.
func rateLimit(limiter *rate.Limiter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				respondError(w, log, domain.Fail(domain.KindRateLimited, "too many download requests, please retry later", nil))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewLimiter builds the download throttle; rps <= 0 disables it.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
