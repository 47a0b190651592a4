package httpapi

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/amplimindcc/backend-sub000/pkg/logger"
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func NewLoggingMiddleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			log.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", sw.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

// Admitter gates an entry point per caller identity and can clear one
// identity's budget.
type Admitter interface {
	Admit(ctx context.Context, identity string) error
	Reset(ctx context.Context, identity string)
}

// NewRateLimitMiddleware rejects callers over their request budget before
// any handler logic runs. Identity is the authenticated user when present,
// the remote address otherwise.
func NewRateLimitMiddleware(limiter Admitter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := r.Header.Get(userHeader)
			if identity == "" {
				identity = r.RemoteAddr
			}
			if err := limiter.Admit(r.Context(), identity); err != nil {
				writeError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
