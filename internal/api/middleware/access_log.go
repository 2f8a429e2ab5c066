package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// AccessLog logs one structured line per request. Server errors are logged
// at error level, client errors at warn.
func AccessLog(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &responseRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", rec.bytes),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.String("remote_addr", clientIP(r)),
			}
			if id := GetRequestID(r.Context()); id != "" {
				fields = append(fields, zap.String("request_id", id))
			}
			if actor := GetActor(r.Context()); actor != "" {
				fields = append(fields, zap.String("actor", actor))
			}
			if ua := r.UserAgent(); ua != "" {
				fields = append(fields, zap.String("user_agent", ua))
			}

			switch {
			case status >= 500:
				logger.Error("request", fields...)
			case status >= 400:
				logger.Warn("request", fields...)
			default:
				logger.Info("request", fields...)
			}
		})
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
