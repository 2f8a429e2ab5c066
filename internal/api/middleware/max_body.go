package middleware

import (
	"net/http"

	"github.com/cloo-solutions/stockrag/internal/api"
)

// MaxBodyBytes caps request bodies at limit bytes. Requests that declare a
// larger Content-Length are refused up front; streamed bodies are cut off by
// http.MaxBytesReader and surface through api.Decode as 413.
func MaxBodyBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength > limit {
				api.JSON(w, http.StatusRequestEntityTooLarge, api.ErrorResponse{Error: "request body too large", Code: "PAYLOAD_TOO_LARGE"})
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
