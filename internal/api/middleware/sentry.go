package middleware

import (
	"fmt"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
)

var spanStatusByCode = map[int]sentry.SpanStatus{
	http.StatusBadRequest:            sentry.SpanStatusInvalidArgument,
	http.StatusUnauthorized:          sentry.SpanStatusUnauthenticated,
	http.StatusForbidden:             sentry.SpanStatusPermissionDenied,
	http.StatusNotFound:              sentry.SpanStatusNotFound,
	http.StatusRequestEntityTooLarge: sentry.SpanStatusResourceExhausted,
	http.StatusTooManyRequests:       sentry.SpanStatusResourceExhausted,
	499:                              sentry.SpanStatusCanceled,
	http.StatusServiceUnavailable:    sentry.SpanStatusUnavailable,
	http.StatusGatewayTimeout:        sentry.SpanStatusDeadlineExceeded,
}

func httpStatusToSpanStatus(status int) sentry.SpanStatus {
	if s, ok := spanStatusByCode[status]; ok {
		return s
	}
	switch {
	case status >= 200 && status < 400:
		return sentry.SpanStatusOK
	case status >= 400 && status < 500:
		return sentry.SpanStatusInvalidArgument
	case status >= 500:
		return sentry.SpanStatusInternalError
	}
	return sentry.SpanStatusUnknown
}

// SentryMiddleware opens one transaction per request and reports panics and
// server errors. Transactions are renamed to the matched chi route so
// /sync/users and /sync/invoices group together. Without an initialized
// client every call is a no-op.
func SentryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub := sentry.GetHubFromContext(r.Context())
		if hub == nil {
			hub = sentry.CurrentHub().Clone()
		}

		opts := []sentry.SpanOption{
			sentry.WithOpName("http.server"),
			sentry.WithTransactionSource(sentry.SourceURL),
		}
		if trace := r.Header.Get("sentry-trace"); trace != "" {
			opts = append(opts, sentry.ContinueFromHeaders(trace, r.Header.Get("baggage")))
		}

		tx := sentry.StartTransaction(r.Context(), r.Method+" "+r.URL.Path, opts...)
		defer tx.Finish()

		r = r.WithContext(sentry.SetHubOnContext(tx.Context(), hub))

		scope := hub.Scope()
		scope.SetRequest(r)
		if id := GetRequestID(r.Context()); id != "" {
			scope.SetTag("request_id", id)
			tx.SetTag("request_id", id)
		}

		defer func() {
			if err := recover(); err != nil {
				tx.Status = sentry.SpanStatusInternalError
				hub.RecoverWithContext(r.Context(), err)
				panic(err)
			}
		}()

		rec := &responseRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		tx.Status = httpStatusToSpanStatus(status)
		tx.SetData("http.response.status_code", status)

		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				tx.Name = r.Method + " " + pattern
				tx.Source = sentry.SourceRoute
			}
		}
		if actor := GetActor(r.Context()); actor != "" {
			scope.SetTag("actor", actor)
			tx.SetTag("actor", actor)
		}

		if status >= http.StatusInternalServerError {
			hub.CaptureMessage(fmt.Sprintf("%s answered %d", tx.Name, status))
		}
	})
}
