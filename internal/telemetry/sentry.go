// Package telemetry wraps Sentry tracing and error capture. Every helper is
// safe to call when Sentry was never initialized.
package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

const (
	serverName   = "stockragd"
	flushTimeout = 5 * time.Second
)

// Transactions that are never sampled.
var unsampled = map[string]bool{
	"GET /health":  true,
	"GET /metrics": true,
}

type Config struct {
	DSN              string
	Environment      string
	TracesSampleRate float64
	Debug            bool
}

// Init configures the global Sentry client and returns a flush function for
// shutdown. An empty DSN or a failed init leaves tracing disabled.
func Init(cfg Config, logger *zap.Logger) (func(), error) {
	noop := func() {}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DSN == "" {
		return noop, nil
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.TracesSampleRate <= 0 || cfg.TracesSampleRate > 1 {
		cfg.TracesSampleRate = 1
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		ServerName:       serverName,
		Debug:            cfg.Debug,
		EnableTracing:    true,
		TracesSampleRate: cfg.TracesSampleRate,
		TracesSampler: func(sc sentry.SamplingContext) float64 {
			return sampleRate(sc.Span, cfg.TracesSampleRate)
		},
	})
	if err != nil {
		logger.Warn("sentry init failed, tracing disabled", zap.Error(err))
		return noop, nil
	}

	logger.Info("sentry initialized",
		zap.String("environment", cfg.Environment),
		zap.Float64("traces_sample_rate", cfg.TracesSampleRate),
	)
	return func() { sentry.Flush(flushTimeout) }, nil
}

// sampleRate drops probe traffic and makes children follow their parent.
func sampleRate(span *sentry.Span, rate float64) float64 {
	if span == nil {
		return rate
	}
	if unsampled[span.Name] {
		return 0
	}
	if span.ParentSpanID != (sentry.SpanID{}) {
		if span.Sampled.Bool() {
			return 1
		}
		return 0
	}
	return rate
}

// SpanAttributes tag a span with the stockrag dimensions worth filtering on.
type SpanAttributes struct {
	EntityType string
	SessionID  string
	Strategy   string
	Operation  string
}

func (a SpanAttributes) apply(span *sentry.Span) {
	for key, value := range map[string]string{
		"entity_type": a.EntityType,
		"session_id":  a.SessionID,
		"strategy":    a.Strategy,
	} {
		if value != "" {
			span.SetTag(key, value)
		}
	}
	if a.Operation != "" {
		span.SetData("operation", a.Operation)
	}
}

type Span struct {
	inner *sentry.Span
}

func (s *Span) End() {
	if s != nil && s.inner != nil {
		s.inner.Finish()
	}
}

// SetError marks the span failed and reports err. Cancellation is recorded
// on the span but not reported.
func (s *Span) SetError(err error) {
	if s == nil || s.inner == nil || err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		s.inner.Status = sentry.SpanStatusCanceled
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		s.inner.Status = sentry.SpanStatusDeadlineExceeded
	} else {
		s.inner.Status = sentry.SpanStatusInternalError
	}
	CaptureError(s.inner.Context(), err)
}

// StartSpan opens a child of the span carried by ctx, or a new transaction
// when there is none, as with the periodic sync worker.
func StartSpan(ctx context.Context, op string, attrs SpanAttributes) (context.Context, *Span) {
	var span *sentry.Span
	if parent := sentry.SpanFromContext(ctx); parent != nil {
		span = parent.StartChild(op)
	} else {
		span = sentry.StartSpan(ctx, op, sentry.WithTransactionName(op))
	}
	attrs.apply(span)
	return span.Context(), &Span{inner: span}
}

func CaptureError(ctx context.Context, err error) {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.CaptureException(err)
		return
	}
	sentry.CaptureException(err)
}

// AddBreadcrumb records a step that is attached to the next captured event.
func AddBreadcrumb(ctx context.Context, category, message string) {
	crumb := &sentry.Breadcrumb{
		Category:  category,
		Message:   message,
		Level:     sentry.LevelInfo,
		Timestamp: time.Now(),
	}
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.AddBreadcrumb(crumb, nil)
		return
	}
	sentry.AddBreadcrumb(crumb)
}
