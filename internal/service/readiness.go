package service

import (
	"context"
	"sync"
	"time"

	"github.com/cloo-solutions/stockrag/internal/domain"
)

// Readiness is a single-assignment completion signal. The first call to
// MarkReady or MarkFailed wins; later calls are ignored.
type Readiness struct {
	once sync.Once
	done chan struct{}
	err  error
}

func NewReadiness() *Readiness {
	return &Readiness{done: make(chan struct{})}
}

// MarkReady fulfills the signal successfully.
func (r *Readiness) MarkReady() {
	r.once.Do(func() {
		close(r.done)
	})
}

// MarkFailed fulfills the signal with a permanent initialization error.
func (r *Readiness) MarkFailed(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

// Done is closed once the signal is fulfilled.
func (r *Readiness) Done() <-chan struct{} {
	return r.done
}

// IsReady reports whether the signal was fulfilled successfully.
func (r *Readiness) IsReady() bool {
	select {
	case <-r.done:
		return r.err == nil
	default:
		return false
	}
}

// Err returns ErrNotInitialized until the signal is fulfilled, then the
// failure cause if any.
func (r *Readiness) Err() error {
	select {
	case <-r.done:
		if r.err != nil {
			return domain.ErrNotInitialized.WithCause(r.err)
		}
		return nil
	default:
		return domain.ErrNotInitialized
	}
}

// Wait blocks until the signal is fulfilled, ctx is done or timeout elapses.
// A non-positive timeout waits on ctx alone.
func (r *Readiness) Wait(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case <-r.done:
		return r.Err()
	case <-ctx.Done():
		return domain.ErrNotInitialized.WithCause(ctx.Err())
	}
}

// Prober is anything with a connectivity check.
type Prober interface {
	Ping(ctx context.Context) error
}

// Probe pings p once and fulfills r with the outcome.
func Probe(ctx context.Context, r *Readiness, p Prober) error {
	if err := p.Ping(ctx); err != nil {
		r.MarkFailed(err)
		return err
	}
	r.MarkReady()
	return nil
}
