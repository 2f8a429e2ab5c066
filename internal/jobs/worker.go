package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// JobProcessor runs one unit of periodic work
type JobProcessor interface {
	ProcessJobs(ctx context.Context) error
}

// Worker runs a processor on a fixed interval until stopped
type Worker struct {
	name         string
	processor    JobProcessor
	pollInterval time.Duration
	runOnStart   bool
	logger       *zap.Logger
	stopChan     chan struct{}
	doneChan     chan struct{}
	stopOnce     sync.Once
}

type Option func(*Worker)

// WithRunOnStart makes the worker process once before the first tick
func WithRunOnStart() Option {
	return func(w *Worker) { w.runOnStart = true }
}

// NewWorker creates a new Worker instance
func NewWorker(name string, processor JobProcessor, pollInterval time.Duration, logger *zap.Logger, opts ...Option) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Worker{
		name:         name,
		processor:    processor,
		pollInterval: pollInterval,
		logger:       logger.With(zap.String("worker", name)),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start runs the polling loop and blocks until ctx is done or Stop is called
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	defer close(w.doneChan)

	w.logger.Info("worker started", zap.Duration("interval", w.pollInterval))

	if w.runOnStart {
		w.process(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped: context cancelled")
			return
		case <-w.stopChan:
			w.logger.Info("worker stopped: stop signal received")
			return
		case <-ticker.C:
			w.process(ctx)
		}
	}
}

func (w *Worker) process(ctx context.Context) {
	started := time.Now()
	if err := w.processor.ProcessJobs(ctx); err != nil {
		w.logger.Error("job run failed", zap.Error(err))
		return
	}
	w.logger.Debug("job run finished", zap.Duration("duration", time.Since(started)))
}

// Stop signals the loop and waits for the current run to finish. It must
// only be called after Start.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
	<-w.doneChan
	w.logger.Info("worker shutdown complete")
}
