package admin

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cloo-solutions/stockrag/internal/config"
	"github.com/cloo-solutions/stockrag/internal/logging"
	"github.com/cloo-solutions/stockrag/internal/telemetry"
)

// runtime carries the ambient pieces every command needs.
type runtime struct {
	cfg          *config.Config
	logger       *zap.Logger
	flushTracing func()
}

func newRuntime(cmd *cobra.Command) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Debug = true
	}

	logger, err := logging.New(cfg.Debug, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	flush := func() {}
	if cfg.HasSentry() {
		// 10% of traces in production, all of them elsewhere.
		sampleRate := 1.0
		if cfg.Environment == "production" {
			sampleRate = 0.1
		}
		flush, err = telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			TracesSampleRate: sampleRate,
			Debug:            cfg.Debug,
		}, logger)
		if err != nil {
			logger.Warn("telemetry init failed, continuing without tracing", zap.Error(err))
			flush = func() {}
		}
	}

	return &runtime{cfg: cfg, logger: logger, flushTracing: flush}, nil
}

func (r *runtime) close() {
	r.flushTracing()
	_ = r.logger.Sync()
}
