package jobs

import (
	"context"

	"go.uber.org/zap"

	"github.com/cloo-solutions/stockrag/internal/service"
)

// Syncer runs an incremental sync of every entity type
type Syncer interface {
	SyncAll(ctx context.Context) ([]service.SyncResult, error)
}

// SyncProcessor drives the periodic incremental sync
type SyncProcessor struct {
	syncer Syncer
	logger *zap.Logger
}

func NewSyncProcessor(syncer Syncer, logger *zap.Logger) *SyncProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncProcessor{syncer: syncer, logger: logger}
}

// ProcessJobs runs one sync round. Per-type failures are already recorded on
// the checkpoints, so only a round that could not start is an error.
func (p *SyncProcessor) ProcessJobs(ctx context.Context) error {
	results, err := p.syncer.SyncAll(ctx)
	if err != nil {
		return err
	}

	counts := make(map[service.SyncOutcome]int)
	for _, r := range results {
		counts[r.Outcome]++
		if r.Outcome == service.SyncOutcomeFailed {
			p.logger.Warn("entity type sync failed",
				zap.String("entity_type", string(r.EntityType)),
				zap.String("error", r.Error),
			)
		}
	}
	p.logger.Info("sync round finished",
		zap.Int("synced", counts[service.SyncOutcomeSynced]),
		zap.Int("unchanged", counts[service.SyncOutcomeUnchanged]),
		zap.Int("skipped", counts[service.SyncOutcomeSkipped]),
		zap.Int("failed", counts[service.SyncOutcomeFailed]),
	)
	return nil
}

// Sweeper evicts idle chat sessions
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// SessionSweeper reaps idle sessions on every tick
type SessionSweeper struct {
	sweeper Sweeper
	logger  *zap.Logger
}

func NewSessionSweeper(sweeper Sweeper, logger *zap.Logger) *SessionSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionSweeper{sweeper: sweeper, logger: logger}
}

func (s *SessionSweeper) ProcessJobs(ctx context.Context) error {
	removed, err := s.sweeper.Sweep(ctx)
	if removed > 0 {
		s.logger.Info("idle sessions reaped", zap.Int("count", removed))
	}
	return err
}
