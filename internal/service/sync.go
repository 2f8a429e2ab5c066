package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cloo-solutions/stockrag/internal/domain"
	"github.com/cloo-solutions/stockrag/internal/telemetry"
)

// SyncStatusStore persists one checkpoint per entity type.
type SyncStatusStore interface {
	EnsureDefaults(ctx context.Context, types []domain.EntityType) error
	Get(ctx context.Context, t domain.EntityType) (*domain.SyncStatus, error)
	List(ctx context.Context) ([]*domain.SyncStatus, error)
	Upsert(ctx context.Context, s *domain.SyncStatus) error
	ResetAll(ctx context.Context) error
	Ping(ctx context.Context) error
}

// SyncIndexer is the part of the indexing pipeline the sync service drives.
type SyncIndexer interface {
	ReplaceSourceType(ctx context.Context, sourceType domain.EntityType, docs []domain.EnrichedDocument) (*IndexResult, error)
	Clear(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (*domain.IndexStats, error)
	Ping(ctx context.Context) error
	Ready() error
}

// DocumentEnricher turns a change set into documents.
type DocumentEnricher interface {
	Enrich(records []domain.Record) []domain.EnrichedDocument
}

type SyncOutcome string

const (
	SyncOutcomeSynced    SyncOutcome = "synced"
	SyncOutcomeSkipped   SyncOutcome = "skipped"
	SyncOutcomeUnchanged SyncOutcome = "unchanged"
	SyncOutcomeFailed    SyncOutcome = "failed"
)

type SyncConfig struct {
	MaxAttempts   int
	BackoffBase   time.Duration
	RecoveryPause time.Duration
	Concurrency   int
	// StaleAfter marks a type as stale in the data quality report
	StaleAfter time.Duration
}

func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		MaxAttempts:   3,
		BackoffBase:   time.Second,
		RecoveryPause: 5 * time.Second,
		Concurrency:   len(domain.AllEntityTypes()),
		StaleAfter:    24 * time.Hour,
	}
}

// SyncResult reports one entity type sync.
type SyncResult struct {
	EntityType domain.EntityType `json:"entity_type"`
	Outcome    SyncOutcome       `json:"outcome"`
	Documents  int               `json:"documents"`
	Chunks     int               `json:"chunks"`
	Deleted    int64             `json:"deleted"`
	Checksum   string            `json:"checksum,omitempty"`
	Attempts   int               `json:"attempts"`
	DurationMS int64             `json:"duration_ms"`
	Error      string            `json:"error,omitempty"`
}

// SyncService keeps the vector index in step with the business tables.
type SyncService struct {
	registry *SyncRegistry
	statuses SyncStatusStore
	indexer  SyncIndexer
	enricher DocumentEnricher
	cfg      SyncConfig
	metrics  *Metrics
	perf     *perfTracker
	logger   *zap.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewSyncService(
	registry *SyncRegistry,
	statuses SyncStatusStore,
	indexer SyncIndexer,
	enricher DocumentEnricher,
	cfg SyncConfig,
	metrics *Metrics,
	logger *zap.Logger,
) *SyncService {
	def := DefaultSyncConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.RecoveryPause < 0 {
		cfg.RecoveryPause = 0
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = def.StaleAfter
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncService{
		registry: registry,
		statuses: statuses,
		indexer:  indexer,
		enricher: enricher,
		cfg:      cfg,
		metrics:  metrics,
		perf:     newPerfTracker(perfWindow),
		logger:   logger.Named("sync"),
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// Init creates the never-synced checkpoint of every registered type.
func (s *SyncService) Init(ctx context.Context) error {
	if err := s.statuses.EnsureDefaults(ctx, s.registry.Types()); err != nil {
		return fmt.Errorf("create default sync statuses: %w", err)
	}
	return nil
}

// SyncType force-syncs one entity type by name. Sync failures are reported
// in the result and persisted on the checkpoint; only an unknown type or an
// uninitialized index return an error.
func (s *SyncService) SyncType(ctx context.Context, name string) (*SyncResult, error) {
	t, unit, err := s.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	if err := s.indexer.Ready(); err != nil {
		return nil, err
	}
	res := s.syncEntity(ctx, t, unit)
	return &res, nil
}

// SyncAll syncs every entity type concurrently. A failing type never
// cancels or blocks the others.
func (s *SyncService) SyncAll(ctx context.Context) ([]SyncResult, error) {
	if err := s.indexer.Ready(); err != nil {
		return nil, err
	}

	types := s.registry.Types()
	results := make([]SyncResult, len(types))

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, t := range types {
		unit, err := s.registry.Unit(t)
		if err != nil {
			return nil, err
		}
		g.Go(func() error {
			results[i] = s.syncEntity(ctx, t, unit)
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

// FullResync resets every checkpoint to the never-synced sentinel and syncs
// all types from scratch.
func (s *SyncService) FullResync(ctx context.Context) ([]SyncResult, error) {
	if err := s.indexer.Ready(); err != nil {
		return nil, err
	}
	if err := s.statuses.ResetAll(ctx); err != nil {
		return nil, fmt.Errorf("reset sync statuses: %w", err)
	}
	s.logger.Info("sync checkpoints reset for full resync")
	return s.SyncAll(ctx)
}

// ClearIndex deletes every indexed chunk and resets every checkpoint.
func (s *SyncService) ClearIndex(ctx context.Context) (int64, error) {
	deleted, err := s.indexer.Clear(ctx)
	if err != nil {
		return 0, fmt.Errorf("clear index: %w", err)
	}
	if err := s.statuses.ResetAll(ctx); err != nil {
		return deleted, fmt.Errorf("reset sync statuses: %w", err)
	}
	for _, t := range s.registry.Types() {
		s.metrics.setIndexedDocuments(t, 0)
	}
	s.logger.Info("index cleared", zap.Int64("deleted_chunks", deleted))
	return deleted, nil
}

// Statuses returns the checkpoint of every entity type.
func (s *SyncService) Statuses(ctx context.Context) ([]*domain.SyncStatus, error) {
	return s.statuses.List(ctx)
}

func (s *SyncService) syncEntity(ctx context.Context, t domain.EntityType, unit SyncUnit) SyncResult {
	ctx, span := telemetry.StartSpan(ctx, "sync.entity", telemetry.SpanAttributes{
		EntityType: string(t),
		Operation:  "sync",
	})
	defer span.End()

	started := s.now()
	log := s.logger.With(zap.String("entity_type", string(t)))

	var res SyncResult
	attempts := 0
	op := func() error {
		attempts++
		if err := s.ensureStores(ctx, log); err != nil {
			return err
		}
		r, err := s.syncOnce(ctx, t, unit)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return backoff.Permanent(err)
			}
			return err
		}
		res = r
		return nil
	}
	notify := func(err error, wait time.Duration) {
		telemetry.AddBreadcrumb(ctx, "sync", fmt.Sprintf("%s attempt %d failed: %v", t, attempts, err))
		log.Warn("sync attempt failed, retrying",
			zap.Int("attempt", attempts),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(op, s.retryPolicy(ctx), notify)
	elapsed := s.now().Sub(started)

	if err != nil {
		span.SetError(err)
		res = s.recordFailure(ctx, t, err, elapsed)
		res.Attempts = attempts
		log.Error("sync failed", zap.Int("attempts", attempts), zap.Error(err))
	} else {
		res.Attempts = attempts
		res.DurationMS = elapsed.Milliseconds()
		if res.Outcome == SyncOutcomeSynced {
			s.metrics.setIndexedDocuments(t, res.Documents)
		}
		log.Info("sync finished",
			zap.String("outcome", string(res.Outcome)),
			zap.Int("documents", res.Documents),
			zap.Int("chunks", res.Chunks),
			zap.Int("attempts", attempts),
			zap.Duration("duration", elapsed),
		)
	}

	s.perf.record(t, elapsed, res.Outcome == SyncOutcomeFailed)
	s.metrics.observeSync(t, res.Outcome, elapsed)
	return res
}

// retryPolicy waits base*2^attempt between attempts.
func (s *SyncService) retryPolicy(ctx context.Context) backoff.BackOff {
	exp := &backoff.ExponentialBackOff{
		InitialInterval:     2 * s.cfg.BackoffBase,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         64 * s.cfg.BackoffBase,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(s.cfg.MaxAttempts-1)), ctx)
}

// ensureStores probes both stores, allowing one recovery pause before
// giving up on the attempt.
func (s *SyncService) ensureStores(ctx context.Context, log *zap.Logger) error {
	err := s.pingStores(ctx)
	if err == nil {
		return nil
	}

	log.Warn("store unreachable, pausing before recheck",
		zap.Duration("pause", s.cfg.RecoveryPause),
		zap.Error(err),
	)
	if err := s.sleep(ctx, s.cfg.RecoveryPause); err != nil {
		return backoff.Permanent(err)
	}
	if err := s.pingStores(ctx); err != nil {
		return domain.ErrStoreUnreachable.WithCause(err)
	}
	return nil
}

func (s *SyncService) pingStores(ctx context.Context) error {
	if err := s.statuses.Ping(ctx); err != nil {
		return fmt.Errorf("checkpoint store: %w", err)
	}
	if err := s.indexer.Ping(ctx); err != nil {
		return fmt.Errorf("chunk store: %w", err)
	}
	return nil
}

func (s *SyncService) syncOnce(ctx context.Context, t domain.EntityType, unit SyncUnit) (SyncResult, error) {
	started := s.now()
	res := SyncResult{EntityType: t}

	status, err := s.loadStatus(ctx, t)
	if err != nil {
		return res, err
	}

	fetchedAt := s.now().UTC()
	records, err := unit(ctx, status.LastSync)
	if err != nil {
		return res, fmt.Errorf("fetch %s changes: %w", t, err)
	}

	if len(records) == 0 {
		res.Outcome = SyncOutcomeSkipped
		res.Checksum = status.Checksum
		return res, nil
	}

	checksum, err := Checksum(records)
	if err != nil {
		return res, err
	}

	// A failed previous run may have left the type half indexed, so the
	// shortcut only applies after a clean run.
	if checksum == status.Checksum && status.LastError == "" {
		status.LastSync = fetchedAt
		if err := s.statuses.Upsert(ctx, status); err != nil {
			return res, fmt.Errorf("save %s status: %w", t, err)
		}
		res.Outcome = SyncOutcomeUnchanged
		res.Checksum = checksum
		return res, nil
	}

	docs := s.enricher.Enrich(records)

	indexed, err := s.indexer.ReplaceSourceType(ctx, t, docs)
	if err != nil {
		return res, err
	}

	status.LastSync = fetchedAt
	status.Checksum = checksum
	status.DocumentCount = len(docs)
	status.LastError = ""
	status.DurationMS = s.now().Sub(started).Milliseconds()
	if err := s.statuses.Upsert(ctx, status); err != nil {
		return res, fmt.Errorf("save %s status: %w", t, err)
	}

	res.Outcome = SyncOutcomeSynced
	res.Documents = len(docs)
	res.Chunks = indexed.Chunks
	res.Deleted = indexed.Deleted
	res.Checksum = checksum
	return res, nil
}

func (s *SyncService) loadStatus(ctx context.Context, t domain.EntityType) (*domain.SyncStatus, error) {
	status, err := s.statuses.Get(ctx, t)
	if errors.Is(err, domain.ErrSyncStatusNotFound) {
		return domain.NewSyncStatus(t), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s status: %w", t, err)
	}
	return status, nil
}

// recordFailure persists the error on the checkpoint, keeping LastSync and
// Checksum so the next run retries the same window.
func (s *SyncService) recordFailure(ctx context.Context, t domain.EntityType, syncErr error, elapsed time.Duration) SyncResult {
	res := SyncResult{
		EntityType: t,
		Outcome:    SyncOutcomeFailed,
		DurationMS: elapsed.Milliseconds(),
		Error:      syncErr.Error(),
	}

	// The request context may be the reason for the failure.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	status, err := s.loadStatus(saveCtx, t)
	if err != nil {
		s.logger.Error("could not load status to record failure",
			zap.String("entity_type", string(t)), zap.Error(err))
		return res
	}
	status.LastError = syncErr.Error()
	status.DocumentCount = 0
	status.DurationMS = elapsed.Milliseconds()
	res.Checksum = status.Checksum

	if err := s.statuses.Upsert(saveCtx, status); err != nil {
		s.logger.Error("could not record sync failure",
			zap.String("entity_type", string(t)), zap.Error(err))
	}
	return res
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// perfWindow is the number of duration samples kept per type.
const perfWindow = 10

type perfTracker struct {
	mu       sync.Mutex
	window   int
	samples  map[domain.EntityType][]time.Duration
	runs     map[domain.EntityType]int
	failures map[domain.EntityType]int
}

func newPerfTracker(window int) *perfTracker {
	return &perfTracker{
		window:   window,
		samples:  make(map[domain.EntityType][]time.Duration),
		runs:     make(map[domain.EntityType]int),
		failures: make(map[domain.EntityType]int),
	}
}

func (p *perfTracker) record(t domain.EntityType, d time.Duration, failed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	samples := append(p.samples[t], d)
	if len(samples) > p.window {
		samples = samples[len(samples)-p.window:]
	}
	p.samples[t] = samples
	p.runs[t]++
	if failed {
		p.failures[t]++
	}
}

type perfSnapshot struct {
	samples  []time.Duration
	runs     int
	failures int
}

func (p *perfTracker) snapshot(t domain.EntityType) perfSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return perfSnapshot{
		samples:  append([]time.Duration(nil), p.samples[t]...),
		runs:     p.runs[t],
		failures: p.failures[t],
	}
}
