package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/cloo-solutions/stockrag/internal/config"
	"github.com/cloo-solutions/stockrag/internal/database"
	"github.com/cloo-solutions/stockrag/internal/enrichment"
	"github.com/cloo-solutions/stockrag/internal/generation"
	"github.com/cloo-solutions/stockrag/internal/openai"
	"github.com/cloo-solutions/stockrag/internal/repository"
	"github.com/cloo-solutions/stockrag/internal/service"
	"github.com/cloo-solutions/stockrag/internal/storage"
)

// App is the fully wired service graph shared by the daemon and the one-shot
// admin commands.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Pool     *pgxpool.Pool

	Indexing  *service.IndexingService
	Sync      *service.SyncService
	Retrieval *service.RetrievalService
	Chat      *service.ChatService
	Sessions  *service.SessionStore

	EmbedReady *service.Readiness
	GenReady   *service.Readiness

	embedder  service.Embedder
	generator service.Generator
}

// appOptions select the optional parts of the graph. One-shot commands skip
// the generator and the archive.
type appOptions struct {
	withChat    bool
	withArchive bool
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts appOptions) (*App, error) {
	pool, err := database.NewPool(ctx, database.Config{
		URL:               cfg.DatabaseURL,
		MaxConns:          cfg.DBMaxConns,
		HealthCheckPeriod: 30 * time.Second,
		ConnectTimeout:    cfg.ReadinessTimeout,
	})
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:     cfg,
		Logger:     logger,
		Registry:   prometheus.NewRegistry(),
		Pool:       pool,
		EmbedReady: service.NewReadiness(),
		GenReady:   service.NewReadiness(),
	}
	app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := app.wire(ctx, opts); err != nil {
		pool.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) wire(ctx context.Context, opts appOptions) error {
	cfg := a.Config

	store, err := newChunkStore(cfg, a.Pool)
	if err != nil {
		return err
	}

	a.embedder, err = newEmbedder(cfg)
	if err != nil {
		return err
	}

	metrics := service.NewMetrics(a.Registry)

	a.Indexing = service.NewIndexingService(store, a.embedder, service.IndexConfig{
		Chunk:        service.ChunkConfig{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap},
		BatchSize:    cfg.IndexBatchSize,
		EmbeddingRPS: cfg.EmbeddingRPS,
	}, a.EmbedReady, a.Logger)

	sources := repository.NewRecordSources(a.Pool)
	listers := make([]service.RecordLister, 0, len(sources))
	for _, s := range sources {
		listers = append(listers, s)
	}
	registry, err := service.NewSyncRegistry(listers...)
	if err != nil {
		return fmt.Errorf("build sync registry: %w", err)
	}

	a.Sync = service.NewSyncService(
		registry,
		repository.NewSyncStatusRepository(a.Pool),
		a.Indexing,
		enrichment.New(),
		service.SyncConfig{
			MaxAttempts:   cfg.SyncMaxAttempts,
			BackoffBase:   cfg.SyncBackoffBase,
			RecoveryPause: cfg.SyncRecoveryPause,
			Concurrency:   cfg.SyncConcurrency,
		},
		metrics,
		a.Logger,
	)
	if err := a.Sync.Init(ctx); err != nil {
		return err
	}

	a.Retrieval = service.NewRetrievalService(a.Indexing, a.Logger)

	if !opts.withChat {
		return nil
	}

	a.generator, err = newGenerator(cfg)
	if err != nil {
		return err
	}

	var archive service.SessionArchive
	if opts.withArchive && cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("create session archive: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("ensure session archive bucket: %w", err)
		}
		a.Logger.Info("session archive ready", zap.String("bucket", cfg.S3Bucket))
		archive = s3Client
	}

	a.Sessions = service.NewSessionStore(service.SessionConfig{
		MaxMessages: cfg.SessionMaxMessages,
		IdleTTL:     cfg.SessionIdleTTL,
	}, archive, a.Logger)

	a.Chat = service.NewChatService(a.Sessions, a.Retrieval, a.generator, a.GenReady, service.DefaultChatConfig(), metrics, a.Logger)
	return nil
}

func newChunkStore(cfg *config.Config, pool *pgxpool.Pool) (service.ChunkStore, error) {
	switch cfg.VectorBackend {
	case config.VectorBackendMemory:
		store, err := repository.NewMemoryChunkRepository()
		if err != nil {
			return nil, fmt.Errorf("create in-memory chunk store: %w", err)
		}
		return store, nil
	default:
		return repository.NewChunkRepository(pool), nil
	}
}

func newEmbedder(cfg *config.Config) (service.Embedder, error) {
	switch cfg.EmbeddingProvider {
	case config.ProviderOllama:
		embedder, err := generation.NewOllamaEmbedder(generation.OllamaConfig{
			ServerURL:      cfg.OllamaURL,
			EmbeddingModel: cfg.EmbeddingModel,
			Dimensions:     cfg.EmbeddingDimensions,
		})
		if err != nil {
			return nil, err
		}
		return embedder, nil
	default:
		if !cfg.HasOpenAI() {
			return nil, openai.ErrNoAPIKey
		}
		return openai.NewClientWithConfig(openai.Config{
			APIKey:              cfg.OpenAIAPIKey,
			BaseURL:             cfg.OpenAIBaseURL,
			EmbeddingModel:      cfg.EmbeddingModel,
			EmbeddingDimensions: cfg.EmbeddingDimensions,
		}), nil
	}
}

func newGenerator(cfg *config.Config) (service.Generator, error) {
	switch cfg.GenerationProvider {
	case config.ProviderOpenAI:
		if !cfg.HasOpenAI() {
			return nil, openai.ErrNoAPIKey
		}
		return openai.NewChatClient(openai.Config{APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.OpenAIBaseURL}, cfg.GenerationModel), nil
	default:
		generator, err := generation.NewOllamaGenerator(generation.OllamaConfig{
			ServerURL: cfg.OllamaURL,
			Model:     cfg.GenerationModel,
		})
		if err != nil {
			return nil, err
		}
		return generator, nil
	}
}

// probeUntilReady pings p with exponential backoff until it answers or
// timeout elapses, then fulfills r with the outcome.
func probeUntilReady(ctx context.Context, r *service.Readiness, p service.Prober, timeout time.Duration, logger *zap.Logger) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxElapsedTime = timeout

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := p.Ping(pingCtx); err != nil {
			logger.Debug("provider not reachable yet", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		return nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		r.MarkFailed(err)
		return err
	}
	r.MarkReady()
	return nil
}

// waitEmbeddings probes the embedder and blocks until it is ready. One-shot
// commands use it before touching the index.
func (a *App) waitEmbeddings(ctx context.Context) error {
	if err := probeUntilReady(ctx, a.EmbedReady, a.embedder, a.Config.ReadinessTimeout, a.Logger); err != nil {
		return fmt.Errorf("embedding provider %s not ready: %w", a.embedder.Name(), err)
	}
	return nil
}

func (a *App) waitGenerator(ctx context.Context) error {
	if err := probeUntilReady(ctx, a.GenReady, a.generator, a.Config.ReadinessTimeout, a.Logger); err != nil {
		return fmt.Errorf("generation provider %s not ready: %w", a.generator.Name(), err)
	}
	return nil
}

func (a *App) Close() {
	a.Pool.Close()
}
