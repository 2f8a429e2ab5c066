package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cloo-solutions/stockrag/internal/api/handlers"
	"github.com/cloo-solutions/stockrag/internal/database"
	"github.com/cloo-solutions/stockrag/internal/jobs"
	"github.com/cloo-solutions/stockrag/internal/server"
)

const shutdownTimeout = 30 * time.Second

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the stockrag API server with the periodic sync and session sweeper workers",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides STOCKRAG_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().String("migrations", "file://migrations", "Migration source URL")
	cmd.Flags().Bool("no-sync-worker", false, "Disable the periodic incremental sync")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.close()
	cfg, logger := rt.cfg, rt.logger

	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if noMigrate, _ := cmd.Flags().GetBool("no-migrate"); !noMigrate {
		source, _ := cmd.Flags().GetString("migrations")
		if err := database.Migrate(cfg.DatabaseURL, source, logger); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	app, err := newApp(ctx, cfg, logger, appOptions{withChat: true, withArchive: true})
	if err != nil {
		return err
	}
	defer app.Close()

	logger.Info("services wired",
		zap.String("vector_backend", cfg.VectorBackend),
		zap.String("embedder", app.embedder.Name()),
		zap.String("generator", app.generator.Name()+":"+app.generator.Model()),
	)

	go func() {
		if err := probeUntilReady(ctx, app.EmbedReady, app.embedder, cfg.ReadinessTimeout, logger); err != nil {
			logger.Error("embedding provider failed to initialize", zap.Error(err))
			return
		}
		logger.Info("embedding provider ready", zap.String("provider", app.embedder.Name()))
	}()
	go func() {
		if err := probeUntilReady(ctx, app.GenReady, app.generator, cfg.ReadinessTimeout, logger); err != nil {
			logger.Error("generation provider failed to initialize", zap.Error(err))
			return
		}
		logger.Info("generation provider ready", zap.String("provider", app.generator.Name()))
	}()

	var workers []*jobs.Worker
	if noSync, _ := cmd.Flags().GetBool("no-sync-worker"); !noSync && cfg.SyncInterval > 0 {
		syncWorker := jobs.NewWorker("sync", jobs.NewSyncProcessor(app.Sync, logger), cfg.SyncInterval, logger, jobs.WithRunOnStart())
		workers = append(workers, syncWorker)
		go func() {
			// The first round needs embeddings; a failed probe still starts
			// the loop so later rounds report the failure.
			_ = app.EmbedReady.Wait(ctx, 0)
			syncWorker.Start(ctx)
		}()
	}
	if cfg.SessionSweepInterval > 0 {
		sweeper := jobs.NewWorker("session-sweeper", jobs.NewSessionSweeper(app.Sessions, logger), cfg.SessionSweepInterval, logger)
		workers = append(workers, sweeper)
		go sweeper.Start(ctx)
	}

	router := server.NewRouter(server.RouterConfig{
		AdminToken:    cfg.AdminToken,
		Logger:        logger,
		Gatherer:      app.Registry,
		SyncHandler:   handlers.NewSyncHandler(app.Sync),
		SearchHandler: handlers.NewSearchHandler(app.Retrieval),
		ChatHandler:   handlers.NewChatHandler(app.Chat),
	})
	if cfg.AdminToken == "" {
		logger.Warn("STOCKRAG_ADMIN_TOKEN is empty, admin routes are unauthenticated")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	for _, w := range workers {
		w.Stop()
	}

	archived, err := app.Sessions.Drain(shutdownCtx)
	if err != nil {
		logger.Error("session drain incomplete", zap.Int("archived", archived), zap.Error(err))
	} else {
		logger.Info("sessions drained", zap.Int("archived", archived))
	}

	logger.Info("server exited")
	return nil
}
