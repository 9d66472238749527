// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/laguz/internal/api"
	"github.com/starford/laguz/internal/dedup"
	"github.com/starford/laguz/internal/features"
	"github.com/starford/laguz/internal/mcpserver"
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/normalizer"
	"github.com/starford/laguz/internal/pipeline"
	"github.com/starford/laguz/internal/scoring"
	"github.com/starford/laguz/internal/sse"
	"github.com/starford/laguz/internal/store"
	"github.com/starford/laguz/internal/watch"
	pkgconfig "github.com/starford/laguz/pkg/config"
)

// Run starts the HTTP curation service with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("strategy", cfg.Pipeline.Strategy),
		slog.String("log_level", cfg.App.LogLevel.String()))

	db, scorer, detector, pipe, broker, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	defer broker.Close()

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", api.NewRouter(pipe, db, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker))

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start the ingestion worker pool.
	g.Go(func() error {
		return pipe.Run(gCtx)
	})

	// Hot-reload pipeline thresholds when the config file changes.
	if app.configPath != "" {
		configPath := app.configPath
		g.Go(func() error {
			return watch.Watch(gCtx, configPath, logger, func() error {
				fresh := NewDefaultConfig()
				if err := pkgconfig.Load(configPath, fresh); err != nil {
					return err
				}
				scorer.SetThresholds(scoring.Thresholds{
					Approve: fresh.Pipeline.ApproveThreshold,
					Reject:  fresh.Pipeline.RejectThreshold,
				})
				detector.SetThreshold(fresh.Pipeline.DuplicateThreshold)
				return nil
			})
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP starts the MCP server on stdin/stdout. Logs go to stderr so
// they do not corrupt the protocol stream.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	db, _, _, pipe, broker, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	defer broker.Close()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return pipe.Run(gCtx)
	})

	g.Go(func() error {
		return mcpserver.New(pipe, db).ServeStdio()
	})

	return g.Wait()
}

// buildPipeline constructs the store and the full stage chain, rebuilding
// the in-memory similarity index from approved embeddings on disk.
func buildPipeline(ctx context.Context, cfg *Config, logger *slog.Logger) (store.Store, *scoring.Scorer, *dedup.Detector, *pipeline.Pipeline, *sse.Broker, error) {
	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("open store: %w", err)
	}

	index := dedup.NewMemoryIndex(cfg.Pipeline.EmbeddingDim)
	vectors, err := db.ApprovedEmbeddings(ctx)
	if err != nil {
		db.Close()
		return nil, nil, nil, nil, nil, fmt.Errorf("load approved embeddings: %w", err)
	}
	for _, vec := range vectors {
		if err := index.Insert(vec.LoopID, vec.Vector); err != nil {
			logger.Warn("skipping stored embedding",
				slog.String("loop_id", vec.LoopID),
				slog.String("error", err.Error()))
		}
	}
	logger.Info("similarity index rebuilt", slog.Int("vectors", index.Len()))

	strategy, err := scoring.NewStrategy(cfg.Pipeline.Strategy)
	if err != nil {
		db.Close()
		return nil, nil, nil, nil, nil, fmt.Errorf("init scoring strategy: %w", err)
	}
	scorer := scoring.NewScorer(strategy, cfg.Pipeline.ScorerVersion, scoring.Thresholds{
		Approve: cfg.Pipeline.ApproveThreshold,
		Reject:  cfg.Pipeline.RejectThreshold,
	})

	detector := dedup.NewDetector(
		dedup.NewEmbedder(cfg.Pipeline.EmbeddingDim),
		index,
		cfg.Pipeline.DuplicateThreshold,
	)

	broker := sse.NewBroker(2 * time.Second)
	broker.SetStatsSource(func() (models.PipelineStats, error) {
		return db.Stats(context.Background())
	})

	pipe := pipeline.New(pipeline.Deps{
		Store:         db,
		Normalizer:    normalizer.New(db),
		Extractor:     features.NewExtractor(cfg.Pipeline.ExtractorVersion),
		Scorer:        scorer,
		Detector:      detector,
		Emitter:       broker,
		Logger:        logger,
		Workers:       cfg.Pipeline.Workers,
		QueueCapacity: cfg.Pipeline.QueueCapacity,
		StageTimeout:  cfg.Pipeline.StageTimeout,
	})

	return db, scorer, detector, pipe, broker, nil
}
