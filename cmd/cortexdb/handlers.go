// Package main provides the CLI entry point for the CortexDB gateway.
//
// handlers.go contains the command handler implementations. Handlers are
// separated from command definitions (commands.go) to keep the cobra wiring
// readable.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cortexdb/cortexdb/internal/auth"
	"github.com/cortexdb/cortexdb/internal/catalog"
	"github.com/cortexdb/cortexdb/internal/config"
	"github.com/cortexdb/cortexdb/internal/embed"
	"github.com/cortexdb/cortexdb/internal/extract"
	"github.com/cortexdb/cortexdb/internal/ingest"
	"github.com/cortexdb/cortexdb/internal/observability"
	"github.com/cortexdb/cortexdb/internal/search"
	"github.com/cortexdb/cortexdb/internal/server"
	"github.com/cortexdb/cortexdb/internal/store/minio"
	"github.com/cortexdb/cortexdb/internal/store/postgres"
	"github.com/cortexdb/cortexdb/internal/store/qdrant"
)

// =============================================================================
// Serve Command Handler
// =============================================================================

// runServe handles the serve command: it wires the three stores, the service
// layer and the HTTP surface, then blocks until a shutdown signal or a fatal
// server error.
func runServe(ctx context.Context, configPath string, debug bool) error {
	// Adjust log level if debug mode is enabled.
	if debug {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	slog.Info("starting CortexDB gateway",
		"version", version,
		"commit", commit,
		"config", configPath,
		"debug", debug,
	)

	// Load and validate configuration.
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Logging.Level
	if debug {
		level = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:  level,
		Format: cfg.Logging.Format,
	})
	metrics := observability.NewMetrics()

	traceCfg := observability.TraceConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: cfg.Tracing.ServiceVersion,
		Environment:    cfg.Tracing.Environment,
		SamplingRate:   cfg.Tracing.SamplingRate,
		EnableInsecure: cfg.Tracing.Insecure,
	}
	if cfg.Tracing.Enabled {
		traceCfg.Endpoint = cfg.Tracing.Endpoint
	}
	tracer, stopTracer := observability.NewTracer(traceCfg)
	defer func() {
		if err := stopTracer(context.Background()); err != nil {
			logger.Warn(context.Background(), "tracer shutdown failed", "error", err)
		}
	}()

	// Create a context that cancels on shutdown signals.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Connect the three stores. Postgres applies pending migrations here
	// unless database.run_migrations is false.
	pg, err := postgres.New(postgres.FromAppConfig(cfg.Database))
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer pg.Close()

	vectors, err := qdrant.New(qdrant.FromAppConfig(cfg.Qdrant))
	if err != nil {
		return fmt.Errorf("failed to connect to qdrant: %w", err)
	}
	defer vectors.Close()

	blobs, err := minio.New(minio.FromAppConfig(cfg.Minio))
	if err != nil {
		return fmt.Errorf("failed to create object store client: %w", err)
	}

	slog.Info("stores connected",
		"qdrant", fmt.Sprintf("%s:%d", cfg.Qdrant.Host, cfg.Qdrant.Port),
		"minio", cfg.Minio.Endpoint,
	)

	// Auth plane. EnsureAdminKey breaks the bootstrap deadlock: without it
	// a fresh deployment has no key to mint keys with.
	cache := auth.NewCache(cfg.Auth.CacheTTL, cfg.Auth.CacheSweepInterval, metrics)
	keys := auth.NewService(pg, cache, logger, metrics)

	boot, err := keys.EnsureAdminKey(ctx, cfg.Auth.BootstrapKey)
	if err != nil {
		return fmt.Errorf("failed to bootstrap admin key: %w", err)
	}
	if boot.Generated {
		// The structured logger redacts key material, so the one-time
		// disclosure goes straight to stdout.
		fmt.Printf("\nGenerated admin API key (shown once, store it now):\n\n    %s\n\n", boot.Plaintext)
	}

	// Embedding facade plus the vision client backing PDF OCR and image
	// description. Vision stays disabled when no Gemini key resolves.
	embedders := embed.NewRegistry(pg, cfg.Embeddings, logger, metrics)

	vision, err := embed.NewDefaultVision(cfg.Embeddings, metrics)
	if err != nil {
		return fmt.Errorf("failed to build vision client: %w", err)
	}
	extractor := &extract.Extractor{}
	if vision != nil {
		extractor.Vision = vision
	}

	// Control catalog and data plane.
	collections := catalog.NewCollections(pg, vectors, blobs, embedders, logger)
	databases := catalog.NewDatabases(pg, collections, logger)
	providers := catalog.NewProviders(pg, embedders, logger)

	records := ingest.NewPipeline(ingest.Services{
		Store:     pg,
		Vectors:   vectors,
		Blobs:     blobs,
		Embedders: embedders,
		Extractor: extractor,
		Logger:    logger,
		Metrics:   metrics,
		Tracer:    tracer,
	})

	searcher := search.NewSearcher(search.Services{
		Store:     pg,
		Vectors:   vectors,
		Blobs:     blobs,
		Embedders: embedders,
		Logger:    logger,
		Metrics:   metrics,
		Tracer:    tracer,
	})

	handler := server.NewHandler(server.Services{
		Databases:   databases,
		Collections: collections,
		Providers:   providers,
		Records:     records,
		Search:      searcher,
		Keys:        keys,
		Auth:        keys,
		Files:       blobs,
		Health: server.HealthChecks{
			Postgres: pg.Ping,
			Qdrant:   vectors.Health,
			Minio:    blobs.Health,
		},
		Logger:  logger,
		Metrics: metrics,
		Tracer:  tracer,
	})

	srv := server.NewServer(cfg.Server, handler.Mount(), logger)
	if err := srv.Start(ctx); err != nil {
		return err
	}

	slog.Info("CortexDB gateway started", "addr", srv.Addr())

	// Wait for a shutdown signal or a fatal server error.
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, initiating graceful shutdown")
	case err := <-srv.Err():
		return fmt.Errorf("http server failed: %w", err)
	}

	// The signal context is already canceled; the drain window needs a
	// fresh one.
	if err := srv.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("CortexDB gateway stopped gracefully")
	return nil
}

// =============================================================================
// Migration Command Handlers
// =============================================================================

// openMigrationStore connects without applying migrations, so the handlers
// decide when to apply.
func openMigrationStore(configPath string) (*postgres.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	store, err := postgres.New(postgres.Config{
		DSN:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return store, nil
}

// runMigrateUp handles the migrate up command.
func runMigrateUp(cmd *cobra.Command, configPath string) error {
	slog.Info("running database migrations", "config", configPath)

	store, err := openMigrationStore(configPath)
	if err != nil {
		return err
	}
	defer store.Close()

	before, err := store.MigrationStatuses(cmd.Context())
	if err != nil {
		return err
	}

	pending := 0
	for _, m := range before {
		if !m.Applied {
			pending++
		}
	}
	if pending == 0 {
		slog.Info("no pending migrations")
		return nil
	}

	if err := store.Migrate(cmd.Context()); err != nil {
		return err
	}
	for _, m := range before {
		if !m.Applied {
			slog.Info("applied migration", "file", m.Filename)
		}
	}

	slog.Info("migrations completed successfully")
	return nil
}

// runMigrateStatus handles the migrate status command.
func runMigrateStatus(cmd *cobra.Command, configPath string) error {
	store, err := openMigrationStore(configPath)
	if err != nil {
		return err
	}
	defer store.Close()

	statuses, err := store.MigrationStatuses(cmd.Context())
	if err != nil {
		return err
	}

	var applied, pending []string
	for _, m := range statuses {
		if m.Applied {
			applied = append(applied, m.Filename)
		} else {
			pending = append(pending, m.Filename)
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Migration Status")
	fmt.Fprintln(out, "================")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Applied migrations:")
	if len(applied) == 0 {
		fmt.Fprintln(out, "  (none)")
	} else {
		for _, name := range applied {
			fmt.Fprintf(out, "  - %s\n", name)
		}
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Pending migrations:")
	if len(pending) == 0 {
		fmt.Fprintln(out, "  (none)")
	} else {
		for _, name := range pending {
			fmt.Fprintf(out, "  - %s\n", name)
		}
	}
	fmt.Fprintln(out)

	return nil
}

// =============================================================================
// Key Command Handlers
// =============================================================================

// runKeysBootstrap handles the keys bootstrap command.
func runKeysBootstrap(cmd *cobra.Command, configPath, key string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if key == "" {
		key = cfg.Auth.BootstrapKey
	}

	store, err := postgres.New(postgres.FromAppConfig(cfg.Database))
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer store.Close()

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	cache := auth.NewCache(cfg.Auth.CacheTTL, cfg.Auth.CacheSweepInterval, nil)
	svc := auth.NewService(store, cache, logger, nil)

	result, err := svc.EnsureAdminKey(cmd.Context(), key)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch {
	case !result.Created:
		fmt.Fprintln(out, "An enabled admin key already exists; nothing to do.")
	case result.Generated:
		fmt.Fprintln(out, "Generated admin API key (shown once, store it now):")
		fmt.Fprintln(out)
		fmt.Fprintf(out, "    %s\n", result.Plaintext)
	default:
		fmt.Fprintf(out, "Installed admin key from configuration (prefix %s).\n", result.Prefix)
	}
	return nil
}
