package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"

	"github.com/mtlprog/folio/internal/api"
	"github.com/mtlprog/folio/internal/app"
	"github.com/mtlprog/folio/internal/cache"
	"github.com/mtlprog/folio/internal/config"
	"github.com/mtlprog/folio/internal/database"
	"github.com/mtlprog/folio/internal/export"
	"github.com/mtlprog/folio/internal/external"
	"github.com/mtlprog/folio/internal/realtime"
	"github.com/mtlprog/folio/internal/remote"
	"github.com/mtlprog/folio/internal/snapshot"
	"github.com/mtlprog/folio/internal/worker"
)

const shutdownTimeout = 30 * time.Second

// connect opens the pool and applies pending migrations.
func connect(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	migrationsSub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating migrations sub-fs: %w", err)
	}
	if err := database.RunMigrations(ctx, pool, migrationsSub); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return pool, nil
}

// openApp builds the core on top of PostgreSQL and runs the first fetch. With live set
// the stores also follow the change notification channels.
func openApp(ctx context.Context, cfg config.Config, live bool) (*app.App, *pgxpool.Pool, func(), error) {
	pool, err := connect(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	holdings := remote.NewHoldingRepository(pool, cfg.OwnerID)
	targets := remote.NewTargetRepository(pool, cfg.OwnerID)
	deps := app.Deps{
		OwnerID:         cfg.OwnerID,
		HoldingRemote:   holdings,
		TargetRemote:    targets,
		Cache:           cache.NewFileCache(cfg.CacheDir, cfg.CacheMaxAge),
		Options:         cfg.Rebalance,
		WeightTolerance: cfg.WeightTolerance,
		ExportTargetID:  cfg.ExportTargetID,
	}
	if live {
		deps.HoldingFeed = realtime.NewListener(pool, remote.HoldingsChannel, remote.DecodeHoldingRow).
			WithLoader(holdings.Get)
		deps.TargetFeed = realtime.NewListener(pool, remote.TargetsChannel, remote.DecodeTargetRow).
			WithLoader(targets.Get)
	}
	deps.Prices = external.NewPriceCache(external.NewPgQuoteRepository(pool), external.DefaultPriceCacheTTL)

	core := app.New(deps)
	cleanup := func() {
		core.Close()
		pool.Close()
	}
	if err := core.Start(ctx); err != nil {
		if !live {
			cleanup()
			return nil, nil, nil, err
		}
		// The server keeps running on cached data; the refresh worker retries.
		slog.Warn("initial fetch failed, serving cached data", "error", err)
	}
	return core, pool, cleanup, nil
}

func runServe(c *cli.Context) error {
	ctx := c.Context
	cfg := config.Load()

	core, pool, cleanup, err := openApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer cleanup()

	snapshots := snapshot.NewService(core, snapshot.NewPgRepository(pool), cfg.OwnerID, cfg.ExportTargetID, cfg.Rebalance)
	snapshotWorker := worker.NewSnapshotWorker(snapshots, cfg.SnapshotInterval)
	if cfg.SnapshotSchedule != "" {
		if snapshotWorker, err = worker.NewScheduledSnapshotWorker(snapshots, cfg.SnapshotSchedule); err != nil {
			return err
		}
	}
	go snapshotWorker.Run(ctx)

	refreshWorker := worker.NewRefreshWorker(cfg.RefreshInterval,
		worker.Source{Name: "holdings", Fetcher: core.Holdings},
		worker.Source{Name: "targets", Fetcher: core.Targets},
	)
	go refreshWorker.Run(ctx)

	if cfg.QuotesAPIKey != "" {
		client := quoteClient(cfg)
		quoteWorker := worker.NewRefreshWorker(cfg.QuoteWorkerInterval,
			worker.Source{Name: "quotes", Fetcher: external.NewService(client, external.NewPgQuoteRepository(pool), core.Holdings, core.Targets)},
		)
		go quoteWorker.Run(ctx)
	} else {
		slog.Info("QUOTES_API_KEY not set, holding prices are managed by hand")
	}

	if cfg.ExportEnabled() {
		var writers []export.Writer
		if cfg.ExportXLSXPath != "" {
			writers = append(writers, export.NewXLSXWriter(cfg.ExportXLSXPath))
		}
		if cfg.SheetsSpreadsheetID != "" && cfg.GoogleCredentialsJSON != "" {
			sw, err := sheetsWriter(ctx, cfg)
			if err != nil {
				slog.Error("Sheets export disabled", "error", err)
			} else {
				writers = append(writers, sw)
			}
		}
		if len(writers) > 0 {
			reportWorker := worker.NewReportWorker(core, cfg.ExportInterval, export.NewService(writers...))
			go reportWorker.Run(ctx)
		}
	}

	if cfg.AdminAPIKey == "" {
		slog.Warn("ADMIN_API_KEY not set, mutating endpoints are unprotected")
	}

	srv := api.NewServer(cfg.HTTPPort, core, api.ServerOptions{
		AdminAPIKey:    cfg.AdminAPIKey,
		AllowedOrigins: cfg.AllowedOrigins,
		Snapshots:      snapshots,
	})

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("HTTP server: %w", err)
		}
	}
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("Shutdown complete")
	return nil
}

func quoteClient(cfg config.Config) *external.EODHDClient {
	return external.NewEODHDClient(cfg.QuotesURL, cfg.QuotesAPIKey, cfg.QuotesExchange, cfg.QuotesRetryDelay, cfg.QuotesRetryMax,
		external.WithRateLimit(cfg.QuotesRateLimit))
}
