package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"chronicle/outline/internal/app"
	"chronicle/outline/internal/cache"
	"chronicle/outline/internal/config"
	"chronicle/outline/internal/export"
	"chronicle/outline/internal/gitrepo"
	"chronicle/outline/internal/search"
	"chronicle/outline/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("outline api stopped", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL, store.PoolOptions{MaxOpenConns: cfg.DBMaxOpen, MaxIdleConns: cfg.DBMaxIdle})
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		logger.Info("migrations applied", "files", applied)
	}

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		return err
	}

	markerCache, err := cache.NewRedisMarkerCache(cfg.RedisURL, cfg.MarkerCacheTTL)
	if err != nil {
		return err
	}
	defer markerCache.Close()

	pgfts := search.NewPgFTS(db)
	var searchService *search.Service
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger.With("component", "meili"))
		defer meiliClient.Close()
		searchService = search.NewService(meiliClient, pgfts, logger.With("component", "search"))
	} else {
		searchService = search.NewService(nil, pgfts, logger.With("component", "search"))
	}
	defer searchService.Wait()

	var archive export.Archive
	if cfg.MinioEndpoint != "" {
		minioArchive, err := export.NewMinioArchive(ctx, export.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return err
		}
		archive = minioArchive
	} else {
		logger.Info("export archive disabled, MINIO_ENDPOINT is empty")
	}

	service := app.NewService(cfg, app.Deps{
		Store:       store.NewPostgresStore(db),
		Git:         gitrepo.New(cfg.ReposDir),
		Cache:       markerCache,
		Revocations: cache.NewRedisRevocations(markerCache.Client()),
		Search:      searchService,
		Exports:     export.NewService(archive, logger.With("component", "export")),
	}, logger)

	go searchService.ReindexAllFromPG(context.Background(), pgfts)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("outline api listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
