package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/optionscout/internal/archive"
	"github.com/aristath/optionscout/internal/cache"
	"github.com/aristath/optionscout/internal/config"
	"github.com/aristath/optionscout/internal/database"
	"github.com/aristath/optionscout/internal/engine"
	"github.com/aristath/optionscout/internal/scan"
	scanhandlers "github.com/aristath/optionscout/internal/scan/handlers"
	"github.com/aristath/optionscout/internal/scheduler"
	"github.com/aristath/optionscout/internal/server"
	"github.com/aristath/optionscout/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New(logger.Config{Level: "info"})
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting OptionScout")

	// Snapshot store
	db, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "snapshots.db"),
		Profile: database.ProfileCache,
		Name:    "snapshots",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open snapshot database")
	}
	defer db.Close()

	repo := cache.NewSnapshotRepository(db.Conn(), log)
	if err := repo.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate snapshot database")
	}

	// Scan pipeline
	invoker := engine.NewInvoker(log)
	svc := scan.NewService(repo, invoker, scan.Config{
		EnginePath:       cfg.EnginePath,
		EngineArgs:       cfg.EngineArgs,
		EngineModulePath: cfg.EngineModulePath,
		EngineTimeout:    cfg.EngineTimeout,
		Symbols:          cfg.SymbolUniverse,
		FallbackDataPath: cfg.FallbackDataPath,
	}, log)

	// Optional snapshot archiver
	var archiver cache.Archiver
	if cfg.Archive.Enabled() {
		a, err := archive.New(context.Background(), archive.Config{
			Bucket:          cfg.Archive.Bucket,
			Region:          cfg.Archive.Region,
			Endpoint:        cfg.Archive.Endpoint,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
			KeyPrefix:       cfg.Archive.KeyPrefix,
			PathStyle:       cfg.Archive.PathStyle,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize snapshot archiver")
		}
		archiver = a
	}

	// Background snapshot refresh
	sched := scheduler.New(log)
	if cfg.CacheRefreshEnabled {
		// The budget covers both filter modes plus storage.
		jobTimeout := cfg.EngineTimeout + 30*time.Second
		job := cache.NewRefreshJob(svc, repo, archiver, jobTimeout, log)
		if err := sched.AddJob(cfg.CacheRefreshSchedule, job); err != nil {
			log.Fatal().Err(err).Msg("Failed to register cache refresh job")
		}
	}
	sched.Start()
	defer sched.Stop()

	// HTTP server
	srv := server.New(server.Config{
		Port:        cfg.Port,
		Log:         log,
		ScanHandler: scanhandlers.New(svc, repo, log),
		DevMode:     cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
