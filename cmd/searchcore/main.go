package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/searchcore/internal/config"
	"github.com/kailas-cloud/searchcore/internal/db"
	"github.com/kailas-cloud/searchcore/internal/db/memory"
	dbRedis "github.com/kailas-cloud/searchcore/internal/db/redis"
	"github.com/kailas-cloud/searchcore/internal/domain/settings"
	logpkg "github.com/kailas-cloud/searchcore/internal/logger"
	"github.com/kailas-cloud/searchcore/internal/metrics"
	"github.com/kailas-cloud/searchcore/internal/repository/index"
	keyrepo "github.com/kailas-cloud/searchcore/internal/repository/key"
	taskrepo "github.com/kailas-cloud/searchcore/internal/repository/task"
	"github.com/kailas-cloud/searchcore/internal/storage"
	chiTransport "github.com/kailas-cloud/searchcore/internal/transport/chi"
	dumpuc "github.com/kailas-cloud/searchcore/internal/usecase/dump"
	healthuc "github.com/kailas-cloud/searchcore/internal/usecase/health"
	taskuc "github.com/kailas-cloud/searchcore/internal/usecase/task"
	"github.com/kailas-cloud/searchcore/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, logpkg.Options{
		Level: cfg.Logging.Level,
		File: logpkg.FileOptions{
			Path:       cfg.Logging.File.Path,
			MaxSizeMB:  cfg.Logging.File.MaxSizeMB,
			MaxBackups: cfg.Logging.File.MaxBackups,
			MaxAgeDays: cfg.Logging.File.MaxAgeDays,
			Compress:   cfg.Logging.File.Compress,
		},
	})
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting searchcore",
		zap.String("build", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("dump_backend", cfg.Dump.Backend),
	)

	ctx := context.Background()
	store := openStore(ctx, cfg.Database, logger)
	defer store.Close()

	// Register metrics explicitly (no init())
	metrics.RegisterTaskMetrics()
	metrics.RegisterDumpMetrics()

	features := settings.AllFeatures()
	if len(cfg.Features) > 0 {
		features = settings.NewFeatures(cfg.Features...)
	}

	instance, err := instanceUID(ctx, store, cfg.Database.KeyPrefix)
	if err != nil {
		logger.Fatal("Failed to load instance uid", zap.Error(err))
	}

	dumps, err := openDumpStorage(ctx, cfg.Dump)
	if err != nil {
		logger.Fatal("Failed to open dump storage", zap.Error(err))
	}

	// Repositories
	prefix := cfg.Database.KeyPrefix
	stagingPrefix := prefix + "staging:"
	liveTasks := taskrepo.New(store, prefix)
	liveKeys := keyrepo.New(store, prefix)
	engine := index.NewEngine()

	// Use case services
	taskSvc := taskuc.New(liveTasks, engine, features, logger)
	dumpSvc := dumpuc.New(
		dumpuc.Stores{Tasks: liveTasks, Keys: liveKeys},
		dumpuc.Stores{Tasks: taskrepo.New(store, stagingPrefix), Keys: keyrepo.New(store, stagingPrefix)},
		engine, dumps, taskSvc, features, instance, logger,
	).WithChunkSize(cfg.Dump.ChunkSize)
	healthSvc := healthuc.New(store, dumps, logger)

	if cfg.Dump.ImportPath != "" {
		meta, err := dumpSvc.ImportFrom(ctx, cfg.Dump.ImportPath)
		if err != nil {
			logger.Fatal("Failed to import dump", zap.String("path", cfg.Dump.ImportPath), zap.Error(err))
		}
		logger.Info("Imported dump at startup",
			zap.String("path", cfg.Dump.ImportPath),
			zap.Int("dump_version", meta.DumpVersion),
		)
	}

	server := chiTransport.NewServer(taskSvc, dumpSvc, healthSvc, logger)
	auth := chiTransport.NewAuthenticator(cfg.Auth.MasterKey, liveKeys)
	if cfg.Auth.MasterKey == "" {
		logger.Warn("No master key configured, the admin API is unprotected")
	}

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      chiTransport.NewRouter(server, auth, logger),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// openStore creates the task store for the configured driver and waits until it answers.
func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) db.Store {
	var (
		store db.Store
		err   error
	)
	switch cfg.Driver {
	case "memory":
		store = memory.NewStore()
	case "redis", "valkey":
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Addrs,
			Password: cfg.Password,
		})
	default:
		logger.Fatal("Unknown database driver", zap.String("driver", cfg.Driver))
	}
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}

	if err := store.WaitForReady(ctx, time.Duration(cfg.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database", zap.String("driver", cfg.Driver))
	return store
}

func openDumpStorage(ctx context.Context, cfg config.DumpConfig) (storage.Storage, error) {
	if cfg.Backend == "s3" {
		b, err := storage.NewBucket(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Prefix:          cfg.S3.Prefix,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
			PartSizeMB:      int64(cfg.S3.PartSizeMB),
		})
		if err != nil {
			return nil, fmt.Errorf("open s3 bucket: %w", err)
		}
		return b, nil
	}
	d, err := storage.NewDir(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("open dump dir: %w", err)
	}
	return d, nil
}

// instanceUID returns the persistent identifier of this deployment, creating it on
// first start.
func instanceUID(ctx context.Context, store db.KVStore, prefix string) (uuid.UUID, error) {
	key := prefix + "instance-uid"
	raw, err := store.Get(ctx, key)
	if err == nil {
		id, err := uuid.ParseBytes(raw)
		if err != nil {
			return uuid.Nil, fmt.Errorf("parse instance uid: %w", err)
		}
		return id, nil
	}
	if !errors.Is(err, db.ErrKeyNotFound) {
		return uuid.Nil, fmt.Errorf("read instance uid: %w", err)
	}
	id := uuid.New()
	if err := store.Set(ctx, key, []byte(id.String())); err != nil {
		return uuid.Nil, fmt.Errorf("store instance uid: %w", err)
	}
	return id, nil
}
