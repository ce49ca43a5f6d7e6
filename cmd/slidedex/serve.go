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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pathology-bites/slidedex/internal/config"
	"github.com/pathology-bites/slidedex/internal/db"
	dbRedis "github.com/pathology-bites/slidedex/internal/db/redis"
	dbValkey "github.com/pathology-bites/slidedex/internal/db/valkey"
	"github.com/pathology-bites/slidedex/internal/domain"
	logpkg "github.com/pathology-bites/slidedex/internal/logger"
	"github.com/pathology-bites/slidedex/internal/metrics"
	"github.com/pathology-bites/slidedex/internal/repository/blobcache"
	"github.com/pathology-bites/slidedex/internal/repository/dataset"
	"github.com/pathology-bites/slidedex/internal/storage"
	"github.com/pathology-bites/slidedex/internal/storage/file"
	"github.com/pathology-bites/slidedex/internal/storage/r2"
	chiTransport "github.com/pathology-bites/slidedex/internal/transport/chi"
	cataloguc "github.com/pathology-bites/slidedex/internal/usecase/catalog"
	healthuc "github.com/pathology-bites/slidedex/internal/usecase/health"
	"github.com/pathology-bites/slidedex/internal/version"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long:  "Serve the virtual slide search index and detail endpoints. Configuration is read from config/<env>.yaml.",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().StringP("env", "e", "", "Config environment (default: $ENV or local)")
	rootCmd.AddCommand(cmd)
}

// blobSource is what every storage driver provides.
type blobSource interface {
	storage.BlobSource
	storage.Checker
}

func runServe(cmd *cobra.Command, _ []string) error {
	env, _ := cmd.Flags().GetString("env")
	if env == "" {
		env = config.GetEnv()
	}

	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	loc := cfg.Storage.Location()
	logger.Info("Starting slidedex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.String("dataset", loc.String()),
		zap.Bool("cache_enabled", cfg.Cache.Enabled),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Register storage metrics explicitly (no init())
	metrics.RegisterStorageMetrics()

	// Build the blob source chain: driver -> Limited -> Instrumented -> Cached
	base := newBlobSource(cfg.Storage, logger)
	var source storage.BlobSource = storage.NewInstrumented(
		storage.NewLimited(base, cfg.Storage.FetchRatePerSec, 1),
		cfg.Storage.Driver,
		metrics.StorageFetchTotal,
		metrics.StorageFetchDuration,
		metrics.StorageFetchBytes,
	)

	// Pass nil interface (not typed nil pointer!) when the cache is disabled.
	var cachePinger healthuc.CachePinger
	var blobCache *blobcache.CachedSource
	if cfg.Cache.Enabled {
		store, err := newStore(cfg.Cache)
		if err != nil {
			return fmt.Errorf("create cache store: %w", err)
		}
		defer store.Close()

		if err := store.WaitForReady(ctx, time.Duration(cfg.Cache.ReadinessTimeout)*time.Second); err != nil {
			return fmt.Errorf("cache not ready: %w", err)
		}
		logger.Info("Connected to cache",
			zap.String("driver", cfg.Cache.Driver),
			zap.Strings("addrs", cfg.Cache.Addrs),
		)

		blobCache = blobcache.New(
			source, store,
			time.Duration(cfg.Cache.TTLSec)*time.Second,
			cfg.Cache.KeyPrefix,
			metrics.BlobCacheTotal,
			logger,
		)
		source = blobCache
		cachePinger = store
	}

	repo := dataset.New(source, dataset.Options{
		Location:    loc,
		TTL:         time.Duration(cfg.Dataset.CacheTTLSec) * time.Second,
		MaxEntries:  cfg.Dataset.MaxEntries,
		LoadTimeout: time.Duration(cfg.Dataset.LoadTimeoutSec) * time.Second,
		Metrics: dataset.Metrics{
			CacheTotal:    metrics.DatasetCacheTotal,
			ParseDuration: metrics.DatasetParseDuration,
			Slides:        metrics.DatasetSlides,
		},
	}, logger)

	if fs, ok := base.(*file.Source); ok {
		go watchDataset(ctx, fs, repo, blobCache, logger)
	}

	catalogSvc := cataloguc.New(repo)
	healthSvc := healthuc.New(base, cachePinger)

	server := chiTransport.NewServer(catalogSvc, healthSvc, chiTransport.Options{
		CacheControl: chiTransport.CacheControl(cfg.HTTPCache.MaxAgeSec, cfg.HTTPCache.StaleWhileRevalidateSec),
		MaxGetIDs:    cfg.Detail.MaxGetIDs,
		MaxPostIDs:   cfg.Detail.MaxPostIDs,
	}, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      newRouter(cfg, server, logger),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
	return nil
}

func newRouter(cfg config.Config, server *chiTransport.Server, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	r.Use(chiMiddleware.Compress(cfg.HTTP.CompressionLevel))
	server.Register(r)
	return r
}

func newBlobSource(cfg config.StorageConfig, logger *zap.Logger) blobSource {
	if cfg.Driver == config.StorageFile {
		return file.NewSource(cfg.Dir, logger)
	}
	return r2.NewSource(r2.Config{
		AccountID:       cfg.AccountID,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		Endpoint:        cfg.Endpoint,
		HTTPClient:      &http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second},
	})
}

func newStore(cfg config.CacheConfig) (db.Store, error) {
	switch cfg.Driver {
	case config.CacheRedis:
		return dbRedis.NewStore(dbRedis.Config{ //nolint:wrapcheck // composition root
			Addrs:         cfg.Addrs,
			Password:      cfg.Password,
			LocalCacheTTL: time.Duration(cfg.LocalCacheTTLSec) * time.Second,
		})
	default:
		return dbValkey.NewStore(dbValkey.Config{ //nolint:wrapcheck // composition root
			Addrs:      cfg.Addrs,
			Password:   cfg.Password,
			Standalone: len(cfg.Addrs) == 1,
		})
	}
}

// watchDataset drops cached copies of the dataset whenever its file changes,
// so edits under storage.dir show up on the next request.
func watchDataset(
	ctx context.Context,
	fs *file.Source,
	repo *dataset.Repository,
	blobCache *blobcache.CachedSource,
	logger *zap.Logger,
) {
	err := fs.Watch(ctx, repo.Location(), func(loc domain.Location) {
		if blobCache != nil {
			if err := blobCache.Invalidate(ctx, loc); err != nil {
				logger.Warn("Failed to invalidate blob cache", zap.String("location", loc.String()), zap.Error(err))
			}
		}
		repo.Invalidate()
	})
	if err != nil {
		logger.Error("Dataset watcher stopped", zap.Error(err))
	}
}
