package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"crystalgate/internal/api/v1/router"
	"crystalgate/internal/config"
	"crystalgate/internal/logger"
	"crystalgate/internal/metrics"
	"crystalgate/internal/pubsub"
	"crystalgate/internal/repository"
	"crystalgate/internal/repository/memstore"
	"crystalgate/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	// 1. Load configuration
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		boot := logger.New("development", "info")
		boot.Fatal().Err(err).Msg("Error loading config")
	}
	log := logger.New(cfg.Environment, cfg.LogLevel)
	if envErr != nil {
		log.Warn().Msg("Warning: no .env file found")
	}

	limits, err := config.LoadLimits(cfg.QuotaLimitsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading quota limits")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Stores
	stores, closeStores, err := openStores(ctx, cfg, limits, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open stores")
	}
	defer closeStores()

	// 3. External clients
	analyzer, err := newAnalyzer(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create AI analyzer")
	}

	publisher, closePublisher, err := pubsub.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create alert publisher")
	}
	defer closePublisher()

	var images service.ImageStore
	if cfg.S3Bucket != "" {
		s3Client, err := service.NewS3Client(ctx, cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load S3 config")
		}
		images = service.NewS3ImageStore(s3Client, cfg.S3Bucket)
		log.Info().Str("bucket", cfg.S3Bucket).Msg("Image archive enabled")
	}

	m := metrics.New()
	handler := router.New(cfg, limits, router.Dependencies{
		Stores:    stores,
		Analyzer:  analyzer,
		Images:    images,
		Publisher: publisher,
		Metrics:   m,
	}, log)

	// 4. Servers
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.AITimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	metricsSrv := m.Server(cfg.MetricsPort)

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range []*http.Server{srv, metricsSrv} {
		g.Go(func() error {
			log.Info().Str("addr", s.Addr).Msg("Server starting")
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	// 5. Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutdown signal received, exiting...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return errors.Join(srv.Shutdown(shutdownCtx), metricsSrv.Shutdown(shutdownCtx))
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
		return
	}
	log.Info().Msg("Server shut down gracefully")
}

func openStores(ctx context.Context, cfg *config.Config, limits *config.Limits, log zerolog.Logger) (repository.Stores, func(), error) {
	if cfg.StoreDriver == "memory" {
		log.Warn().Msg("Using in-memory stores; data is lost on restart")
		return memstore.NewStores(limits.Credits.SignupGrant), func() {}, nil
	}

	if cfg.AutoMigrate {
		if err := repository.RunMigrations(ctx, cfg.DBConnectionString, "up"); err != nil {
			return repository.Stores{}, nil, err
		}
	}
	pool, err := repository.NewPool(ctx, cfg.DBConnectionString, cfg.IsDevelopment(), log)
	if err != nil {
		return repository.Stores{}, nil, err
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		pool.Close()
		return repository.Stores{}, nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		pool.Close()
		return repository.Stores{}, nil, err
	}
	log.Info().Msg("Redis connection successful")

	closeFn := func() {
		_ = rdb.Close()
		pool.Close()
	}
	return repository.NewStores(pool, rdb, limits.Credits.SignupGrant), closeFn, nil
}

// newAnalyzer reads the Gemini key from the environment, or from Secret Manager when only the
// secret name is configured.
func newAnalyzer(ctx context.Context, cfg *config.Config, log zerolog.Logger) (service.Analyzer, error) {
	key := cfg.GeminiAPIKey
	if key == "" && cfg.GeminiAPIKeySecret != "" {
		sm, err := service.NewSecretManagerService(ctx, cfg.GCPProjectID)
		if err != nil {
			return nil, err
		}
		defer sm.Close()
		key, err = sm.GetSecret(ctx, cfg.GeminiAPIKeySecret)
		if err != nil {
			return nil, err
		}
		log.Info().Str("secret", cfg.GeminiAPIKeySecret).Msg("Gemini API key loaded from Secret Manager")
	}
	return service.NewGeminiAnalyzer(ctx, key, log)
}
