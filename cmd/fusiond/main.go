package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LdDl/mot-fusion/internal/adapters/http/api"
	"github.com/LdDl/mot-fusion/internal/adapters/snapshot"
	"github.com/LdDl/mot-fusion/internal/adapters/stream"
	"github.com/LdDl/mot-fusion/internal/config"
	"github.com/LdDl/mot-fusion/internal/service"
	"github.com/LdDl/mot-fusion/pkg/logger"
	"github.com/LdDl/mot-fusion/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		log.Error(ctx, "failed to load config", logger.Error(err))
		os.Exit(1)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	metricsManager := metrics.NewManager()

	var publishers []service.Publisher
	var hub *stream.Hub
	if cfg.Stream.Enabled {
		hub = stream.NewHub(
			stream.WithClientGauge(metricsManager),
			stream.WithLogger(logger.Named("stream")),
		)
		go hub.Run(ctx)
		publishers = append(publishers, hub)
	}
	if cfg.Redis.Enabled {
		redisPublisher := snapshot.NewPublisher(snapshot.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			Timeout:  cfg.Redis.Timeout,
		})
		defer func() {
			_ = redisPublisher.Close()
		}()
		if err := redisPublisher.Ping(ctx); err != nil {
			// Publishing retries on every snapshot, so a cold Redis is not fatal
			log.Warn(ctx, "redis unreachable at startup", logger.String("addr", cfg.Redis.Addr), logger.Error(err))
		}
		publishers = append(publishers, redisPublisher)
	}

	svc := service.New(
		service.WithFusionConfig(cfg.FusionEngineConfig()),
		service.WithTrackerConfig(cfg.TrackerEngineConfig()),
		service.WithPublishers(publishers...),
		service.WithMetrics(metricsManager),
		service.WithLogger(logger.Named("service")),
	)

	serverOpts := []api.ServerOption{
		api.WithMetricsHandler(metricsManager.Handler()),
		api.WithRecorder(metricsManager),
		api.WithLogger(logger.Named("api")),
	}
	if hub != nil {
		serverOpts = append(serverOpts, api.WithStreamHandler(stream.NewHandler(hub)))
	}

	mux := http.NewServeMux()
	api.NewServer(svc, serverOpts...).Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("estimator", cfg.Fusion.Estimator),
			logger.String("assignment", cfg.Tracker.Algorithm),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
}
