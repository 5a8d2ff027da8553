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

	"go.uber.org/zap"

	"github.com/kailas-cloud/rerank/internal/config"
	dbValkey "github.com/kailas-cloud/rerank/internal/db/valkey"
	logpkg "github.com/kailas-cloud/rerank/internal/logger"
	"github.com/kailas-cloud/rerank/internal/metrics"
	"github.com/kailas-cloud/rerank/internal/tracing"
	chiTransport "github.com/kailas-cloud/rerank/internal/transport/chi"
	healthuc "github.com/kailas-cloud/rerank/internal/usecase/health"
	rankuc "github.com/kailas-cloud/rerank/internal/usecase/rank"
	"github.com/kailas-cloud/rerank/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting rerank API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Int("pipeline_steps", len(cfg.Pipeline.Steps)),
	)

	// Explicit registration (no init())
	metrics.RegisterRankMetrics()
	metrics.RegisterRemoteMetrics()
	metrics.RegisterHTTPMetrics()

	tp, err := tracing.NewProvider(tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  "rerank",
		Version:      version.Version,
		Environment:  env,
		OTLPEndpoint: cfg.Tracing.Endpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
		Insecure:     cfg.Tracing.Insecure,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to init tracing", zap.Error(err))
	}

	ctx := context.Background()

	// Score cache is optional: no addrs, no cache.
	var cache *dbValkey.Store
	if cfg.Cache.Enabled() {
		cache, err = dbValkey.NewStore(dbValkey.Config{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create cache store", zap.Error(err))
		}
		defer cache.Close()

		if err := cache.WaitForReady(ctx, time.Duration(cfg.Cache.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Cache not ready", zap.Error(err))
		}
		logger.Info("Connected to score cache", zap.Strings("addrs", cfg.Cache.Addrs))
	}

	remotes := buildRemotes(cfg, cache, logger)

	pipeline, err := rankuc.Build(cfg.Pipeline, rankuc.Collaborators{
		Scorers:       remotes.scorers,
		CachedScorers: remotes.cached,
		Embedder:      remotes.embedder,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal("Failed to build pipeline", zap.Error(err))
	}
	logger.Info("Pipeline ready", zap.Strings("steps", pipeline.Steps()))

	// Pass a nil interface, not a typed nil pointer, when the cache is off.
	var cachePinger healthuc.CachePinger
	if cache != nil {
		cachePinger = cache
	}
	healthSvc := healthuc.New(cachePinger, remotes.checkers)

	server := chiTransport.NewServer(pipeline, healthSvc, logger, chiTransport.Options{
		MaxBodyBytes:  cfg.HTTP.MaxBodyBytes,
		MaxCandidates: cfg.HTTP.MaxCandidates,
	})
	handler := chiTransport.NewRouter(server, chiTransport.RouterConfig{
		APIKeys: cfg.Auth.APIKeys,
		Tracing: tp.IsEnabled(),
	})

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
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
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error flushing traces", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}
