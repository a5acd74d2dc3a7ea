package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/cache"
	"github.com/kailas-cloud/ragdex/internal/config"
	"github.com/kailas-cloud/ragdex/internal/db"
	dbRedis "github.com/kailas-cloud/ragdex/internal/db/redis"
	"github.com/kailas-cloud/ragdex/internal/domain"
	logpkg "github.com/kailas-cloud/ragdex/internal/logger"
	"github.com/kailas-cloud/ragdex/internal/metrics"
	"github.com/kailas-cloud/ragdex/internal/ratelimit"
	"github.com/kailas-cloud/ragdex/internal/resilience"
	"github.com/kailas-cloud/ragdex/internal/search"
	"github.com/kailas-cloud/ragdex/internal/search/ann"
	"github.com/kailas-cloud/ragdex/internal/store"
	chiTransport "github.com/kailas-cloud/ragdex/internal/transport/chi"
	openaiTransport "github.com/kailas-cloud/ragdex/internal/transport/openai"
	healthuc "github.com/kailas-cloud/ragdex/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/ragdex/internal/usecase/ingest"
	queryuc "github.com/kailas-cloud/ragdex/internal/usecase/query"
	"github.com/kailas-cloud/ragdex/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting ragdex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	// Shared key-value store is optional: without it the embedding cache and
	// rate limiter run on their local tiers only.
	var kvStore db.Store
	if len(cfg.Database.Addrs) > 0 {
		kvStore, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Password: cfg.Database.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create shared store", zap.Error(err))
		}
		defer kvStore.Close()

		ctx := context.Background()
		readiness := time.Duration(cfg.Database.ReadinessTimeout) * time.Second
		if err := kvStore.WaitForReady(ctx, readiness); err != nil {
			logger.Fatal("Shared store not ready", zap.Error(err))
		}
		logger.Info("Connected to shared store")
	} else {
		logger.Info("No shared store configured, running local-only")
	}

	// Register metrics explicitly (no init())
	metrics.RegisterCoreMetrics()

	// Embedding provider behind the two-tier cache
	embProvider := openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Logger:     logger,
	})
	var remoteKV db.KVStore
	if kvStore != nil {
		remoteKV = kvStore
	}
	embCache := cache.New(remoteKV, cfg.Cache.LocalMaxEntries,
		time.Duration(cfg.Cache.RemoteTTLSec)*time.Second, logger)
	embedder := cache.NewCachedEmbedder(embProvider, embCache)
	logger.Info("Embedder created",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	// Generation backend (optional)
	var generator queryuc.Generator
	if cfg.Generation.Model != "" {
		generator = openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
			APIKey:  cfg.Generation.APIKey,
			BaseURL: cfg.Generation.BaseURL,
			Model:   cfg.Generation.Model,
			Logger:  logger,
		})
	}

	// Collection storage and search engine
	persist, err := store.NewFS(cfg.Storage.DataDir)
	if err != nil {
		logger.Fatal("Failed to create data dir", zap.Error(err))
	}
	engine := search.NewEngine(cfg.Search.ParallelThreshold, cfg.Search.BatchSize, logger)
	registry := store.NewRegistry(persist, engine, store.ANNConfig{
		Enabled:      cfg.Search.ANNEnabled,
		MinDocuments: cfg.Search.ANNMinDocuments,
		Graph: ann.Config{
			M:        cfg.Search.HNSWM,
			EFSearch: cfg.Search.HNSWEFSearch,
		},
	}, logger)

	// Resilience layer around the generation backend
	queue := resilience.NewRequestQueue(cfg.Resilience.QueueMaxConcurrent, logger)
	breaker := resilience.NewCircuitBreaker(resilience.BreakerConfig{
		ErrorThresholdPct: cfg.Resilience.BreakerErrorThresholdPct,
		ResetTimeout:      time.Duration(cfg.Resilience.BreakerResetTimeoutSec) * time.Second,
		CallTimeout:       time.Duration(cfg.Resilience.BreakerCallTimeoutSec) * time.Second,
		MinCalls:          cfg.Resilience.BreakerMinCalls,
	}, logger)
	retry := resilience.Retry{
		BaseDelay:  cfg.RetryBaseDelay(),
		MaxRetries: cfg.Resilience.RetryMaxRetries,
	}

	// Rate limiter: distributed over the shared store, local fallback
	var counter db.Counter
	if kvStore != nil {
		counter = kvStore
	}
	limiter := ratelimit.New(counter, cfg.RateLimitWindow(), cfg.RateLimit.MaxRequests, logger)
	defer limiter.Close()

	// Use case services
	ingestSvc := ingestuc.New(embedder, registry, logger)
	querySvc := queryuc.New(embedder, registry, generator, limiter, queue, breaker, retry, logger)

	var pinger healthuc.Pinger
	if kvStore != nil {
		pinger = kvStore
	}
	healthSvc := healthuc.New(pinger, newEmbeddingHealthChecker(embProvider), logger)

	// Chi router
	server := chiTransport.NewServer(ingestSvc, querySvc, registry, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	// Pending generation requests are rejected, in-flight ones drain.
	queue.Clear()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// embeddingHealthChecker adapts the embedding provider to health.Checker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
