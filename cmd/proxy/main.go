package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"caching-proxy/internal/cache"
	"caching-proxy/internal/config"
	"caching-proxy/internal/handlers"
	"caching-proxy/internal/httpserver"
	"caching-proxy/internal/metrics"
	"caching-proxy/internal/tlsconfig"
	"caching-proxy/internal/upstream"
	"caching-proxy/pkg/logging"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("proxy exited with error: %v", err)
	}
}

func run() error {
	// ----- Config -----
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		return err
	}

	// ----- Logger -----
	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()
	logging.SetDefault(logger)

	// ----- Metrics -----
	metrics.Register()

	logger.Info("loaded config",
		zap.String("addr", cfg.Addr()),
		zap.Int64("ttl_seconds", cfg.TTLSeconds),
		zap.Int("chunk_size", cfg.ChunkSize),
		zap.Duration("sweep_interval", cfg.SweepInterval),
		zap.String("admin_addr", cfg.AdminAddr),
		zap.Duration("upstream_timeout", cfg.UpstreamTimeout),
		zap.Int("upstream_max_retries", cfg.MaxRetries),
	)

	// ----- TLS -----
	tlsCfg, err := tlsconfig.Load(cfg.TLSCertFile, cfg.TLSKeyFile)
	if err != nil {
		logger.Error("tls setup failed", zap.Error(err))
		return err
	}

	// ----- Response cache -----
	store := cache.NewTTLStore[cache.Key, []byte](cfg.TTLSeconds)
	responseCache := cache.NewShared(store)
	responseCache.StartSweeper(cfg.SweepInterval, logger)
	defer responseCache.Close()

	// ----- Upstream client -----
	upstreamClient := upstream.NewClient(upstream.Config{
		Timeout:    cfg.UpstreamTimeout,
		MaxRetries: cfg.MaxRetries,
	}, logger)
	defer upstreamClient.Close()

	// ----- Handler + router -----
	forward := handlers.NewForwardHandler(responseCache, upstreamClient, cfg.ChunkSize)

	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, forward)

	// No write timeout: a miss may wait behind other fetches for the cache lock.
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          zap.NewStdLog(logger.Named("http")),
	}

	serverErr := make(chan error, 2)

	logger.Info("starting proxy", zap.String("addr", srv.Addr))
	go func() {
		if err := srv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var admin *http.Server
	if cfg.AdminAddr != "" {
		ar := chi.NewRouter()
		httpserver.SetupAdminRouter(ar)
		admin = &http.Server{
			Addr:              cfg.AdminAddr,
			Handler:           ar,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		logger.Info("starting admin listener", zap.String("addr", admin.Addr))
		go func() {
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	// ----- Graceful shutdown -----
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-stop:
		logger.Info("shutdown signal received")
	case runErr = <-serverErr:
		logger.Error("server error", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		runErr = errors.Join(runErr, err)
	}
	if admin != nil {
		if err := admin.Shutdown(shutdownCtx); err != nil {
			logger.Error("admin shutdown error", zap.Error(err))
			runErr = errors.Join(runErr, err)
		}
	}

	logger.Info("server shutdown complete")
	return runErr
}
