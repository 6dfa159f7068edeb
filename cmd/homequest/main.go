package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dukerupert/homequest/internal/auth"
	"github.com/dukerupert/homequest/internal/config"
	"github.com/dukerupert/homequest/internal/database"
	"github.com/dukerupert/homequest/internal/engine"
	"github.com/dukerupert/homequest/internal/logging"
	"github.com/dukerupert/homequest/internal/metrics"
	"github.com/dukerupert/homequest/internal/proof"
	"github.com/dukerupert/homequest/internal/server"
	ws "github.com/dukerupert/homequest/internal/websocket"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "homequest: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	proofs, err := openProofStore(cfg, logger)
	if err != nil {
		return err
	}

	hub := ws.NewHub(logger.With("component", "websocket"))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	metrics.WatchClients(reg, hub.ClientCount)

	tokens, err := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}
	if cfg.PasswordPepper == "" {
		logger.Warn("HOMEQUEST_PASSWORD_PEPPER is not set; password hashes are unpeppered")
	}

	e := engine.New(db, proofs, logger, engine.WithNotifier(hub), engine.WithMetrics(m))
	srv := server.New(db, e, hub, auth.NewHasher(cfg.PasswordPepper), tokens, m, reg, server.Config{
		AppKey:        cfg.AppKey,
		ProofMaxBytes: cfg.ProofMaxBytes,
		RateLimit:     cfg.RateLimit,
		RateBurst:     cfg.RateBurst,
		TrustProxy:    cfg.TrustProxy,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.RateLimiter().Cleanup(3 * time.Minute)
			case <-ctx.Done():
				return
			}
		}
	}()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// openProofStore picks S3 when a bucket is configured and the local proof
// directory otherwise.
func openProofStore(cfg config.Config, logger *slog.Logger) (proof.Store, error) {
	if cfg.S3.Enabled() {
		logger.Info("proof storage", "backend", "s3", "bucket", cfg.S3.Bucket)
		return proof.NewS3Store(proof.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Prefix:    cfg.S3.Prefix,
		}), nil
	}
	ds, err := proof.NewDiskStore(cfg.ProofDir)
	if err != nil {
		return nil, fmt.Errorf("open proof dir: %w", err)
	}
	logger.Info("proof storage", "backend", "disk", "dir", cfg.ProofDir)
	return ds, nil
}
