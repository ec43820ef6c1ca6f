// Package main is the entry point for the gateway binary: the HTTP server
// hosting the login endpoint, the broker proxy callbacks, and the sticky
// channel router.
//
// Startup sequence:
//  1. Parse CLI flags / environment variables
//  2. Build logger
//  3. Connect to the routing store (Redis)
//  4. Build user registry, token issuers, router
//  5. Serve HTTP until SIGINT/SIGTERM, then graceful shutdown
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

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/realtime-ai/realtime-message-gateway/internal/auth"
	"github.com/realtime-ai/realtime-message-gateway/internal/gateway"
	"github.com/realtime-ai/realtime-message-gateway/internal/routing"
	"github.com/realtime-ai/realtime-message-gateway/internal/store"
	"github.com/realtime-ai/realtime-message-gateway/internal/user"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type config struct {
	httpAddr      string
	redisURL      string
	sessionSecret string
	brokerSecret  string
	allowedOrigin string
	tokenTTL      time.Duration
	cacheTTL      time.Duration
	workerTimeout time.Duration
	logLevel      string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}

	root := &cobra.Command{
		Use:   "gateway",
		Short: "Realtime message gateway - broker callbacks and channel routing",
		Long: `The gateway is the policy authority of the message fan-out system.
It mints login tokens, answers the realtime broker's connect/subscribe/publish
callbacks, and routes every published message onto the durable stream of the
worker that owns its channel.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringVar(&cfg.httpAddr, "http-addr", envOrDefault("RMG_HTTP_ADDR", ":8000"), "HTTP listen address")
	root.PersistentFlags().StringVar(&cfg.redisURL, "redis-url", envOrDefault("RMG_REDIS_URL", "redis://localhost:6379"), "Routing store (Redis) URL")
	root.PersistentFlags().StringVar(&cfg.sessionSecret, "session-secret", envOrDefault("RMG_SESSION_SECRET", ""), "HMAC secret for session tokens (required)")
	root.PersistentFlags().StringVar(&cfg.brokerSecret, "broker-secret", envOrDefault("RMG_BROKER_SECRET", ""), "HMAC secret for broker tokens (required, independent of session secret)")
	root.PersistentFlags().StringVar(&cfg.allowedOrigin, "allowed-origin", envOrDefault("RMG_ALLOWED_ORIGIN", ""), "Frontend origin allowed by CORS (empty disables CORS handling)")
	root.PersistentFlags().DurationVar(&cfg.tokenTTL, "token-ttl", envDurationOrDefault("RMG_TOKEN_TTL", time.Hour), "Token expiry, 1h default, 24h max")
	root.PersistentFlags().DurationVar(&cfg.cacheTTL, "route-cache-ttl", envDurationOrDefault("RMG_ROUTE_CACHE_TTL", 30*time.Second), "Local route cache TTL")
	root.PersistentFlags().DurationVar(&cfg.workerTimeout, "worker-timeout", envDurationOrDefault("RMG_WORKER_TIMEOUT", 30*time.Second), "Heartbeat age beyond which a worker is treated as dead")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("RMG_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("gateway %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, cfg *config) error {
	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.sessionSecret == "" || cfg.brokerSecret == "" {
		return fmt.Errorf("session and broker secrets are required; set RMG_SESSION_SECRET and RMG_BROKER_SECRET")
	}

	logger.Info("starting gateway",
		zap.String("version", version),
		zap.String("http_addr", cfg.httpAddr),
		zap.String("log_level", cfg.logLevel),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := store.NewRedisStore(ctx, cfg.redisURL)
	if err != nil {
		return fmt.Errorf("failed to connect to routing store: %w", err)
	}
	defer st.Close()
	logger.Info("routing store connected")

	sessionIssuer, err := auth.NewIssuer([]byte(cfg.sessionSecret), cfg.tokenTTL)
	if err != nil {
		return fmt.Errorf("failed to build session issuer: %w", err)
	}
	brokerIssuer, err := auth.NewIssuer([]byte(cfg.brokerSecret), cfg.tokenTTL)
	if err != nil {
		return fmt.Errorf("failed to build broker issuer: %w", err)
	}

	router := routing.New(st, routing.Config{
		CacheTTL:      cfg.cacheTTL,
		WorkerTimeout: cfg.workerTimeout,
	}, logger)

	handler := gateway.NewRouter(gateway.RouterConfig{
		Users:         user.NewMemoryRepository(),
		Router:        router,
		Store:         st,
		SessionIssuer: sessionIssuer,
		BrokerIssuer:  brokerIssuer,
		Logger:        logger,
		AllowedOrigin: cfg.allowedOrigin,
		WorkerTimeout: cfg.workerTimeout,
	})

	server := &http.Server{
		Addr:              cfg.httpAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down gateway")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
