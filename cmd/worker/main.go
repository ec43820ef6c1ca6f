// Package main is the entry point for the worker binary. A worker owns one
// durable stream (messages:worker:<id>), keeps its registry heartbeat
// fresh, and hands every consumed record to the application event surface.
//
// The default handlers just log; real deployments embed internal/worker as
// an SDK and supply their own callbacks.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/realtime-ai/realtime-message-gateway/internal/message"
	"github.com/realtime-ai/realtime-message-gateway/internal/store"
	"github.com/realtime-ai/realtime-message-gateway/internal/worker"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type config struct {
	redisURL          string
	workerID          string
	batchSize         int64
	blockTime         time.Duration
	heartbeatInterval time.Duration
	workerTimeout     time.Duration
	inactivityTimeout time.Duration
	sweepInterval     time.Duration
	startPosition     string
	logLevel          string
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
		Use:   "worker",
		Short: "Realtime message worker - durable stream consumer",
		Long: `A worker consumes the append-only message stream named by its worker id.
Back-end logic (persistence, notifications, analytics) runs here, out of
band from the publish hot path. Channels route stickily: once a channel is
bound to this worker it stays here until the worker's heartbeat lapses.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringVar(&cfg.redisURL, "redis-url", envOrDefault("RMG_REDIS_URL", "redis://localhost:6379"), "Routing store (Redis) URL")
	root.PersistentFlags().StringVar(&cfg.workerID, "worker-id", envOrDefault("RMG_WORKER_ID", ""), "Worker id (auto-generated when empty; must be unique per running process)")
	root.PersistentFlags().Int64Var(&cfg.batchSize, "batch-size", envInt64OrDefault("RMG_BATCH_SIZE", 50), "Max records per stream read")
	root.PersistentFlags().DurationVar(&cfg.blockTime, "block-time", envDurationOrDefault("RMG_BLOCK_MS", 2*time.Second), "Blocking read timeout")
	root.PersistentFlags().DurationVar(&cfg.heartbeatInterval, "heartbeat-interval", envDurationOrDefault("RMG_HEARTBEAT_INTERVAL", 10*time.Second), "Registry heartbeat period")
	root.PersistentFlags().DurationVar(&cfg.workerTimeout, "worker-timeout", envDurationOrDefault("RMG_WORKER_TIMEOUT", 30*time.Second), "Heartbeat age beyond which routers treat this worker as dead")
	root.PersistentFlags().DurationVar(&cfg.inactivityTimeout, "inactivity-timeout", envDurationOrDefault("RMG_INACTIVITY_TIMEOUT", 30*time.Second), "Quiet period after which a channel is marked inactive")
	root.PersistentFlags().DurationVar(&cfg.sweepInterval, "sweep-interval", envDurationOrDefault("RMG_SWEEP_INTERVAL", 5*time.Second), "Inactivity sweeper period")
	root.PersistentFlags().StringVar(&cfg.startPosition, "start-position", envOrDefault("RMG_START_POSITION", "latest"), "Stream start position (earliest or latest)")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("RMG_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("worker %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, cfg *config) error {
	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := store.NewRedisStore(ctx, cfg.redisURL)
	if err != nil {
		return fmt.Errorf("failed to connect to routing store: %w", err)
	}
	defer st.Close()

	runtime := worker.New(st, worker.Config{
		WorkerID:          cfg.workerID,
		Version:           version,
		BatchSize:         cfg.batchSize,
		BlockTime:         cfg.blockTime,
		HeartbeatInterval: cfg.heartbeatInterval,
		WorkerTimeout:     cfg.workerTimeout,
		InactivityTimeout: cfg.inactivityTimeout,
		SweepInterval:     cfg.sweepInterval,
		StartPosition:     worker.StartPosition(cfg.startPosition),
	}, loggingHandlers(logger), logger)

	logger.Info("starting worker",
		zap.String("version", version),
		zap.String("worker_id", runtime.WorkerID()),
	)

	// Run blocks until ctx is cancelled (SIGINT/SIGTERM) and performs the
	// graceful-stop protocol before returning.
	if err := runtime.Run(ctx); err != nil {
		return fmt.Errorf("worker failed: %w", err)
	}
	return nil
}

// loggingHandlers are the default callbacks of the standalone binary:
// structured logs for every event, nothing more.
func loggingHandlers(logger *zap.Logger) worker.Handlers {
	logger = logger.Named("events")
	return worker.Handlers{
		OnChannelActive: func(_ context.Context, activity worker.ChannelActivity) error {
			logger.Info("channel active", zap.String("channel", activity.Channel))
			return nil
		},
		OnChannelMessage: func(_ context.Context, msg *message.Payload) error {
			logger.Info("message",
				zap.String("channel", msg.Channel),
				zap.String("user_id", msg.UserID),
				zap.Int("text_len", len(msg.Text)),
			)
			return nil
		},
		OnChannelInactive: func(_ context.Context, activity worker.ChannelActivity) error {
			logger.Info("channel inactive",
				zap.String("channel", activity.Channel),
				zap.Int64("message_count", activity.MessageCount),
			)
			return nil
		},
		OnPresenceJoin: func(_ context.Context, msg *message.Payload) error {
			logger.Info("presence join", zap.String("channel", msg.Channel), zap.String("user_id", msg.UserID))
			return nil
		},
		OnPresenceLeave: func(_ context.Context, msg *message.Payload) error {
			logger.Info("presence leave", zap.String("channel", msg.Channel), zap.String("user_id", msg.UserID))
			return nil
		},
		OnError: func(err error) {
			logger.Warn("consumer error", zap.Error(err))
		},
	}
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

func envInt64OrDefault(key string, defaultVal int64) int64 {
	if v := os.Getenv(key); v != "" {
		var parsed int64
		if _, err := fmt.Sscanf(v, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return defaultVal
}
