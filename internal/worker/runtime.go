package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/realtime-ai/realtime-message-gateway/internal/message"
	"github.com/realtime-ai/realtime-message-gateway/internal/metrics"
	"github.com/realtime-ai/realtime-message-gateway/internal/store"
)

// StartPosition selects where a freshly started worker begins reading its
// stream.
type StartPosition string

const (
	// StartEarliest consumes the stream from its beginning, including
	// records appended while no worker with this id was running.
	StartEarliest StartPosition = "earliest"

	// StartLatest consumes only records appended after the worker joined.
	StartLatest StartPosition = "latest"
)

// Defaults applied by Config.withDefaults.
const (
	defaultBatchSize         = 50
	defaultBlockTime         = 2 * time.Second
	defaultHeartbeatInterval = 10 * time.Second
	defaultWorkerTimeout     = 30 * time.Second
	defaultInactivityTimeout = 30 * time.Second
	defaultSweepInterval     = 5 * time.Second

	// readErrorBackoff is how long the consume loop pauses after a stream
	// read error before resuming. Shutdown preempts the pause.
	readErrorBackoff = time.Second
)

// Config holds the worker runtime tunables.
type Config struct {
	// WorkerID names this worker's registry entry and stream. Auto
	// generated when empty. Never run two processes with the same id; the
	// stream contract is single-consumer.
	WorkerID string

	// Version is reported in the advisory info hash.
	Version string

	BatchSize         int64
	BlockTime         time.Duration
	HeartbeatInterval time.Duration

	// WorkerTimeout is the heartbeat age beyond which routers treat this
	// worker as dead. Only used to size the info-hash expiry; the timeout
	// itself is enforced by the routers.
	WorkerTimeout time.Duration

	InactivityTimeout time.Duration
	SweepInterval     time.Duration
	StartPosition     StartPosition
}

func (c Config) withDefaults() Config {
	if c.WorkerID == "" {
		c.WorkerID = uuid.NewString()
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.BlockTime <= 0 {
		c.BlockTime = defaultBlockTime
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.WorkerTimeout <= 0 {
		c.WorkerTimeout = defaultWorkerTimeout
	}
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = defaultInactivityTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaultSweepInterval
	}
	if c.StartPosition != StartEarliest && c.StartPosition != StartLatest {
		c.StartPosition = StartLatest
	}
	return c
}

// Runtime is one worker: it owns the stream messages:worker:<id>, keeps its
// registry entry alive, and dispatches consumed records to the event
// surface. Create with New, drive with Run.
type Runtime struct {
	cfg       Config
	store     store.Store
	handlers  Handlers
	events    *Broadcaster
	tracker   *Tracker
	logger    *zap.Logger
	startedAt time.Time
}

// New creates a Runtime. handlers fields may be nil; the broadcast sink is
// available via Events regardless.
func New(st store.Store, cfg Config, handlers Handlers, logger *zap.Logger) *Runtime {
	cfg = cfg.withDefaults()
	logger = logger.Named("worker").With(zap.String("worker_id", cfg.WorkerID))
	return &Runtime{
		cfg:      cfg,
		store:    st,
		handlers: handlers,
		events:   NewBroadcaster(logger),
		tracker:  NewTracker(),
		logger:   logger,
	}
}

// WorkerID returns the effective worker id after defaulting.
func (r *Runtime) WorkerID() string { return r.cfg.WorkerID }

// Events returns the broadcast sink. Subscribers receive every event the
// callbacks see; slow subscribers are dropped rather than backpressuring
// the consume loop.
func (r *Runtime) Events() *Broadcaster { return r.events }

// Tracker exposes the lifecycle tracker for inspection.
func (r *Runtime) Tracker() *Tracker { return r.tracker }

// Run registers the worker, starts the heartbeat and inactivity-sweep
// tasks, and consumes the worker stream on the calling goroutine until ctx
// is cancelled. It then performs the graceful-stop protocol: stop the
// periodic tasks, mark every tracked channel inactive, and unregister.
func (r *Runtime) Run(ctx context.Context) error {
	r.startedAt = time.Now().UTC()

	// Pin the start position to a concrete record id before anything else.
	// The "$" cursor re-resolves to the stream tail on every read, so
	// holding it across reads would skip records appended between two empty
	// batches.
	streamKey := store.WorkerStreamKey(r.cfg.WorkerID)
	cursor := store.CursorEarliest
	if r.cfg.StartPosition == StartLatest {
		id, err := r.store.LastRecordID(ctx, streamKey)
		if err != nil {
			return fmt.Errorf("worker: resolving start cursor: %w", err)
		}
		cursor = id
	}

	if err := r.store.RegisterWorker(ctx, r.cfg.WorkerID); err != nil {
		return fmt.Errorf("worker: registering: %w", err)
	}
	r.publishInfo(ctx)

	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("worker: creating scheduler: %w", err)
	}

	if _, err := sched.NewJob(
		gocron.DurationJob(r.cfg.HeartbeatInterval),
		gocron.NewTask(func() { r.heartbeat(ctx) }),
	); err != nil {
		return fmt.Errorf("worker: scheduling heartbeat: %w", err)
	}

	if _, err := sched.NewJob(
		gocron.DurationJob(r.cfg.SweepInterval),
		gocron.NewTask(func() { r.sweep(ctx) }),
	); err != nil {
		return fmt.Errorf("worker: scheduling inactivity sweep: %w", err)
	}

	sched.Start()
	r.logger.Info("worker started",
		zap.String("start_position", string(r.cfg.StartPosition)),
		zap.Int64("batch_size", r.cfg.BatchSize),
		zap.Duration("block_time", r.cfg.BlockTime),
	)

	r.consumeLoop(ctx, streamKey, cursor)

	// --- Graceful stop ---
	if err := sched.Shutdown(); err != nil {
		r.logger.Warn("scheduler shutdown error", zap.Error(err))
	}

	// The run context is already cancelled; shutdown work gets its own
	// short deadline so a wedged store cannot hang process exit.
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, activity := range r.tracker.DrainAll() {
		r.emitLifecycle(stopCtx, EventChannelInactive, activity)
	}

	if err := r.store.UnregisterWorker(stopCtx, r.cfg.WorkerID); err != nil {
		r.logger.Warn("unregister failed", zap.Error(err))
	}

	r.events.Close()
	r.logger.Info("worker stopped")
	return nil
}

// heartbeat refreshes the registry score and the advisory info hash.
// Failures are logged and left for the next tick; a few missed heartbeats
// are what the worker timeout exists to absorb.
func (r *Runtime) heartbeat(ctx context.Context) {
	if err := r.store.UpdateHeartbeat(ctx, r.cfg.WorkerID); err != nil {
		r.logger.Warn("heartbeat failed", zap.Error(err))
		return
	}
	r.publishInfo(ctx)
	r.logger.Debug("heartbeat sent")
}

func (r *Runtime) publishInfo(ctx context.Context) {
	info := collectInfo(r.cfg.Version, message.FormatTimestamp(r.startedAt))
	if err := r.store.SetWorkerInfo(ctx, r.cfg.WorkerID, info, 2*r.cfg.WorkerTimeout); err != nil {
		r.logger.Debug("worker info publish failed", zap.Error(err))
	}
}

// sweep marks channels inactive after the configured quiet period.
func (r *Runtime) sweep(ctx context.Context) {
	for _, activity := range r.tracker.SweepInactive(r.cfg.InactivityTimeout) {
		r.logger.Info("channel inactive",
			zap.String("channel", activity.Channel),
			zap.Int64("message_count", activity.MessageCount),
		)
		r.emitLifecycle(ctx, EventChannelInactive, activity)
	}
}

// consumeLoop reads the worker stream until ctx ends, starting from the
// concrete cursor Run pinned. The cursor advances past every record before
// dispatch so a failing record can never stall the stream; retry and
// dead-letter policy belong to the application callbacks.
func (r *Runtime) consumeLoop(ctx context.Context, streamKey, cursor string) {
	for ctx.Err() == nil {
		records, err := r.store.ReadRecords(ctx, streamKey, cursor, r.cfg.BatchSize, r.cfg.BlockTime)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Error("stream read failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(readErrorBackoff):
			}
			continue
		}

		for _, record := range records {
			cursor = record.ID
			r.dispatch(ctx, record)
		}
	}
}

// dispatch decodes one record and routes it to the event surface.
func (r *Runtime) dispatch(ctx context.Context, record store.Record) {
	payload, err := message.Decode(record.Payload)
	if err != nil {
		r.emitError(fmt.Errorf("worker: record %s: %w", record.ID, err))
		return
	}
	metrics.RecordsConsumed.Inc()

	switch payload.Type {
	case message.TypeMessage:
		// Creation and the first increment are one locked tracker call so
		// the sweeper cannot retire the entry in between.
		activity, created := r.tracker.RecordMessage(payload.Channel)
		if created {
			r.logger.Info("channel active", zap.String("channel", payload.Channel))
			first := activity
			first.MessageCount = 0
			r.emitLifecycle(ctx, EventChannelActive, first)
		}
		r.emitMessage(ctx, EventChannelMessage, payload)

	case message.TypeJoin:
		r.emitMessage(ctx, EventPresenceJoin, payload)

	case message.TypeLeave:
		r.emitMessage(ctx, EventPresenceLeave, payload)

	default:
		r.logger.Warn("skipping record with unknown type",
			zap.String("record_id", record.ID),
			zap.String("type", string(payload.Type)),
		)
	}
}

// emitLifecycle publishes a lifecycle event and awaits its callback.
func (r *Runtime) emitLifecycle(ctx context.Context, eventType EventType, activity ChannelActivity) {
	r.events.Publish(Event{
		Type:     eventType,
		Channel:  activity.Channel,
		Activity: &activity,
		Time:     time.Now(),
	})

	var handler func(context.Context, ChannelActivity) error
	switch eventType {
	case EventChannelActive:
		handler = r.handlers.OnChannelActive
	case EventChannelInactive:
		handler = r.handlers.OnChannelInactive
	}
	if handler == nil {
		return
	}
	if err := r.callGuarded(func() error { return handler(ctx, activity) }); err != nil {
		r.emitError(fmt.Errorf("worker: %s handler: %w", eventType, err))
	}
}

// emitMessage publishes a message or presence event and awaits its callback.
func (r *Runtime) emitMessage(ctx context.Context, eventType EventType, payload *message.Payload) {
	r.events.Publish(Event{
		Type:    eventType,
		Channel: payload.Channel,
		Message: payload,
		Time:    time.Now(),
	})

	var handler func(context.Context, *message.Payload) error
	switch eventType {
	case EventChannelMessage:
		handler = r.handlers.OnChannelMessage
	case EventPresenceJoin:
		handler = r.handlers.OnPresenceJoin
	case EventPresenceLeave:
		handler = r.handlers.OnPresenceLeave
	}
	if handler == nil {
		return
	}
	if err := r.callGuarded(func() error { return handler(ctx, payload) }); err != nil {
		r.emitError(fmt.Errorf("worker: %s handler: %w", eventType, err))
	}
}

// callGuarded runs fn, converting a panic into an error so one bad callback
// cannot take the worker down.
func (r *Runtime) callGuarded(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("callback panicked: %v", rec)
		}
	}()
	return fn()
}

// emitError counts, logs, and publishes a consumer error. The consume loop
// has already advanced past the offending record.
func (r *Runtime) emitError(err error) {
	metrics.DispatchErrors.Inc()
	r.logger.Error("dispatch error", zap.Error(err))

	r.events.Publish(Event{
		Type: EventError,
		Err:  err,
		Time: time.Now(),
	})
	if r.handlers.OnError != nil {
		func() {
			defer func() { _ = recover() }()
			r.handlers.OnError(err)
		}()
	}
}
