// Package routing implements the sticky channel router: the authority that
// decides which worker owns a channel. Bindings live in the routing store;
// each gateway process additionally keeps a short-lived local cache so hot
// channels do not hit the store on every publish.
//
// The router is a pure function over the store plus process-local state
// (cache, round-robin counter). Handlers depend on it; it depends on nothing
// above the store, which keeps the dependency graph acyclic.
package routing

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/realtime-ai/realtime-message-gateway/internal/metrics"
	"github.com/realtime-ai/realtime-message-gateway/internal/store"
)

// ErrNoActiveWorkers is returned by Resolve when the registry holds no
// worker with a fresh heartbeat. Callers surface it as a retryable error.
var ErrNoActiveWorkers = errors.New("routing: no active workers available")

// cacheEntry is one local-cache slot: the resolved worker and when the
// entry stops being trusted.
type cacheEntry struct {
	workerID  string
	expiresAt time.Time
}

// Config holds the router's tunables.
type Config struct {
	// CacheTTL bounds how long a local cache entry is served without
	// re-validating the binding against the store.
	CacheTTL time.Duration

	// WorkerTimeout is the heartbeat age beyond which a worker is treated
	// as dead. Must match the interval the workers advertise with.
	WorkerTimeout time.Duration
}

// Router resolves channels to live workers, creating or repairing bindings
// as needed. Safe for concurrent use.
type Router struct {
	store  store.Store
	cfg    Config
	logger *zap.Logger

	cache   sync.Map // channel → *cacheEntry
	rrIndex atomic.Uint64

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a Router over the given store.
func New(st store.Store, cfg Config, logger *zap.Logger) *Router {
	return &Router{
		store:  st,
		cfg:    cfg,
		logger: logger.Named("router"),
		now:    time.Now,
	}
}

// Resolve returns the id of the live worker that owns channel, repairing a
// missing or dead binding first. The returned worker had a fresh heartbeat
// at resolution time; the local cache may briefly serve a worker that has
// since died, which the next uncached resolution repairs.
func (r *Router) Resolve(ctx context.Context, channel string) (string, error) {
	if entry, ok := r.cache.Load(channel); ok {
		ce := entry.(*cacheEntry)
		if r.now().Before(ce.expiresAt) {
			metrics.RouteCacheHits.Inc()
			return ce.workerID, nil
		}
		r.cache.Delete(channel)
	}
	metrics.RouteCacheMisses.Inc()

	workerID, err := r.store.GetBinding(ctx, channel)
	switch {
	case err == nil:
		if r.isLive(ctx, workerID) {
			r.updateCache(channel, workerID)
			return workerID, nil
		}
		// Bound worker is gone. Drop the stale binding so the rebind's
		// conditional claim can succeed.
		r.logger.Info("bound worker not live, rebinding channel",
			zap.String("channel", channel),
			zap.String("worker_id", workerID),
		)
		if err := r.store.DeleteBinding(ctx, channel); err != nil {
			return "", err
		}
	case errors.Is(err, store.ErrNotFound):
		// No binding yet: first publish to this channel.
	default:
		return "", err
	}

	workerID, err = r.rebind(ctx, channel)
	if err != nil {
		return "", err
	}
	r.updateCache(channel, workerID)
	return workerID, nil
}

// rebind selects a live worker round-robin and claims the binding with a
// conditional write so racing gateways converge on one owner.
func (r *Router) rebind(ctx context.Context, channel string) (string, error) {
	workers, err := r.liveWorkers(ctx)
	if err != nil {
		return "", err
	}
	if len(workers) == 0 {
		return "", ErrNoActiveWorkers
	}

	// Every worker in the slice is live; try each at most once in case a
	// concurrent claimer installs a worker that dies mid-loop.
	for range workers {
		idx := r.rrIndex.Add(1)
		selected := workers[int(idx%uint64(len(workers)))]

		won, err := r.store.SetBindingIfAbsent(ctx, channel, selected)
		if err != nil {
			return "", err
		}
		if won {
			metrics.Rebinds.Inc()
			r.logger.Info("bound channel to worker",
				zap.String("channel", channel),
				zap.String("worker_id", selected),
			)
			return selected, nil
		}

		// Lost the claim: adopt the winner's worker if it is live.
		existing, err := r.store.GetBinding(ctx, channel)
		if err == nil && r.isLive(ctx, existing) {
			return existing, nil
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return "", err
		}
		// The winner's worker already died (or the binding vanished);
		// clear and retry with the next round-robin pick.
		if err == nil {
			if err := r.store.DeleteBinding(ctx, channel); err != nil {
				return "", err
			}
		}
	}

	return "", ErrNoActiveWorkers
}

// liveWorkers returns the registry filtered to fresh heartbeats, preserving
// registration-score order so round-robin indexing is stable.
func (r *Router) liveWorkers(ctx context.Context) ([]string, error) {
	all, err := r.store.ListActiveWorkers(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := r.now().Add(-r.cfg.WorkerTimeout)
	var live []string
	for _, w := range all {
		if w.LastHeartbeat.After(cutoff) {
			live = append(live, w.ID)
		}
	}
	return live, nil
}

// isLive reports whether the worker's heartbeat is fresher than the
// configured worker timeout.
func (r *Router) isLive(ctx context.Context, workerID string) bool {
	hb, err := r.store.GetHeartbeat(ctx, workerID)
	if err != nil {
		return false
	}
	return hb.After(r.now().Add(-r.cfg.WorkerTimeout))
}

func (r *Router) updateCache(channel, workerID string) {
	r.cache.Store(channel, &cacheEntry{
		workerID:  workerID,
		expiresAt: r.now().Add(r.cfg.CacheTTL),
	})
}

// Invalidate removes a channel from the local cache. Publish calls it when
// an append fails, as that is evidence the cached owner may be stale.
func (r *Router) Invalidate(channel string) {
	r.cache.Delete(channel)
}

// ClearCache drops every cached route. Used by tests and operational resets.
func (r *Router) ClearCache() {
	r.cache.Range(func(key, _ any) bool {
		r.cache.Delete(key)
		return true
	})
}
