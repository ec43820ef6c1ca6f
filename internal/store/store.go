// Package store is the thin abstraction over the shared routing store that
// every other component coordinates through. It provides three primitives:
//
//   - the worker registry: a sorted set keyed by worker id whose score is
//     the millisecond epoch of the last heartbeat
//   - channel bindings: plain string keys mapping a channel to the worker
//     that currently owns it, with no expiry
//   - per-worker streams: append-only ordered logs with a blocking read
//
// The production implementation is RedisStore. MemoryStore implements the
// same contract in-process for tests and single-process development.
package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by Store implementations.
// Callers should use errors.Is for comparison.
var (
	// ErrNotFound is returned when the requested key, member or binding
	// does not exist in the routing store.
	ErrNotFound = errors.New("store: not found")
)

// WorkerHeartbeat is one entry of the worker registry: a worker id and the
// time of its last heartbeat refresh.
type WorkerHeartbeat struct {
	ID            string
	LastHeartbeat time.Time
}

// Record is a single entry of a worker stream. ID is the store-assigned
// stream sequence ("<ms>-<seq>" in Redis stream form); records within one
// stream are strictly ordered by ID. Payload is the opaque document written
// by AppendRecord.
type Record struct {
	ID      string
	Payload []byte
}

// Stream cursor positions accepted by ReadRecords as fromCursor.
const (
	// CursorEarliest reads a stream from its beginning.
	CursorEarliest = "0"

	// CursorLatest reads only records appended after the first read.
	CursorLatest = "$"
)

// Store is the routing-store contract shared by the gateway and the workers.
// All methods are safe for concurrent use.
type Store interface {
	// RegisterWorker inserts or refreshes the worker's registry entry with
	// the current time as its heartbeat score.
	RegisterWorker(ctx context.Context, id string) error

	// UpdateHeartbeat refreshes the worker's heartbeat score. Identical to
	// RegisterWorker; named separately because callers mean different
	// things by it.
	UpdateHeartbeat(ctx context.Context, id string) error

	// UnregisterWorker removes the worker from the registry. Removing an
	// unknown worker is not an error.
	UnregisterWorker(ctx context.Context, id string) error

	// ListActiveWorkers returns every registry entry ordered by heartbeat
	// score. Liveness filtering is the caller's responsibility; the
	// registry itself keeps entries until they are unregistered.
	ListActiveWorkers(ctx context.Context) ([]WorkerHeartbeat, error)

	// GetHeartbeat returns the worker's last heartbeat time, or ErrNotFound
	// when the worker is not registered.
	GetHeartbeat(ctx context.Context, id string) (time.Time, error)

	// GetBinding returns the worker id bound to the channel, or ErrNotFound
	// when no binding exists.
	GetBinding(ctx context.Context, channel string) (string, error)

	// SetBinding writes the channel binding unconditionally, with no expiry.
	SetBinding(ctx context.Context, channel, workerID string) error

	// SetBindingIfAbsent writes the binding only when none exists yet and
	// reports whether this call won the claim. Used by the router's rebind
	// so concurrent rebinds converge on a single owner.
	SetBindingIfAbsent(ctx context.Context, channel, workerID string) (bool, error)

	// DeleteBinding removes the channel binding. Deleting a missing binding
	// is not an error.
	DeleteBinding(ctx context.Context, channel string) error

	// AppendRecord appends payload to the stream and returns the assigned
	// record ID. The stream is created on first append.
	AppendRecord(ctx context.Context, streamKey string, payload []byte) (string, error)

	// ReadRecords returns up to maxCount records with IDs strictly after
	// fromCursor, blocking up to block when none are available. A timeout
	// yields an empty batch and a nil error. fromCursor may be a record ID,
	// CursorEarliest or CursorLatest. CursorLatest re-resolves to the stream
	// tail on every call; long-running consumers should pin a concrete
	// cursor with LastRecordID first and never hold CursorLatest across
	// reads.
	ReadRecords(ctx context.Context, streamKey, fromCursor string, maxCount int64, block time.Duration) ([]Record, error)

	// LastRecordID returns the ID of the stream's newest record, or
	// CursorEarliest when the stream is empty or does not exist. Used to pin
	// a "start from now" position to a concrete cursor.
	LastRecordID(ctx context.Context, streamKey string) (string, error)

	// SetWorkerInfo publishes the worker's advisory info hash (hostname,
	// pid, resource usage). It expires after ttl so dead workers disappear
	// from operator views. The hash is not part of the liveness protocol.
	SetWorkerInfo(ctx context.Context, id string, info map[string]string, ttl time.Duration) error

	// GetWorkerInfo returns the worker's info hash, or ErrNotFound when the
	// worker has never published one or it has expired.
	GetWorkerInfo(ctx context.Context, id string) (map[string]string, error)

	// Ping verifies connectivity to the backing service.
	Ping(ctx context.Context) error

	// Close releases the underlying connections.
	Close() error
}
