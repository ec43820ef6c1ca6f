package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and single-process
// development. It mirrors the Redis semantics the rest of the system relies
// on: registry entries scored by heartbeat time, bindings without expiry,
// and streams whose record ids are "<ms>-<seq>" and strictly increase.
//
// All state is lost when the process exits.
type MemoryStore struct {
	mu       sync.Mutex
	workers  map[string]int64 // worker id → heartbeat ms epoch
	bindings map[string]string
	streams  map[string][]Record
	seq      map[string]int64 // per-stream sequence counter
	info     map[string]workerInfoEntry

	// notify is closed and replaced on every append so blocked readers
	// wake up and re-check their stream.
	notify chan struct{}

	// now is replaceable in tests that need to control heartbeat ages.
	now func() time.Time
}

type workerInfoEntry struct {
	fields    map[string]string
	expiresAt time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workers:  make(map[string]int64),
		bindings: make(map[string]string),
		streams:  make(map[string][]Record),
		seq:      make(map[string]int64),
		info:     make(map[string]workerInfoEntry),
		notify:   make(chan struct{}),
		now:      time.Now,
	}
}

// SetClock replaces the store's time source. Test helper.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// RegisterWorker inserts or refreshes the worker's registry entry.
func (s *MemoryStore) RegisterWorker(ctx context.Context, id string) error {
	return s.UpdateHeartbeat(ctx, id)
}

// UpdateHeartbeat refreshes the worker's heartbeat score.
func (s *MemoryStore) UpdateHeartbeat(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers[id] = s.now().UnixMilli()
	return nil
}

// SetHeartbeat pins a worker's heartbeat to an exact time. Test helper for
// simulating stale workers without waiting out real timeouts.
func (s *MemoryStore) SetHeartbeat(id string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers[id] = at.UnixMilli()
}

// UnregisterWorker removes the worker from the registry.
func (s *MemoryStore) UnregisterWorker(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.workers, id)
	return nil
}

// ListActiveWorkers returns every registry entry ordered by heartbeat score.
func (s *MemoryStore) ListActiveWorkers(_ context.Context) ([]WorkerHeartbeat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	workers := make([]WorkerHeartbeat, 0, len(s.workers))
	for id, ms := range s.workers {
		workers = append(workers, WorkerHeartbeat{ID: id, LastHeartbeat: time.UnixMilli(ms)})
	}
	sort.Slice(workers, func(i, j int) bool {
		if workers[i].LastHeartbeat.Equal(workers[j].LastHeartbeat) {
			return workers[i].ID < workers[j].ID
		}
		return workers[i].LastHeartbeat.Before(workers[j].LastHeartbeat)
	})
	return workers, nil
}

// GetHeartbeat returns the worker's last heartbeat time.
func (s *MemoryStore) GetHeartbeat(_ context.Context, id string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ms, ok := s.workers[id]
	if !ok {
		return time.Time{}, ErrNotFound
	}
	return time.UnixMilli(ms), nil
}

// GetBinding returns the worker id bound to the channel.
func (s *MemoryStore) GetBinding(_ context.Context, channel string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	workerID, ok := s.bindings[channel]
	if !ok {
		return "", ErrNotFound
	}
	return workerID, nil
}

// SetBinding writes the channel binding unconditionally.
func (s *MemoryStore) SetBinding(_ context.Context, channel, workerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindings[channel] = workerID
	return nil
}

// SetBindingIfAbsent writes the binding only when none exists yet.
func (s *MemoryStore) SetBindingIfAbsent(_ context.Context, channel, workerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bindings[channel]; exists {
		return false, nil
	}
	s.bindings[channel] = workerID
	return true, nil
}

// DeleteBinding removes the channel binding.
func (s *MemoryStore) DeleteBinding(_ context.Context, channel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bindings, channel)
	return nil
}

// AppendRecord appends payload to the stream and wakes blocked readers.
func (s *MemoryStore) AppendRecord(_ context.Context, streamKey string, payload []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq[streamKey]++
	id := fmt.Sprintf("%d-%d", s.now().UnixMilli(), s.seq[streamKey])

	buf := make([]byte, len(payload))
	copy(buf, payload)
	s.streams[streamKey] = append(s.streams[streamKey], Record{ID: id, Payload: buf})

	close(s.notify)
	s.notify = make(chan struct{})
	return id, nil
}

// ReadRecords returns up to maxCount records after fromCursor, blocking up
// to block when the stream has nothing new.
func (s *MemoryStore) ReadRecords(ctx context.Context, streamKey, fromCursor string, maxCount int64, block time.Duration) ([]Record, error) {
	deadline := time.Now().Add(block)

	s.mu.Lock()
	// Resolve "$" once: only records appended after this call are visible.
	if fromCursor == CursorLatest {
		if recs := s.streams[streamKey]; len(recs) > 0 {
			fromCursor = recs[len(recs)-1].ID
		} else {
			fromCursor = CursorEarliest
		}
	}

	for {
		batch := s.recordsAfterLocked(streamKey, fromCursor, maxCount)
		if len(batch) > 0 {
			s.mu.Unlock()
			return batch, nil
		}

		if block <= 0 || !time.Now().Before(deadline) || ctx.Err() != nil {
			s.mu.Unlock()
			return nil, nil
		}

		wake := s.notify
		s.mu.Unlock()

		wait := time.Until(deadline)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, nil
		case <-timer.C:
			return nil, nil
		case <-wake:
			timer.Stop()
		}
		s.mu.Lock()
	}
}

// recordsAfterLocked returns up to maxCount records with ids strictly after
// cursor. Caller holds s.mu.
func (s *MemoryStore) recordsAfterLocked(streamKey, cursor string, maxCount int64) []Record {
	var batch []Record
	for _, rec := range s.streams[streamKey] {
		if compareStreamIDs(rec.ID, cursor) <= 0 {
			continue
		}
		batch = append(batch, rec)
		if maxCount > 0 && int64(len(batch)) >= maxCount {
			break
		}
	}
	return batch
}

// LastRecordID returns the id of the stream's newest record.
func (s *MemoryStore) LastRecordID(_ context.Context, streamKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := s.streams[streamKey]
	if len(recs) == 0 {
		return CursorEarliest, nil
	}
	return recs[len(recs)-1].ID, nil
}

// StreamLen returns the number of records ever appended to a stream.
// Test helper.
func (s *MemoryStore) StreamLen(streamKey string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams[streamKey])
}

// SetWorkerInfo publishes the worker's advisory info hash.
func (s *MemoryStore) SetWorkerInfo(_ context.Context, id string, info map[string]string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields := make(map[string]string, len(info))
	for k, v := range info {
		fields[k] = v
	}
	entry := workerInfoEntry{fields: fields}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.info[id] = entry
	return nil
}

// GetWorkerInfo returns the worker's info hash.
func (s *MemoryStore) GetWorkerInfo(_ context.Context, id string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.info[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !entry.expiresAt.IsZero() && s.now().After(entry.expiresAt) {
		delete(s.info, id)
		return nil, ErrNotFound
	}

	fields := make(map[string]string, len(entry.fields))
	for k, v := range entry.fields {
		fields[k] = v
	}
	return fields, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// compareStreamIDs orders two "<ms>-<seq>" stream ids. The bare cursors "0"
// and "$" order before everything, matching how they are used.
func compareStreamIDs(a, b string) int {
	ams, aseq := splitStreamID(a)
	bms, bseq := splitStreamID(b)
	if ams != bms {
		if ams < bms {
			return -1
		}
		return 1
	}
	if aseq != bseq {
		if aseq < bseq {
			return -1
		}
		return 1
	}
	return 0
}

func splitStreamID(id string) (int64, int64) {
	if id == CursorEarliest || id == CursorLatest || id == "" {
		return -1, -1
	}
	part, rest, found := strings.Cut(id, "-")
	ms, _ := strconv.ParseInt(part, 10, 64)
	var seq int64
	if found {
		seq, _ = strconv.ParseInt(rest, 10, 64)
	}
	return ms, seq
}
