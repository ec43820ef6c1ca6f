package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on top of a Redis instance using a sorted set
// for the worker registry, string keys for channel bindings, and Redis
// streams for the per-worker logs.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the Redis instance at url (redis:// form) and
// verifies connectivity before returning.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("store: parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("store: connecting to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client. The caller keeps
// ownership of the client's lifecycle.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// RegisterWorker inserts or refreshes the worker's registry entry.
func (s *RedisStore) RegisterWorker(ctx context.Context, id string) error {
	return s.touchWorker(ctx, id, "register worker")
}

// UpdateHeartbeat refreshes the worker's heartbeat score.
func (s *RedisStore) UpdateHeartbeat(ctx context.Context, id string) error {
	return s.touchWorker(ctx, id, "update heartbeat")
}

func (s *RedisStore) touchWorker(ctx context.Context, id, op string) error {
	score := float64(time.Now().UnixMilli())
	if err := s.client.ZAdd(ctx, ActiveWorkersKey, redis.Z{Score: score, Member: id}).Err(); err != nil {
		return fmt.Errorf("store: %s: %w", op, err)
	}
	return nil
}

// UnregisterWorker removes the worker from the registry.
func (s *RedisStore) UnregisterWorker(ctx context.Context, id string) error {
	if err := s.client.ZRem(ctx, ActiveWorkersKey, id).Err(); err != nil {
		return fmt.Errorf("store: unregister worker: %w", err)
	}
	return nil
}

// ListActiveWorkers returns every registry entry ordered by heartbeat score.
func (s *RedisStore) ListActiveWorkers(ctx context.Context) ([]WorkerHeartbeat, error) {
	members, err := s.client.ZRangeWithScores(ctx, ActiveWorkersKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("store: list active workers: %w", err)
	}

	workers := make([]WorkerHeartbeat, 0, len(members))
	for _, m := range members {
		id, ok := m.Member.(string)
		if !ok {
			continue
		}
		workers = append(workers, WorkerHeartbeat{
			ID:            id,
			LastHeartbeat: time.UnixMilli(int64(m.Score)),
		})
	}
	return workers, nil
}

// GetHeartbeat returns the worker's last heartbeat time.
func (s *RedisStore) GetHeartbeat(ctx context.Context, id string) (time.Time, error) {
	score, err := s.client.ZScore(ctx, ActiveWorkersKey, id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, fmt.Errorf("store: get heartbeat: %w", err)
	}
	return time.UnixMilli(int64(score)), nil
}

// GetBinding returns the worker id bound to the channel.
func (s *RedisStore) GetBinding(ctx context.Context, channel string) (string, error) {
	workerID, err := s.client.Get(ctx, BindingKey(channel)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("store: get binding: %w", err)
	}
	return workerID, nil
}

// SetBinding writes the channel binding unconditionally, with no expiry.
func (s *RedisStore) SetBinding(ctx context.Context, channel, workerID string) error {
	if err := s.client.Set(ctx, BindingKey(channel), workerID, 0).Err(); err != nil {
		return fmt.Errorf("store: set binding: %w", err)
	}
	return nil
}

// SetBindingIfAbsent writes the binding only when none exists yet.
func (s *RedisStore) SetBindingIfAbsent(ctx context.Context, channel, workerID string) (bool, error) {
	won, err := s.client.SetNX(ctx, BindingKey(channel), workerID, 0).Result()
	if err != nil {
		return false, fmt.Errorf("store: set binding if absent: %w", err)
	}
	return won, nil
}

// DeleteBinding removes the channel binding.
func (s *RedisStore) DeleteBinding(ctx context.Context, channel string) error {
	if err := s.client.Del(ctx, BindingKey(channel)).Err(); err != nil {
		return fmt.Errorf("store: delete binding: %w", err)
	}
	return nil
}

// AppendRecord appends payload to the stream under the single "payload"
// field and returns the assigned stream id.
func (s *RedisStore) AppendRecord(ctx context.Context, streamKey string, payload []byte) (string, error) {
	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		Values: map[string]interface{}{PayloadField: string(payload)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("store: append record: %w", err)
	}
	return id, nil
}

// ReadRecords reads up to maxCount records after fromCursor, blocking up to
// block when the stream has nothing new. A block timeout returns an empty
// batch, not an error.
func (s *RedisStore) ReadRecords(ctx context.Context, streamKey, fromCursor string, maxCount int64, block time.Duration) ([]Record, error) {
	if block <= 0 {
		// go-redis sends BLOCK 0 (block forever) for a zero value; a
		// negative value omits the option entirely.
		block = -1
	}

	streams, err := s.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{streamKey, fromCursor},
		Count:   maxCount,
		Block:   block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: read records: %w", err)
	}

	var records []Record
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			payload, _ := msg.Values[PayloadField].(string)
			records = append(records, Record{ID: msg.ID, Payload: []byte(payload)})
		}
	}
	return records, nil
}

// LastRecordID returns the id of the stream's newest record.
func (s *RedisStore) LastRecordID(ctx context.Context, streamKey string) (string, error) {
	msgs, err := s.client.XRevRangeN(ctx, streamKey, "+", "-", 1).Result()
	if err != nil {
		return "", fmt.Errorf("store: last record id: %w", err)
	}
	if len(msgs) == 0 {
		return CursorEarliest, nil
	}
	return msgs[0].ID, nil
}

// SetWorkerInfo publishes the worker's advisory info hash with an expiry.
func (s *RedisStore) SetWorkerInfo(ctx context.Context, id string, info map[string]string, ttl time.Duration) error {
	key := WorkerInfoKey(id)
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, info)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store: set worker info: %w", err)
	}
	return nil
}

// GetWorkerInfo returns the worker's info hash.
func (s *RedisStore) GetWorkerInfo(ctx context.Context, id string) (map[string]string, error) {
	info, err := s.client.HGetAll(ctx, WorkerInfoKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("store: get worker info: %w", err)
	}
	if len(info) == 0 {
		return nil, ErrNotFound
	}
	return info, nil
}

// Ping verifies connectivity to Redis.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connections.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
