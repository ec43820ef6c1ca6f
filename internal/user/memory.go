package user

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is the in-process Repository implementation. It keeps two
// indexes, by id and by case-folded name, that are always updated together.
// Safe for concurrent use by the HTTP handlers.
type MemoryRepository struct {
	mu     sync.RWMutex
	byID   map[string]*User
	byName map[string]*User // keyed by FoldName
}

// NewMemoryRepository creates an empty registry.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:   make(map[string]*User),
		byName: make(map[string]*User),
	}
}

// UpsertByName returns the user matching name case-insensitively, creating
// one on first sight.
func (r *MemoryRepository) UpsertByName(_ context.Context, name string) (*User, error) {
	trimmed, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	key := FoldName(trimmed)

	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.byName[key]; ok {
		return snapshot(u), nil
	}

	u := &User{
		ID:        uuid.NewString(),
		Name:      trimmed,
		CreatedAt: time.Now().UTC(),
	}
	r.byID[u.ID] = u
	r.byName[key] = u
	return snapshot(u), nil
}

// Upsert returns the user with the given id, creating it when unknown.
func (r *MemoryRepository) Upsert(_ context.Context, id, name string) (*User, error) {
	trimmed, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.byID[id]; ok {
		return snapshot(u), nil
	}

	u := &User{
		ID:        id,
		Name:      trimmed,
		CreatedAt: time.Now().UTC(),
	}
	r.byID[id] = u
	// Name collisions across distinct ids keep the first name index entry;
	// identity lookups are by id, the name index only serves login reuse.
	if _, taken := r.byName[FoldName(trimmed)]; !taken {
		r.byName[FoldName(trimmed)] = u
	}
	return snapshot(u), nil
}

// GetByID returns the user with the given id.
func (r *MemoryRepository) GetByID(_ context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return snapshot(u), nil
}

// Count returns the number of registered users.
func (r *MemoryRepository) Count(context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID), nil
}

// snapshot copies a user so callers cannot mutate registry state.
func snapshot(u *User) *User {
	cp := *u
	return &cp
}
