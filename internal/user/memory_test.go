package user

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertByNameReturnsSameUser(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	first, err := repo.UpsertByName(ctx, "Alice")
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, "Alice", first.Name)
	assert.False(t, first.CreatedAt.IsZero())

	// Same name logs back into the same identity, original casing kept.
	again, err := repo.UpsertByName(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "Alice", again.Name)

	// Surrounding whitespace is not part of the identity either.
	again, err = repo.UpsertByName(ctx, "  Alice  ")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUpsertByNameDistinctNames(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	alice, err := repo.UpsertByName(ctx, "alice")
	require.NoError(t, err)
	bob, err := repo.UpsertByName(ctx, "bob")
	require.NoError(t, err)
	assert.NotEqual(t, alice.ID, bob.ID)
}

func TestNameBounds(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	_, err := repo.UpsertByName(ctx, "")
	require.ErrorIs(t, err, ErrInvalidName)

	_, err = repo.UpsertByName(ctx, "   ")
	require.ErrorIs(t, err, ErrInvalidName)

	_, err = repo.UpsertByName(ctx, strings.Repeat("x", 51))
	require.ErrorIs(t, err, ErrInvalidName)

	// Both boundary lengths are accepted.
	u, err := repo.UpsertByName(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "x", u.Name)

	u, err = repo.UpsertByName(ctx, strings.Repeat("y", 50))
	require.NoError(t, err)
	assert.Len(t, u.Name, 50)
}

func TestUpsertByID(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	created, err := repo.Upsert(ctx, "ext-1", "Carol")
	require.NoError(t, err)
	assert.Equal(t, "ext-1", created.ID)
	assert.Equal(t, "Carol", created.Name)

	// Re-upserting an existing id is a lookup; the name does not change.
	same, err := repo.Upsert(ctx, "ext-1", "Renamed")
	require.NoError(t, err)
	assert.Equal(t, "Carol", same.Name)

	_, err = repo.Upsert(ctx, "ext-2", "")
	require.ErrorIs(t, err, ErrInvalidName)
}

func TestGetByID(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	_, err := repo.GetByID(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	created, err := repo.UpsertByName(ctx, "dave")
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)
}

func TestSnapshotsAreCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	created, err := repo.UpsertByName(ctx, "eve")
	require.NoError(t, err)
	created.Name = "mutated"

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "eve", got.Name)
}
