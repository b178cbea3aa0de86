package datastore

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, defaultListLimit, normalizeLimit(0))
	assert.Equal(t, defaultListLimit, normalizeLimit(-5))
	assert.Equal(t, 25, normalizeLimit(25))
	assert.Equal(t, maxListLimit, normalizeLimit(50000))
}

// testPostgres opens the store against DATASTACK_TEST_POSTGRES_DSN, or
// skips when no database is available.
func testPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("DATASTACK_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DATASTACK_TEST_POSTGRES_DSN not set")
	}

	store, err := NewPostgresStore(context.Background(), dsn)
	require.NoError(t, err)
	require.NoError(t, store.Migrate())
	t.Cleanup(store.Close)
	return store
}

func TestPostgresStore_RoundTrip(t *testing.T) {
	store := testPostgres(t)
	ctx := context.Background()
	key := "test/roundtrip/" + t.Name()
	t.Cleanup(func() { _ = store.Delete(ctx, key) })

	stored, err := store.Store(ctx, Record{Key: key, Value: json.RawMessage(`{"n":1}`)})
	require.NoError(t, err)
	assert.Equal(t, "application/json", stored.ContentType)
	assert.False(t, stored.CreatedAt.IsZero())

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(got.Value))

	// Upsert replaces the value and bumps updated_at.
	updated, err := store.Store(ctx, Record{Key: key, Value: json.RawMessage(`{"n":2}`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":2}`, string(updated.Value))
	assert.Equal(t, stored.CreatedAt, updated.CreatedAt)

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_ListByPrefix(t *testing.T) {
	store := testPostgres(t)
	ctx := context.Background()
	prefix := "test/list/" + t.Name() + "/"

	for _, k := range []string{"a", "b", "c"} {
		_, err := store.Store(ctx, Record{Key: prefix + k, Value: json.RawMessage(`1`)})
		require.NoError(t, err)
		key := prefix + k
		t.Cleanup(func() { _ = store.Delete(ctx, key) })
	}

	recs, err := store.List(ctx, prefix, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, prefix+"a", recs[0].Key)
	assert.Equal(t, prefix+"b", recs[1].Key)
}

func TestPostgresStore_DeleteMissing(t *testing.T) {
	store := testPostgres(t)
	err := store.Delete(context.Background(), "test/never-stored")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_RejectsBadInput(t *testing.T) {
	store := &PostgresStore{}

	_, err := store.Store(context.Background(), Record{Key: "", Value: json.RawMessage(`1`)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key is empty")

	_, err = store.Store(context.Background(), Record{Key: "k", Value: json.RawMessage(`{oops`)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid JSON")
}
