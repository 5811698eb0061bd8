package badger

import (
	"bytes"
	"context"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/kbindex/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts ...StoreOption) *Store {
	t.Helper()
	s, err := NewMemoryStore(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func countChunks(t *testing.T, s *Store, name string) int {
	t.Helper()
	n := 0
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(objectChunkPrefix + name + "\x00")
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			n++
		}
		return nil
	}, false)
	require.NoError(t, err)
	return n
}

func TestStore_LoadMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Load(context.Background(), "embeddings_cache")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, WithChunkSize(7))

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"smaller than a chunk", []byte("abc")},
		{"exact chunk", []byte("1234567")},
		{"several chunks", bytes.Repeat([]byte("0123456789"), 10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, s.Save(ctx, tt.name, tt.data))
			got, err := s.Load(ctx, tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.data, got)
		})
	}
}

func TestStore_SaveReplaces(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, WithChunkSize(4))

	require.NoError(t, s.Save(ctx, "k", bytes.Repeat([]byte("a"), 40)))
	assert.Equal(t, 10, countChunks(t, s, "k"))

	require.NoError(t, s.Save(ctx, "k", []byte("bb")))
	got, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("bb"), got)

	// Chunks of the previous generation are gone.
	assert.Equal(t, 1, countChunks(t, s, "k"))
}

func TestStore_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Save(ctx, "a", []byte("first")))
	require.NoError(t, s.Save(ctx, "ab", []byte("second")))

	a, err := s.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), a)

	ab, err := s.Load(ctx, "ab")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), ab)
}

func TestStore_Prefix(t *testing.T) {
	ctx := context.Background()
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	app1, err := NewStoreWithBackend(backend, "app1/")
	require.NoError(t, err)
	app2, err := NewStoreWithBackend(backend, "app2/")
	require.NoError(t, err)

	require.NoError(t, app1.Save(ctx, "knowledgebase_encoded", []byte("one")))

	_, err = app2.Load(ctx, "knowledgebase_encoded")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Closing a store does not close a shared backend.
	require.NoError(t, app1.Close())
	assert.False(t, backend.IsClosed())
}

func TestStore_InvalidKey(t *testing.T) {
	s := newTestStore(t)
	assert.ErrorIs(t, s.Save(context.Background(), "", []byte("x")), storage.ErrInvalidKey)
	_, err := s.Load(context.Background(), "a\x00b")
	assert.ErrorIs(t, err, storage.ErrInvalidKey)
}

func TestStore_Closed(t *testing.T) {
	s, err := NewMemoryStore()
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Load(context.Background(), "k")
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
	assert.ErrorIs(t, s.Save(context.Background(), "k", nil), storage.ErrStorageClosed)
}

func TestStore_CancelledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Save(ctx, "k", []byte("x")), context.Canceled)
}

func TestStore_Persistent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewStore(dir, "kb/")
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, "embeddings_cache", []byte("vectors")))
	require.NoError(t, s.Close())

	reopened, err := NewStore(dir, "kb/")
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Load(ctx, "embeddings_cache")
	require.NoError(t, err)
	assert.Equal(t, []byte("vectors"), got)
}

func TestWithChunkSize_Invalid(t *testing.T) {
	_, err := NewMemoryStore(WithChunkSize(0))
	assert.Error(t, err)
}

func TestManifestRoundTrip(t *testing.T) {
	m := &manifest{generation: 42, chunks: 3, size: 12_000_000}
	got, err := unmarshalManifest(marshalManifest(m))
	require.NoError(t, err)
	assert.Equal(t, m, got)

	_, err = unmarshalManifest(nil)
	assert.Error(t, err)
}
