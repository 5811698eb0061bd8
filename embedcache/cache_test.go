package embedcache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/poiesic/kbindex/ai/mock"
	"github.com/poiesic/kbindex/core"
	"github.com/poiesic/kbindex/storage"
	"github.com/poiesic/kbindex/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore counts saves made through it.
type countingStore struct {
	storage.ObjectStore
	saves atomic.Int32
}

func (s *countingStore) Save(ctx context.Context, key string, data []byte) error {
	s.saves.Add(1)
	return s.ObjectStore.Save(ctx, key, data)
}

func setup(t *testing.T) (*Cache, *countingStore, *mock.MockEmbedder) {
	t.Helper()
	bs, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { bs.Close() })

	store := &countingStore{ObjectStore: bs}
	emb := mock.NewMockEmbedder()
	emb.Dimension = 4

	c, err := New(store, "", emb, nil)
	require.NoError(t, err)
	return c, store, emb
}

func seed(t *testing.T, c *Cache, store *countingStore, texts ...string) core.EmbeddingMap {
	t.Helper()
	m := core.EmbeddingMap{}
	for _, text := range texts {
		m[text] = mock.Vector(text, 4)
	}
	require.NoError(t, c.Save(context.Background(), m))
	store.saves.Store(0)
	return m
}

func TestNew_Validation(t *testing.T) {
	bs, err := badger.NewMemoryStore()
	require.NoError(t, err)
	defer bs.Close()

	_, err = New(nil, "", mock.NewMockEmbedder(), nil)
	assert.ErrorIs(t, err, core.ErrConfig)
	c, err := New(bs, "", mock.NewMockEmbedder(), nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultKey, c.Key())

	inspect, err := New(bs, "custom", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "custom", inspect.Key())
	_, err = inspect.Resolve(context.Background(), nil, true)
	assert.NoError(t, err)
	_, err = inspect.Resolve(context.Background(), []string{"x"}, true)
	assert.ErrorIs(t, err, core.ErrConfig)
}

func TestResolve_OnlyComputesDelta(t *testing.T) {
	c, store, emb := setup(t)
	seed(t, c, store, "A", "B")

	res, err := c.Resolve(context.Background(), []string{"A", "B", "C"}, true)
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"C"}}, emb.Calls())
	assert.Equal(t, 2, res.Cached)
	assert.Equal(t, 1, res.Computed)
	assert.True(t, res.Saved)
	assert.False(t, res.Reset)
	for _, text := range []string{"A", "B", "C"} {
		assert.Equal(t, mock.Vector(text, 4), res.Embeddings[text], text)
	}

	persisted, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, persisted, 3)
	assert.Equal(t, int32(1), store.saves.Load())
}

func TestResolve_WarmCacheIsNoOp(t *testing.T) {
	c, store, emb := setup(t)
	seed(t, c, store, "A", "B", "stale")

	res, err := c.Resolve(context.Background(), []string{"B", "A"}, true)
	require.NoError(t, err)

	assert.Zero(t, emb.CallCount())
	assert.Zero(t, store.saves.Load())
	assert.False(t, res.Saved)
	// stale entries are returned too
	assert.Len(t, res.Embeddings, 3)
}

func TestResolve_MissingCache(t *testing.T) {
	c, _, emb := setup(t)

	res, err := c.Resolve(context.Background(), []string{"x", "y", "x"}, true)
	require.NoError(t, err)
	assert.True(t, res.Reset)
	assert.Equal(t, [][]string{{"x", "y"}}, emb.Calls())
	assert.Len(t, res.Embeddings, 2)
}

func TestResolve_CorruptCacheResets(t *testing.T) {
	c, store, emb := setup(t)
	require.NoError(t, store.Save(context.Background(), DefaultKey, []byte("garbage")))

	_, err := c.Load(context.Background())
	assert.ErrorIs(t, err, core.ErrCacheLoad)

	res, err := c.Resolve(context.Background(), []string{"x"}, true)
	require.NoError(t, err)
	assert.True(t, res.Reset)
	assert.Equal(t, 1, emb.CallCount())

	persisted, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, mock.Vector("x", 4), persisted["x"])
}

func TestResolve_CacheDisabled(t *testing.T) {
	c, store, emb := setup(t)
	seed(t, c, store, "A")

	res, err := c.Resolve(context.Background(), []string{"A", "B"}, false)
	require.NoError(t, err)
	assert.True(t, res.Reset)
	assert.Zero(t, res.Cached)
	assert.Equal(t, [][]string{{"A", "B"}}, emb.Calls())
	assert.Equal(t, int32(1), store.saves.Load())
}

func TestResolve_EmptyInput(t *testing.T) {
	c, store, emb := setup(t)

	res, err := c.Resolve(context.Background(), nil, true)
	require.NoError(t, err)
	assert.Empty(t, res.Embeddings)
	assert.Zero(t, emb.CallCount())
	assert.Zero(t, store.saves.Load())
}

func TestResolve_OracleErrors(t *testing.T) {
	t.Run("failure", func(t *testing.T) {
		c, store, emb := setup(t)
		boom := errors.New("model down")
		emb.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
			return nil, boom
		}
		_, err := c.Resolve(context.Background(), []string{"x"}, true)
		assert.ErrorIs(t, err, boom)
		assert.Zero(t, store.saves.Load())
	})

	t.Run("length mismatch", func(t *testing.T) {
		c, store, emb := setup(t)
		emb.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
			return [][]float32{{1}}, nil
		}
		_, err := c.Resolve(context.Background(), []string{"x", "y"}, true)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 vectors for 2 texts")
		assert.Zero(t, store.saves.Load())
	})
}

func TestCache_RoundTrip(t *testing.T) {
	c, store, _ := setup(t)
	want := seed(t, c, store, "hello world", "", "folha pagamento")

	got, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestPending(t *testing.T) {
	m := core.EmbeddingMap{"a": {1}}
	assert.Equal(t, []string{"b", "A"}, Pending(m, []string{"a", "b", "A", "b"}))
	assert.Nil(t, Pending(m, []string{"a"}))
}

func TestDescribe(t *testing.T) {
	c, store, _ := setup(t)

	_, err := c.Describe(context.Background())
	assert.ErrorIs(t, err, storage.ErrNotFound)

	seed(t, c, store, "b", "a")
	info, err := c.Describe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, info.Entries)
	assert.Equal(t, 4, info.Dimension)
	assert.Equal(t, []string{"a", "b"}, info.Texts)
}
