package builder

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/kbindex/ai/mock"
	"github.com/poiesic/kbindex/core"
	"github.com/poiesic/kbindex/embedcache"
	"github.com/poiesic/kbindex/expand"
	"github.com/poiesic/kbindex/normalize"
	"github.com/poiesic/kbindex/storage"
	"github.com/poiesic/kbindex/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	builder  *Builder
	store    *badger.Store
	embedder *mock.MockEmbedder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	exp, err := expand.New(expand.WithPoolSize(2))
	require.NoError(t, err)
	t.Cleanup(exp.Release)

	emb := mock.NewMockEmbedder()
	emb.Dimension = 8
	cache, err := embedcache.New(store, "", emb, nil)
	require.NoError(t, err)

	b, err := New(exp, cache, nil)
	require.NoError(t, err)
	b.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 123456789, time.FixedZone("x", 3600)) }
	return &fixture{builder: b, store: store, embedder: emb}
}

func helloRecords() []core.Record {
	return []core.Record{
		{"id": "1", "q": "Héllo wôrld", "tags": `["foo_bar"]`},
		{"id": "2", "q": "héllo wôrld", "tags": `["foo_bar"]`},
	}
}

func helloRoles() core.RoleMap {
	return core.RoleMap{ID: core.Single("id"), Search: core.Single("q"), Tags: core.Single("tags")}
}

func TestBuild_EndToEnd(t *testing.T) {
	f := newFixture(t)

	idx, report, err := f.builder.Build(context.Background(), helloRecords(), Params{
		Roles:     helloRoles(),
		Mode:      normalize.ModeAdvanced,
		Threshold: 0.5,
		UseCache:  true,
	})
	require.NoError(t, err)

	require.Len(t, idx.Entries, 2)
	for _, e := range idx.Entries {
		assert.Equal(t, "hello world", e.Sentence)
		assert.Equal(t, "q", e.SentenceSource)
	}
	assert.Equal(t, "1", idx.Entries[0].RecordID)
	assert.Equal(t, "2", idx.Entries[1].RecordID)
	assert.Equal(t, idx.Entries[0].Embedding, idx.Entries[1].Embedding)
	assert.NotEqual(t, idx.Entries[0].UnitID, idx.Entries[1].UnitID)

	assert.Equal(t, [][]string{{"hello world"}}, f.embedder.Calls())
	assert.Equal(t, []string{"foo bar"}, report.Expand.FilteredPhrases)
	assert.Equal(t, 1, report.DistinctTexts)
	assert.Equal(t, 1, report.ComputedTexts)

	assert.Equal(t, "Advanced", idx.PreprocMode)
	assert.NotEmpty(t, idx.BuildID)
	assert.Equal(t, time.Date(2025, 3, 1, 11, 0, 0, 123456000, time.UTC), idx.CreatedAt)
	assert.Equal(t, helloRoles(), idx.Fields)
}

func TestBuild_BasicModeKeepsCase(t *testing.T) {
	f := newFixture(t)

	idx, _, err := f.builder.Build(context.Background(), helloRecords(), Params{
		Roles:     helloRoles(),
		Mode:      normalize.ModeBasic,
		Threshold: 0.5,
		UseCache:  true,
	})
	require.NoError(t, err)

	require.Len(t, idx.Entries, 2)
	assert.Equal(t, "Hello world", idx.Entries[0].Sentence)
	assert.Equal(t, "hello world", idx.Entries[1].Sentence)
	require.Len(t, f.embedder.Calls(), 1)
	assert.ElementsMatch(t, []string{"Hello world", "hello world"}, f.embedder.Calls()[0])
}

func TestBuild_SecondRunUsesCache(t *testing.T) {
	f := newFixture(t)
	p := Params{Roles: helloRoles(), Mode: normalize.ModeAdvanced, Threshold: 1, UseCache: true}

	first, _, err := f.builder.Build(context.Background(), helloRecords(), p)
	require.NoError(t, err)
	require.Len(t, first.Entries, 4)
	assert.Equal(t, 1, f.embedder.CallCount())

	records := append(helloRecords(), core.Record{"id": "3", "q": "Folha de pagamento"})
	second, report, err := f.builder.Build(context.Background(), records, p)
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"hello world", "foo bar"}, {"folha de pagamento"}}, f.embedder.Calls())
	assert.Equal(t, 2, report.CachedTexts)
	assert.Equal(t, 1, report.ComputedTexts)
	assert.Equal(t, first.Entries[0].UnitID, second.Entries[0].UnitID)
	assert.NotEqual(t, first.BuildID, second.BuildID)
}

func TestBuild_StopwordsAndEmptySentences(t *testing.T) {
	f := newFixture(t)

	records := []core.Record{
		{"id": "1", "q": "de"},
		{"id": "2"},
	}
	idx, _, err := f.builder.Build(context.Background(), records, Params{
		Roles:     core.RoleMap{ID: core.Single("id"), Search: core.Single("q")},
		Mode:      normalize.ModeAdvanced,
		Stopwords: normalize.NewStopwords("de"),
		Threshold: 0.3,
		UseCache:  true,
	})
	require.NoError(t, err)

	require.Len(t, idx.Entries, 2)
	assert.Equal(t, "", idx.Entries[0].Sentence)
	assert.Equal(t, "", idx.Entries[1].Sentence)
	assert.Equal(t, [][]string{{""}}, f.embedder.Calls())
}

func TestBuild_EmptyInput(t *testing.T) {
	f := newFixture(t)

	idx, _, err := f.builder.Build(context.Background(), nil, Params{
		Roles:     helloRoles(),
		Threshold: 0.3,
		UseCache:  true,
	})
	require.NoError(t, err)
	assert.Empty(t, idx.Entries)
	assert.Zero(t, f.embedder.CallCount())
}

func TestBuild_ConfigErrorBeforeOracle(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.builder.Build(context.Background(), helloRecords(), Params{
		Roles:     core.RoleMap{Search: core.Single("q")},
		Threshold: 0.3,
	})
	assert.ErrorIs(t, err, core.ErrConfig)
	assert.ErrorIs(t, err, core.ErrMissingIDRole)
	assert.Zero(t, f.embedder.CallCount())

	_, err = f.store.Load(context.Background(), embedcache.DefaultKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(nil, nil, nil)
	assert.ErrorIs(t, err, core.ErrConfig)
}
