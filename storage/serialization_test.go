package storage

import (
	"testing"
	"time"

	"github.com/poiesic/kbindex/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddingMapRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		m    core.EmbeddingMap
	}{
		{"empty", core.EmbeddingMap{}},
		{"single", core.EmbeddingMap{"hello world": {0.1, 0.2, 0.3}}},
		{"zero-length vector", core.EmbeddingMap{"blank": {}}},
		{"many", core.EmbeddingMap{
			"a":           {1, 0},
			"b":           {0, 1},
			"":            {0.5, 0.5},
			"férias café": {-1.25, 3e-8},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := EncodeEmbeddingMap(tt.m)
			require.NoError(t, err)
			require.NotEmpty(t, blob)

			decoded, err := DecodeEmbeddingMap(blob)
			require.NoError(t, err)
			assert.Equal(t, tt.m, decoded)
		})
	}
}

func TestEncodeEmbeddingMap_Deterministic(t *testing.T) {
	m := core.EmbeddingMap{}
	for _, k := range []string{"z", "y", "x", "w", "v", "u"} {
		m[k] = []float32{float32(len(k)), 1}
	}
	first, err := EncodeEmbeddingMap(m)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := EncodeEmbeddingMap(m)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestDecodeEmbeddingMap_Invalid(t *testing.T) {
	valid, err := EncodeEmbeddingMap(core.EmbeddingMap{"a": {1, 2}})
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty data", []byte{}},
		{"not zstd", []byte("pickle")},
		{"truncated", valid[:len(valid)-3]},
		{"unknown format", mustCompress(t, append([]byte{byte(len("other"))}, "other"...))},
		{"missing entries", mustCompress(t, append(append([]byte{byte(len(embeddingMapFormat))}, embeddingMapFormat...), 5))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEmbeddingMap(tt.data)
			assert.ErrorIs(t, err, ErrSerializationFailed)
		})
	}
}

func mustCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	return compress(data)
}

func testIndex() *core.Index {
	return &core.Index{
		BuildID:     "0b6b1f06-7f3b-4d3c-9a4e-3c1f3f1c2a10",
		CreatedAt:   time.Date(2025, 6, 1, 10, 30, 0, 123000, time.UTC),
		PreprocMode: "Advanced",
		Fields: core.RoleMap{
			ID:      core.Multiple("org", "code"),
			Search:  core.Single("q"),
			Content: core.Single("body"),
			Tags:    core.Single("tags"),
		},
		Entries: []core.IndexEntry{
			{
				UnitID:         core.UnitID("acme-1", "q", "hello world"),
				RecordID:       "acme-1",
				Sentence:       "hello world",
				SentenceSource: "q",
				Attributes:     core.Record{"org": "acme", "code": "1", "q": "Héllo wôrld", "body": "b"},
				Embedding:      []float32{0.1, 0.2},
			},
			{
				UnitID:         core.UnitID("acme-1", "tags", "foo bar"),
				RecordID:       "acme-1",
				Sentence:       "foo bar",
				SentenceSource: "tags",
				Attributes:     core.Record{"org": "acme"},
				Embedding:      []float32{0.3, 0.4},
			},
		},
	}
}

func TestIndexRoundTrip(t *testing.T) {
	idx := testIndex()

	blob, err := EncodeIndex(idx)
	require.NoError(t, err)

	decoded, err := DecodeIndex(blob)
	require.NoError(t, err)

	assert.Equal(t, idx.BuildID, decoded.BuildID)
	assert.True(t, idx.CreatedAt.Equal(decoded.CreatedAt))
	assert.Equal(t, idx.PreprocMode, decoded.PreprocMode)
	assert.Equal(t, idx.Entries, decoded.Entries)

	assert.Equal(t, []string{"org", "code"}, decoded.Fields.Columns(core.RoleID))
	assert.True(t, decoded.Fields.ID.IsMultiple())
	assert.Equal(t, []string{"q"}, decoded.Fields.Columns(core.RoleSearch))
	assert.False(t, decoded.Fields.Search.IsMultiple())
	assert.Equal(t, []string{"body"}, decoded.Fields.Columns(core.RoleContent))
	assert.True(t, decoded.Fields.Filter.IsEmpty())
	assert.Equal(t, []string{"tags"}, decoded.Fields.Columns(core.RoleTags))
}

func TestIndexRoundTrip_Empty(t *testing.T) {
	blob, err := EncodeIndex(&core.Index{})
	require.NoError(t, err)

	decoded, err := DecodeIndex(blob)
	require.NoError(t, err)
	assert.Empty(t, decoded.Entries)
	assert.Empty(t, decoded.BuildID)
}

func TestEncodeIndex_Nil(t *testing.T) {
	_, err := EncodeIndex(nil)
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestDecodeIndex_Invalid(t *testing.T) {
	valid, err := EncodeIndex(testIndex())
	require.NoError(t, err)

	raw, err := decompress(valid)
	require.NoError(t, err)

	t.Run("truncated payload", func(t *testing.T) {
		_, err := DecodeIndex(compress(raw[:len(raw)/2]))
		assert.ErrorIs(t, err, ErrSerializationFailed)
	})

	t.Run("trailing bytes", func(t *testing.T) {
		_, err := DecodeIndex(compress(append(append([]byte{}, raw...), 0)))
		assert.ErrorIs(t, err, ErrSerializationFailed)
	})

	t.Run("embedding map is not an index", func(t *testing.T) {
		cache, err := EncodeEmbeddingMap(core.EmbeddingMap{"a": {1}})
		require.NoError(t, err)
		_, err = DecodeIndex(cache)
		assert.ErrorIs(t, err, ErrSerializationFailed)
		assert.Contains(t, err.Error(), "unexpected blob format")
	})
}
