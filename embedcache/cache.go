// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package embedcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/poiesic/kbindex/ai"
	"github.com/poiesic/kbindex/core"
	"github.com/poiesic/kbindex/storage"
)

// DefaultKey is the storage key of the embedding cache.
const DefaultKey = "embeddings_cache"

// Result describes one Resolve call.
type Result struct {
	Embeddings core.EmbeddingMap
	Cached     int  // entries available before the oracle call
	Computed   int  // entries computed by this call
	Reset      bool // the previous cache was unusable or disabled
	Saved      bool
}

// Cache maps normalized text to embedding vectors and persists them across builds.
type Cache struct {
	store    storage.ObjectStore
	key      string
	embedder ai.Embedder
	logger   *slog.Logger
}

// New creates a Cache persisted under key in store. An empty key uses DefaultKey.
// embedder may be nil for a cache that is only inspected.
func New(store storage.ObjectStore, key string, embedder ai.Embedder, logger *slog.Logger) (*Cache, error) {
	if store == nil {
		return nil, core.ConfigErrorf("embedding cache requires a store")
	}
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		store:    store,
		key:      key,
		embedder: embedder,
		logger:   logger.With("component", "embedding_cache", "key", key),
	}, nil
}

// Key returns the storage key.
func (c *Cache) Key() string {
	return c.key
}

// Load reads the persisted mapping. A missing cache is ErrNotFound from the
// store; any other read or decode failure wraps core.ErrCacheLoad.
func (c *Cache) Load(ctx context.Context) (core.EmbeddingMap, error) {
	data, err := c.store.Load(ctx, c.key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", core.ErrCacheLoad, err)
	}
	m, err := storage.DecodeEmbeddingMap(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrCacheLoad, err)
	}
	return m, nil
}

// Save replaces the persisted mapping with m.
func (c *Cache) Save(ctx context.Context, m core.EmbeddingMap) error {
	data, err := storage.EncodeEmbeddingMap(m)
	if err != nil {
		return err
	}
	if err := c.store.Save(ctx, c.key, data); err != nil {
		return fmt.Errorf("failed to save embedding cache: %w", err)
	}
	return nil
}

// Resolve returns a mapping covering every text in distinct.
//
// With useCache the persisted mapping is loaded first; a missing or unreadable
// cache is replaced by an empty one. Texts not yet present are embedded in a
// single oracle call, merged, and the whole mapping is saved back. When
// nothing is pending neither the oracle nor the store is written to.
// Existing entries are never altered or removed.
func (c *Cache) Resolve(ctx context.Context, distinct []string, useCache bool) (*Result, error) {
	res := &Result{}

	var existing core.EmbeddingMap
	if useCache {
		m, err := c.Load(ctx)
		switch {
		case err == nil:
			existing = m
		case errors.Is(err, storage.ErrNotFound):
			c.logger.Warn("no embedding cache found, starting empty")
			res.Reset = true
		default:
			c.logger.Warn("embedding cache unreadable, resetting", "error", err)
			res.Reset = true
		}
	} else {
		c.logger.Warn("embedding cache disabled, recomputing every embedding; this is resource-intensive")
		res.Reset = true
	}
	if existing == nil {
		existing = core.EmbeddingMap{}
	}
	res.Cached = len(existing)

	pending := Pending(existing, distinct)
	c.logger.Info("resolving embeddings", "distinct", len(distinct), "cached", res.Cached, "pending", len(pending))
	if len(pending) == 0 {
		res.Embeddings = existing
		return res, nil
	}

	if c.embedder == nil {
		return nil, core.ConfigErrorf("%d texts need embedding but no embedder is configured", len(pending))
	}
	c.logger.Debug("calling embedding model", "texts", len(pending))
	vectors, err := c.embedder.EmbedTexts(ctx, pending)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %d texts: %w", len(pending), err)
	}
	if len(vectors) != len(pending) {
		return nil, fmt.Errorf("embedding model returned %d vectors for %d texts", len(vectors), len(pending))
	}
	for i, text := range pending {
		existing[text] = vectors[i]
	}
	res.Computed = len(pending)

	if err := c.Save(ctx, existing); err != nil {
		return nil, err
	}
	res.Saved = true
	res.Embeddings = existing
	return res, nil
}

// Pending returns the texts of distinct missing from m, deduplicated and in
// first-seen order.
func Pending(m core.EmbeddingMap, distinct []string) []string {
	seen := make(map[string]struct{}, len(distinct))
	var pending []string
	for _, text := range distinct {
		if _, ok := m[text]; ok {
			continue
		}
		if _, ok := seen[text]; ok {
			continue
		}
		seen[text] = struct{}{}
		pending = append(pending, text)
	}
	return pending
}

// Info summarizes a persisted cache.
type Info struct {
	Entries   int
	Dimension int // 0 when empty or dimensions differ
	Texts     []string
}

// Describe loads the cache and summarizes it.
func (c *Cache) Describe(ctx context.Context) (*Info, error) {
	m, err := c.Load(ctx)
	if err != nil {
		return nil, err
	}
	info := &Info{Entries: len(m), Texts: make([]string, 0, len(m))}
	dim := -1
	for text, v := range m {
		info.Texts = append(info.Texts, text)
		switch {
		case dim == -1:
			dim = len(v)
		case dim != len(v):
			dim = 0
		}
	}
	if dim > 0 {
		info.Dimension = dim
	}
	sort.Strings(info.Texts)
	return info, nil
}
