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

// Package kbindex builds knowledge-base embedding indexes.
//
// An Indexer reads the records of a staging table, expands them into search
// units, embeds their normalized text through an incremental cache and
// publishes the resulting index.
package kbindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/poiesic/kbindex/ai"
	"github.com/poiesic/kbindex/ai/openai"
	"github.com/poiesic/kbindex/builder"
	"github.com/poiesic/kbindex/config"
	"github.com/poiesic/kbindex/core"
	"github.com/poiesic/kbindex/embedcache"
	"github.com/poiesic/kbindex/expand"
	"github.com/poiesic/kbindex/ingestion"
	"github.com/poiesic/kbindex/normalize"
	"github.com/poiesic/kbindex/storage"
	"github.com/poiesic/kbindex/storage/badger"
	"github.com/poiesic/kbindex/storage/minio"
	"github.com/poiesic/kbindex/storage/s3"
)

// Indexer runs index builds for one set of settings.
type Indexer struct {
	settings   *config.Settings
	resolved   *config.Resolved
	stopwords  normalize.Stopwords
	store      storage.ObjectStore
	ownsStore  bool
	source     ingestion.Source
	embedder   ai.Embedder
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithStore uses store instead of the configured backend. The caller keeps ownership.
func WithStore(store storage.ObjectStore) Option {
	return func(ix *Indexer) {
		ix.store = store
	}
}

// WithSource uses src instead of the configured record source.
func WithSource(src ingestion.Source) Option {
	return func(ix *Indexer) {
		ix.source = src
	}
}

// WithEmbedder uses e instead of the configured embedding service.
func WithEmbedder(e ai.Embedder) Option {
	return func(ix *Indexer) {
		ix.embedder = e
	}
}

// WithHTTPClient sets the client used for the refresh notification.
func WithHTTPClient(client *http.Client) Option {
	return func(ix *Indexer) {
		ix.httpClient = client
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(ix *Indexer) {
		if logger != nil {
			ix.logger = logger
		}
	}
}

// NewIndexer validates settings and wires the collaborators. Configuration
// errors are reported before any store, source or model is contacted.
func NewIndexer(ctx context.Context, settings *config.Settings, opts ...Option) (*Indexer, error) {
	if settings == nil {
		return nil, core.ConfigErrorf("settings are required")
	}
	resolved, err := settings.Validate()
	if err != nil {
		return nil, err
	}
	stopwords, err := normalize.ForMode(resolved.Mode, settings.StopwordsFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrConfig, err)
	}

	ix := &Indexer{
		settings:  settings,
		resolved:  resolved,
		stopwords: stopwords,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	ix.logger = ix.logger.With("component", "indexer")

	if ix.embedder == nil {
		ix.embedder, err = openai.NewEmbedder(settings.AIConfig(resolved.Model))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrConfig, err)
		}
	}
	if ix.source == nil {
		ix.source = NewSource(settings)
	}
	if ix.store == nil {
		ix.store, err = OpenStore(ctx, settings, ix.logger)
		if err != nil {
			return nil, err
		}
		ix.ownsStore = true
	}
	return ix, nil
}

// Close releases the store if the Indexer opened it.
func (ix *Indexer) Close() error {
	if ix.ownsStore {
		return ix.store.Close()
	}
	return nil
}

// Result describes a completed run.
type Result struct {
	Records  int
	Index    *core.Index
	Report   *builder.Report
	IndexKey string // "" when the index was not persisted
}

// Run fetches records, builds the index and publishes it. A failed fetch
// yields an empty index. When only the refresh notification fails the
// Result is returned together with a *core.PublishError.
func (ix *Indexer) Run(ctx context.Context) (*Result, error) {
	s := ix.settings
	records := ingestion.Fetch(ctx, ix.source, ix.resolved.Staging, ix.logger)

	expOpts := []expand.Option{expand.WithLogger(ix.logger)}
	if s.WorkerPoolSize > 0 {
		expOpts = append(expOpts, expand.WithPoolSize(s.WorkerPoolSize))
	}
	expander, err := expand.New(expOpts...)
	if err != nil {
		return nil, err
	}
	defer expander.Release()

	cache, err := embedcache.New(ix.store, s.Keys.EmbeddingCache, ix.embedder, ix.logger)
	if err != nil {
		return nil, err
	}
	b, err := builder.New(expander, cache, ix.logger)
	if err != nil {
		return nil, err
	}

	idx, report, err := b.Build(ctx, records, builder.Params{
		Roles:     ix.resolved.Roles,
		Mode:      ix.resolved.Mode,
		Stopwords: ix.stopwords,
		Threshold: s.SpecificityThreshold,
		UseCache:  s.UseCache(),
	})
	if err != nil {
		return nil, err
	}

	pub := builder.NewPublisher(ix.store,
		builder.WithAppName(s.AppName),
		builder.WithIndexKey(s.Keys.Index),
		builder.WithRefreshURL(s.RefreshURL),
		builder.WithHTTPClient(ix.httpClient),
		builder.WithPublishLogger(ix.logger),
	)
	res := &Result{Records: len(records), Index: idx, Report: report, IndexKey: pub.IndexKey()}
	if err := pub.Publish(ctx, idx); err != nil {
		var pe *core.PublishError
		if errors.As(err, &pe) {
			return res, err
		}
		return nil, err
	}
	return res, nil
}

// NewSource returns the record source selected by settings.
func NewSource(settings *config.Settings) ingestion.Source {
	if settings.Source.Kind == config.SourceXLSX {
		return ingestion.NewXLSXSource(settings.Source.Root)
	}
	return ingestion.NewSQLiteSource(settings.Source.Root)
}

// OpenStore opens the object store selected by settings.
func OpenStore(ctx context.Context, settings *config.Settings, logger *slog.Logger) (storage.ObjectStore, error) {
	sc := settings.Storage
	switch sc.Backend {
	case config.BackendMinio:
		store, err := minio.Open(minio.Config{
			Endpoint:  sc.Endpoint,
			AccessKey: sc.AccessKey,
			SecretKey: sc.SecretKey,
			Secure:    sc.Secure,
			Region:    sc.Region,
			Bucket:    sc.Bucket,
			Prefix:    sc.Prefix,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendS3:
		store, err := s3.Open(ctx, s3.Config{Bucket: sc.Bucket, Prefix: sc.Prefix, Region: sc.Region})
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendBadger, "":
		store, err := badger.NewStore(sc.Path, sc.Prefix, badger.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return nil, core.ConfigErrorf("unknown storage.backend %q", sc.Backend)
}
