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

package builder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"time"

	"github.com/poiesic/kbindex/core"
	"github.com/poiesic/kbindex/storage"
)

// DefaultIndexKey is the object name of the published index.
const DefaultIndexKey = "knowledgebase_encoded"

// DefaultRefreshTimeout bounds the refresh request when no client is supplied.
const DefaultRefreshTimeout = 30 * time.Second

// Publisher persists an index and notifies the serving side.
type Publisher struct {
	store    storage.ObjectStore
	client   *http.Client
	appName  string
	indexKey string
	refresh  string
	logger   *slog.Logger
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithAppName namespaces the index key. Without an app name the index is not persisted.
func WithAppName(name string) PublisherOption {
	return func(p *Publisher) {
		p.appName = name
	}
}

// WithIndexKey overrides DefaultIndexKey.
func WithIndexKey(key string) PublisherOption {
	return func(p *Publisher) {
		if key != "" {
			p.indexKey = key
		}
	}
}

// WithRefreshURL sets the URL notified after a build.
func WithRefreshURL(url string) PublisherOption {
	return func(p *Publisher) {
		p.refresh = url
	}
}

// WithHTTPClient sets the client used for the refresh request.
func WithHTTPClient(client *http.Client) PublisherOption {
	return func(p *Publisher) {
		if client != nil {
			p.client = client
		}
	}
}

// WithPublishLogger sets a custom logger.
func WithPublishLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPublisher creates a Publisher writing to store.
func NewPublisher(store storage.ObjectStore, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		store:    store,
		client:   &http.Client{Timeout: DefaultRefreshTimeout},
		indexKey: DefaultIndexKey,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "publisher")
	return p
}

// IndexKey returns the key the index is persisted under, "" when persisting is disabled.
func (p *Publisher) IndexKey() string {
	if p.appName == "" {
		return ""
	}
	return path.Join(p.appName, p.indexKey)
}

// Publish saves idx under IndexKey, fully replacing the previous index, then
// issues the refresh GET. Both steps are optional. A refresh that fails or
// answers with a non-2xx status is returned as *core.PublishError.
func (p *Publisher) Publish(ctx context.Context, idx *core.Index) error {
	key := p.IndexKey()
	if key != "" {
		if p.store == nil {
			return core.ConfigErrorf("app_name %q is set but no store is configured", p.appName)
		}
		data, err := storage.EncodeIndex(idx)
		if err != nil {
			return err
		}
		if err := p.store.Save(ctx, key, data); err != nil {
			return fmt.Errorf("failed to persist index under %q: %w", key, err)
		}
		p.logger.Info("index persisted", "key", key, "entries", len(idx.Entries), "bytes", len(data))
	}

	if p.refresh == "" {
		return nil
	}
	return p.notify(ctx, key)
}

func (p *Publisher) notify(ctx context.Context, key string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.refresh, nil)
	if err != nil {
		return &core.PublishError{IndexKey: key, RefreshURL: p.refresh, Err: err}
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return &core.PublishError{IndexKey: key, RefreshURL: p.refresh, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &core.PublishError{IndexKey: key, RefreshURL: p.refresh, StatusCode: resp.StatusCode}
	}
	p.logger.Info("refresh notified", "url", p.refresh, "status", resp.StatusCode)
	return nil
}
