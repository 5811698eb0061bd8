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
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/kbindex/core"
	"github.com/poiesic/kbindex/embedcache"
	"github.com/poiesic/kbindex/expand"
	"github.com/poiesic/kbindex/normalize"
)

// Params are the per-build settings.
type Params struct {
	Roles     core.RoleMap
	Mode      normalize.Mode
	Stopwords normalize.Stopwords
	Threshold float64
	UseCache  bool
}

// Report summarizes a build.
type Report struct {
	Expand        expand.Stats
	DistinctTexts int
	CachedTexts   int
	ComputedTexts int
	CacheReset    bool
}

// Builder produces an Index from records.
type Builder struct {
	expander *expand.Expander
	cache    *embedcache.Cache
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Builder.
func New(expander *expand.Expander, cache *embedcache.Cache, logger *slog.Logger) (*Builder, error) {
	if expander == nil || cache == nil {
		return nil, core.ConfigErrorf("builder requires an expander and an embedding cache")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		expander: expander,
		cache:    cache,
		logger:   logger.With("component", "builder"),
		now:      time.Now,
	}, nil
}

// Build runs expansion, normalization and embedding resolution over records.
// Every unit yields exactly one entry; units with equal normalized sentences
// share the same vector.
func (b *Builder) Build(ctx context.Context, records []core.Record, p Params) (*core.Index, *Report, error) {
	units, stats, err := b.expander.Expand(ctx, records, p.Roles, p.Threshold)
	if err != nil {
		return nil, nil, err
	}
	report := &Report{Expand: stats}

	norm := normalize.New(p.Mode, p.Stopwords)
	sentences := make([]string, len(units))
	var distinct []string
	seen := make(map[string]struct{}, len(units))
	for i := range units {
		s := norm.Normalize(units[i].Sentence)
		sentences[i] = s
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			distinct = append(distinct, s)
		}
	}
	report.DistinctTexts = len(distinct)

	res, err := b.cache.Resolve(ctx, distinct, p.UseCache)
	if err != nil {
		return nil, nil, err
	}
	report.CachedTexts = res.Cached
	report.ComputedTexts = res.Computed
	report.CacheReset = res.Reset

	idx := &core.Index{
		BuildID:     uuid.NewString(),
		CreatedAt:   b.now().UTC().Truncate(time.Microsecond),
		PreprocMode: p.Mode.String(),
		Fields:      p.Roles,
		Entries:     make([]core.IndexEntry, len(units)),
	}
	for i, u := range units {
		vec, ok := res.Embeddings[sentences[i]]
		if !ok {
			return nil, nil, fmt.Errorf("no embedding resolved for %q", sentences[i])
		}
		idx.Entries[i] = core.IndexEntry{
			UnitID:         core.UnitID(u.RecordID, u.SentenceSource, sentences[i]),
			RecordID:       u.RecordID,
			Sentence:       sentences[i],
			SentenceSource: u.SentenceSource,
			Attributes:     u.Record,
			Embedding:      vec,
		}
	}

	b.logger.Info("index built",
		"build_id", idx.BuildID,
		"entries", len(idx.Entries),
		"distinct_texts", report.DistinctTexts,
		"computed", report.ComputedTexts,
	)
	return idx, report, nil
}
