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

package expand

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/kbindex/core"
	"github.com/poiesic/kbindex/tags"
)

// Stats summarizes one expansion.
type Stats struct {
	Records          int
	DistinctIDs      int
	SearchUnits      int
	TagCandidates    int      // tag rows before the specificity filter
	TagUnits         int      // tag rows kept
	FilteredPhrases  []string // phrases dropped as too common, sorted
	TagParseFailures int
	// TagParseErr joins every skipped payload error, nil when none failed.
	TagParseErr error
}

// Expander turns records into search units.
type Expander struct {
	pool   *ants.Pool
	logger *slog.Logger
}

// Option configures an Expander.
type Option func(*Expander) error

// WithPoolSize sets the number of workers parsing tag payloads.
// Default is runtime.NumCPU(), with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(e *Expander) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if e.pool != nil {
			e.pool.Release()
		}
		e.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Expander) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// New creates an Expander. Call Release when done.
func New(opts ...Option) (*Expander, error) {
	poolSize := runtime.NumCPU()
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	e := &Expander{
		pool:   pool,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if optErr := opt(e); optErr != nil {
			e.Release()
			return nil, optErr
		}
	}
	e.logger = e.logger.With("component", "expander")
	return e, nil
}

// Release frees the worker pool. The Expander must not be used afterwards.
func (e *Expander) Release() {
	if e.pool != nil {
		e.pool.Release()
	}
}

// Expand denormalizes records according to roles.
//
// Search-column units come first, grouped by column in role order, then tag
// units grouped the same way; within a group records keep their input order.
// A tag phrase is dropped when the number of distinct record ids carrying it
// exceeds threshold times the number of distinct ids in records.
//
// Invalid roles or threshold fail with core.ErrConfig. A malformed tag payload
// only skips that record's tags for that column and is reported in Stats.
func (e *Expander) Expand(ctx context.Context, records []core.Record, roles core.RoleMap, threshold float64) ([]core.SearchUnit, Stats, error) {
	var stats Stats
	if err := core.ValidateRoleMap(roles); err != nil {
		return nil, stats, err
	}
	if err := core.ValidateSpecificity(threshold); err != nil {
		return nil, stats, err
	}

	rows := fillMissing(records)
	ids := make([]string, len(rows))
	distinct := make(map[string]struct{}, len(rows))
	for i, r := range rows {
		ids[i] = roles.RecordID(r)
		distinct[ids[i]] = struct{}{}
	}
	stats.Records = len(rows)
	stats.DistinctIDs = len(distinct)

	var units []core.SearchUnit
	for _, col := range roles.Columns(core.RoleSearch) {
		e.logger.Debug("preparing search column", "column", col)
		for i, r := range rows {
			units = append(units, core.SearchUnit{
				RecordID:       ids[i],
				Record:         r,
				Sentence:       r.Text(col),
				SentenceSource: col,
			})
		}
	}
	stats.SearchUnits = len(units)

	limit := threshold * float64(stats.DistinctIDs)
	var parseErrs []error
	filtered := make(map[string]struct{})
	for _, col := range roles.Columns(core.RoleTags) {
		e.logger.Debug("preparing tag column", "column", col)
		phrases, errs, err := e.extractColumn(ctx, rows, col)
		if err != nil {
			return nil, stats, err
		}
		for i, perr := range errs {
			if perr == nil {
				continue
			}
			stats.TagParseFailures++
			parseErrs = append(parseErrs, fmt.Errorf("record %q column %q: %w", ids[i], col, perr))
			e.logger.Warn("skipping malformed tags", "record", ids[i], "column", col, "err", perr)
		}

		// Pass 1: distinct ids per phrase.
		holders := make(map[string]map[string]struct{})
		for i, list := range phrases {
			for _, p := range list {
				set, ok := holders[p]
				if !ok {
					set = make(map[string]struct{})
					holders[p] = set
				}
				set[ids[i]] = struct{}{}
				stats.TagCandidates++
			}
		}

		// Pass 2: keep phrases at or under the limit.
		for i, list := range phrases {
			for _, p := range list {
				if float64(len(holders[p])) > limit {
					filtered[p] = struct{}{}
					continue
				}
				units = append(units, core.SearchUnit{
					RecordID:       ids[i],
					Record:         rows[i],
					Sentence:       p,
					SentenceSource: col,
				})
				stats.TagUnits++
			}
		}
	}

	stats.FilteredPhrases = make([]string, 0, len(filtered))
	for p := range filtered {
		stats.FilteredPhrases = append(stats.FilteredPhrases, p)
	}
	sort.Strings(stats.FilteredPhrases)
	stats.TagParseErr = errors.Join(parseErrs...)

	e.logger.Info("expanded records",
		"records", stats.Records,
		"search_units", stats.SearchUnits,
		"tag_units", stats.TagUnits,
		"filtered_phrases", len(stats.FilteredPhrases),
		"tag_parse_failures", stats.TagParseFailures)

	return units, stats, nil
}

// extractColumn parses the tag payload of column for every row on the pool.
// Results are indexed like rows.
func (e *Expander) extractColumn(ctx context.Context, rows []core.Record, column string) ([][]string, []error, error) {
	phrases := make([][]string, len(rows))
	errs := make([]error, len(rows))

	var wg sync.WaitGroup
	for i, r := range rows {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, nil, err
		}
		wg.Add(1)
		payload := r.Text(column)
		submitErr := e.pool.Submit(func() {
			defer wg.Done()
			phrases[i], errs[i] = tags.Extract(payload)
		})
		if submitErr != nil {
			wg.Done()
			wg.Wait()
			return nil, nil, fmt.Errorf("failed to schedule tag parsing: %w", submitErr)
		}
	}
	wg.Wait()
	return phrases, errs, nil
}

// fillMissing returns copies of records that all carry the union of columns,
// absent values set to "".
func fillMissing(records []core.Record) []core.Record {
	columns := make(map[string]struct{})
	for _, r := range records {
		for k := range r {
			columns[k] = struct{}{}
		}
	}

	out := make([]core.Record, len(records))
	for i, r := range records {
		filled := make(core.Record, len(columns))
		for k := range columns {
			filled[k] = r[k]
		}
		out[i] = filled
	}
	return out
}
