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
	"fmt"
	"testing"

	"github.com/poiesic/kbindex/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExpander(t *testing.T) *Expander {
	t.Helper()
	e, err := New(WithPoolSize(2))
	require.NoError(t, err)
	t.Cleanup(e.Release)
	return e
}

func sentences(units []core.SearchUnit) []string {
	out := make([]string, len(units))
	for i, u := range units {
		out[i] = u.SentenceSource + ":" + u.Sentence
	}
	return out
}

func TestExpand_SearchColumns(t *testing.T) {
	e := newTestExpander(t)
	records := []core.Record{
		{"id": "1", "title": "t1", "body": "b1"},
		{"id": "2", "title": "t2", "body": "b2"},
	}
	roles := core.RoleMap{ID: core.Single("id"), Search: core.Multiple("title", "body")}

	units, stats, err := e.Expand(context.Background(), records, roles, 0.3)
	require.NoError(t, err)

	assert.Equal(t, []string{"title:t1", "title:t2", "body:b1", "body:b2"}, sentences(units))
	assert.Equal(t, "1", units[0].RecordID)
	assert.Equal(t, "b1", units[0].Record.Text("body"))
	assert.Equal(t, 4, stats.SearchUnits)
	assert.Equal(t, 0, stats.TagUnits)
	assert.Equal(t, 2, stats.DistinctIDs)
}

func TestExpand_EveryRecordGetsOneUnitPerSearchColumn(t *testing.T) {
	e := newTestExpander(t)
	var records []core.Record
	for i := 0; i < 20; i++ {
		records = append(records, core.Record{
			"id":   fmt.Sprint(i),
			"q":    fmt.Sprintf("question %d", i),
			"tags": fmt.Sprintf(`["common_tag", "rare_%d"]`, i),
		})
	}
	roles := core.RoleMap{ID: core.Single("id"), Search: core.Single("q"), Tags: core.Single("tags")}

	units, _, err := e.Expand(context.Background(), records, roles, 0.3)
	require.NoError(t, err)

	perRecord := map[string]int{}
	for _, u := range units {
		if u.SentenceSource == "q" {
			perRecord[u.RecordID]++
		}
	}
	assert.Len(t, perRecord, 20)
	for id, n := range perRecord {
		assert.Equal(t, 1, n, "record %s", id)
	}
}

func TestExpand_SpecificityFilter(t *testing.T) {
	e := newTestExpander(t)
	records := []core.Record{
		{"id": "1", "q": "a", "tags": `["foo_bar", "only_one"]`},
		{"id": "2", "q": "b", "tags": `["foo_bar"]`},
		{"id": "3", "q": "c", "tags": `["foo_bar", "two_ids"]`},
		{"id": "4", "q": "d", "tags": `["two_ids"]`},
	}
	roles := core.RoleMap{ID: core.Single("id"), Search: core.Single("q"), Tags: core.Single("tags")}

	t.Run("common phrases dropped", func(t *testing.T) {
		// limit is 0.5 * 4 = 2 ids
		units, stats, err := e.Expand(context.Background(), records, roles, 0.5)
		require.NoError(t, err)

		assert.Equal(t, []string{
			"q:a", "q:b", "q:c", "q:d",
			"tags:only one", "tags:two ids", "tags:two ids",
		}, sentences(units))
		assert.Equal(t, []string{"foo bar"}, stats.FilteredPhrases)
		assert.Equal(t, 6, stats.TagCandidates)
		assert.Equal(t, 3, stats.TagUnits)
	})

	t.Run("tight threshold", func(t *testing.T) {
		// limit is 0.25 * 4 = 1 id
		units, stats, err := e.Expand(context.Background(), records, roles, 0.25)
		require.NoError(t, err)
		assert.Contains(t, sentences(units), "tags:only one")
		assert.NotContains(t, sentences(units), "tags:two ids")
		assert.Equal(t, []string{"foo bar", "two ids"}, stats.FilteredPhrases)
	})

	t.Run("threshold one keeps everything", func(t *testing.T) {
		_, stats, err := e.Expand(context.Background(), records, roles, 1)
		require.NoError(t, err)
		assert.Empty(t, stats.FilteredPhrases)
		assert.Equal(t, 6, stats.TagUnits)
	})
}

func TestExpand_DistinctIDsNotRows(t *testing.T) {
	e := newTestExpander(t)
	// The same record id twice counts once for the phrase and once in the total.
	records := []core.Record{
		{"id": "1", "q": "a", "tags": `["foo_bar"]`},
		{"id": "1", "q": "a2", "tags": `["foo_bar"]`},
		{"id": "2", "q": "b", "tags": `[]`},
	}
	roles := core.RoleMap{ID: core.Single("id"), Search: core.Single("q"), Tags: core.Single("tags")}

	units, stats, err := e.Expand(context.Background(), records, roles, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.DistinctIDs)
	assert.Equal(t, 2, stats.TagUnits)
	assert.Contains(t, sentences(units), "tags:foo bar")
}

func TestExpand_MalformedTagsSkipped(t *testing.T) {
	e := newTestExpander(t)
	records := []core.Record{
		{"id": "1", "q": "a", "tags": `["good_tag"]`},
		{"id": "2", "q": "b", "tags": `["broken_tag"`},
	}
	roles := core.RoleMap{ID: core.Single("id"), Search: core.Single("q"), Tags: core.Single("tags")}

	units, stats, err := e.Expand(context.Background(), records, roles, 1)
	require.NoError(t, err)

	assert.Equal(t, []string{"q:a", "q:b", "tags:good tag"}, sentences(units))
	assert.Equal(t, 1, stats.TagParseFailures)
	assert.ErrorIs(t, stats.TagParseErr, core.ErrTagParse)
	assert.Contains(t, stats.TagParseErr.Error(), `record "2"`)
}

func TestExpand_MissingColumnsFilled(t *testing.T) {
	e := newTestExpander(t)
	records := []core.Record{
		{"id": "1", "q": "a", "extra": "x"},
		{"id": "2"},
	}
	roles := core.RoleMap{ID: core.Single("id"), Search: core.Single("q"), Tags: core.Single("tags")}

	units, _, err := e.Expand(context.Background(), records, roles, 0.3)
	require.NoError(t, err)
	require.Len(t, units, 2)

	second := units[1].Record
	assert.Equal(t, "", units[1].Sentence)
	v, ok := second["extra"]
	assert.True(t, ok)
	assert.Equal(t, "", v)

	// Inputs are not mutated.
	_, ok = records[1]["extra"]
	assert.False(t, ok)
}

func TestExpand_MultipleIDColumns(t *testing.T) {
	e := newTestExpander(t)
	records := []core.Record{{"org": "acme", "code": "7", "q": "x"}}
	roles := core.RoleMap{ID: core.Multiple("org", "code"), Search: core.Single("q")}

	units, _, err := e.Expand(context.Background(), records, roles, 0.3)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "acme-7", units[0].RecordID)
}

func TestExpand_InvalidConfig(t *testing.T) {
	e := newTestExpander(t)
	records := []core.Record{{"id": "1", "q": "x"}}

	_, _, err := e.Expand(context.Background(), records, core.RoleMap{Search: core.Single("q")}, 0.3)
	assert.ErrorIs(t, err, core.ErrConfig)
	assert.ErrorIs(t, err, core.ErrMissingIDRole)

	_, _, err = e.Expand(context.Background(), records, core.RoleMap{ID: core.Single("id")}, 0.3)
	assert.ErrorIs(t, err, core.ErrMissingSearchRole)

	_, _, err = e.Expand(context.Background(), records, core.RoleMap{ID: core.Single("id"), Search: core.Single("q")}, 0)
	assert.ErrorIs(t, err, core.ErrConfig)
}

func TestExpand_EmptyInput(t *testing.T) {
	e := newTestExpander(t)
	roles := core.RoleMap{ID: core.Single("id"), Search: core.Single("q"), Tags: core.Single("tags")}

	units, stats, err := e.Expand(context.Background(), nil, roles, 0.3)
	require.NoError(t, err)
	assert.Empty(t, units)
	assert.Zero(t, stats.Records)
	assert.NoError(t, stats.TagParseErr)
}

func TestExpand_Cancelled(t *testing.T) {
	e := newTestExpander(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records := []core.Record{{"id": "1", "q": "x", "tags": `["a_b"]`}}
	roles := core.RoleMap{ID: core.Single("id"), Search: core.Single("q"), Tags: core.Single("tags")}

	_, _, err := e.Expand(ctx, records, roles, 0.3)
	assert.ErrorIs(t, err, context.Canceled)
}
