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

package storage

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/kbindex/core"
)

// Every blob starts with a format tag naming the artifact and its version.
const (
	embeddingMapFormat = "kbindex.embeddings.v1"
	indexFormat        = "kbindex.index.v1"
)

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func compress(data []byte) []byte {
	enc := getZstdEncoder()
	defer zstdEncoderPool.Put(enc)
	return enc.EncodeAll(data, make([]byte, 0, len(data)/2))
}

func decompress(data []byte) ([]byte, error) {
	dec := getZstdDecoder()
	defer zstdDecoderPool.Put(dec)
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return out, nil
}

// EncodeEmbeddingMap serializes an embedding cache.
func EncodeEmbeddingMap(m core.EmbeddingMap) ([]byte, error) {
	keys := sortedKeys(m)

	size := ord.String.Size(embeddingMapFormat) + varint.PositiveInt.Size(len(m))
	for _, k := range keys {
		size += ord.String.Size(k) + vectorSize(m[k])
	}

	w := &writer{bs: make([]byte, size)}
	w.str(embeddingMapFormat)
	w.length(len(m))
	for _, k := range keys {
		w.str(k)
		w.vector(m[k])
	}
	return compress(w.bs), nil
}

// DecodeEmbeddingMap restores a cache written by EncodeEmbeddingMap.
// Corrupt input fails with ErrSerializationFailed.
func DecodeEmbeddingMap(data []byte) (core.EmbeddingMap, error) {
	bs, err := decompress(data)
	if err != nil {
		return nil, err
	}

	r := &reader{bs: bs}
	if err := r.format(embeddingMapFormat); err != nil {
		return nil, err
	}
	n := r.length()
	m := make(core.EmbeddingMap, r.capacity(n))
	for i := 0; i < n && r.err == nil; i++ {
		k := r.str()
		m[k] = r.vector()
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return m, nil
}

// EncodeIndex serializes a knowledge-base index.
func EncodeIndex(idx *core.Index) ([]byte, error) {
	if idx == nil {
		return nil, fmt.Errorf("%w: nil index", ErrSerializationFailed)
	}
	roles := roleRefs(idx.Fields)

	size := ord.String.Size(indexFormat) +
		ord.String.Size(idx.BuildID) +
		varint.Int64.Size(idx.CreatedAt.UnixMicro()) +
		ord.String.Size(idx.PreprocMode)
	for _, ref := range roles {
		size += columnRefSize(ref)
	}
	size += varint.PositiveInt.Size(len(idx.Entries))
	for i := range idx.Entries {
		size += entrySize(&idx.Entries[i])
	}

	w := &writer{bs: make([]byte, size)}
	w.str(indexFormat)
	w.str(idx.BuildID)
	w.i64(idx.CreatedAt.UnixMicro())
	w.str(idx.PreprocMode)
	for _, ref := range roles {
		w.columnRef(ref)
	}
	w.length(len(idx.Entries))
	for i := range idx.Entries {
		w.entry(&idx.Entries[i])
	}
	return compress(w.bs), nil
}

// DecodeIndex restores an index written by EncodeIndex.
// Corrupt input fails with ErrSerializationFailed.
func DecodeIndex(data []byte) (*core.Index, error) {
	bs, err := decompress(data)
	if err != nil {
		return nil, err
	}

	r := &reader{bs: bs}
	if err := r.format(indexFormat); err != nil {
		return nil, err
	}

	idx := &core.Index{}
	idx.BuildID = r.str()
	idx.CreatedAt = time.UnixMicro(r.i64()).UTC()
	idx.PreprocMode = r.str()
	idx.Fields = core.RoleMap{
		ID:      r.columnRef(),
		Search:  r.columnRef(),
		Content: r.columnRef(),
		Filter:  r.columnRef(),
		Tags:    r.columnRef(),
	}

	n := r.length()
	idx.Entries = make([]core.IndexEntry, 0, r.capacity(n))
	for i := 0; i < n && r.err == nil; i++ {
		idx.Entries = append(idx.Entries, r.entry())
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return idx, nil
}

func roleRefs(m core.RoleMap) []core.ColumnRef {
	return []core.ColumnRef{m.ID, m.Search, m.Content, m.Filter, m.Tags}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func vectorSize(v []float32) int {
	size := varint.PositiveInt.Size(len(v))
	for _, f := range v {
		size += raw.Float32.Size(f)
	}
	return size
}

func columnRefSize(ref core.ColumnRef) int {
	names := ref.Names()
	size := ord.Bool.Size(ref.IsMultiple()) + varint.PositiveInt.Size(len(names))
	for _, n := range names {
		size += ord.String.Size(n)
	}
	return size
}

func entrySize(e *core.IndexEntry) int {
	size := varint.Uint64.Size(uint64(e.UnitID)) +
		ord.String.Size(e.RecordID) +
		ord.String.Size(e.Sentence) +
		ord.String.Size(e.SentenceSource) +
		varint.PositiveInt.Size(len(e.Attributes))
	for k, v := range e.Attributes {
		size += ord.String.Size(k) + ord.String.Size(v)
	}
	return size + vectorSize(e.Embedding)
}

type writer struct {
	bs  []byte
	off int
}

func (w *writer) length(v int) {
	w.off += varint.PositiveInt.Marshal(v, w.bs[w.off:])
}

func (w *writer) i64(v int64) {
	w.off += varint.Int64.Marshal(v, w.bs[w.off:])
}

func (w *writer) str(s string) {
	w.off += ord.String.Marshal(s, w.bs[w.off:])
}

func (w *writer) vector(v []float32) {
	w.length(len(v))
	for _, f := range v {
		w.off += raw.Float32.Marshal(f, w.bs[w.off:])
	}
}

func (w *writer) columnRef(ref core.ColumnRef) {
	names := ref.Names()
	w.off += ord.Bool.Marshal(ref.IsMultiple(), w.bs[w.off:])
	w.length(len(names))
	for _, n := range names {
		w.str(n)
	}
}

func (w *writer) entry(e *core.IndexEntry) {
	w.off += varint.Uint64.Marshal(uint64(e.UnitID), w.bs[w.off:])
	w.str(e.RecordID)
	w.str(e.Sentence)
	w.str(e.SentenceSource)
	keys := sortedKeys(e.Attributes)
	w.length(len(keys))
	for _, k := range keys {
		w.str(k)
		w.str(e.Attributes[k])
	}
	w.vector(e.Embedding)
}

// reader decodes sequentially and keeps the first error. Once an error is
// recorded every method returns zero values.
type reader struct {
	bs  []byte
	off int
	err error
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
}

func (r *reader) length() int {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.PositiveInt.Unmarshal(r.bs[r.off:])
	if err != nil {
		r.fail(err)
		return 0
	}
	if v < 0 {
		r.fail(fmt.Errorf("negative length %d", v))
		return 0
	}
	r.off += n
	return v
}

func (r *reader) i64() int64 {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Int64.Unmarshal(r.bs[r.off:])
	if err != nil {
		r.fail(err)
		return 0
	}
	r.off += n
	return v
}

func (r *reader) u64() uint64 {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(r.bs[r.off:])
	if err != nil {
		r.fail(err)
		return 0
	}
	r.off += n
	return v
}

func (r *reader) flag() bool {
	if r.err != nil {
		return false
	}
	v, n, err := ord.Bool.Unmarshal(r.bs[r.off:])
	if err != nil {
		r.fail(err)
		return false
	}
	r.off += n
	return v
}

func (r *reader) str() string {
	if r.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(r.bs[r.off:])
	if err != nil {
		r.fail(err)
		return ""
	}
	r.off += n
	return v
}

func (r *reader) vector() []float32 {
	dim := r.length()
	if r.err != nil {
		return nil
	}
	if dim == 0 {
		return []float32{}
	}
	v := make([]float32, 0, r.capacity(dim))
	for i := 0; i < dim; i++ {
		f, n, err := raw.Float32.Unmarshal(r.bs[r.off:])
		if err != nil {
			r.fail(err)
			return nil
		}
		r.off += n
		v = append(v, f)
	}
	return v
}

func (r *reader) columnRef() core.ColumnRef {
	multiple := r.flag()
	n := r.length()
	names := make([]string, 0, r.capacity(n))
	for i := 0; i < n && r.err == nil; i++ {
		names = append(names, r.str())
	}
	switch {
	case multiple:
		return core.Multiple(names...)
	case len(names) > 0:
		return core.Single(names[0])
	}
	return core.ColumnRef{}
}

func (r *reader) entry() core.IndexEntry {
	e := core.IndexEntry{
		UnitID:         core.ID(r.u64()),
		RecordID:       r.str(),
		Sentence:       r.str(),
		SentenceSource: r.str(),
	}
	if n := r.length(); n > 0 {
		e.Attributes = make(core.Record, r.capacity(n))
		for i := 0; i < n && r.err == nil; i++ {
			k := r.str()
			e.Attributes[k] = r.str()
		}
	}
	e.Embedding = r.vector()
	return e
}

// format checks the leading format tag.
func (r *reader) format(want string) error {
	got := r.str()
	if r.err != nil {
		return r.err
	}
	if got != want {
		return fmt.Errorf("%w: unexpected blob format %q, want %q", ErrSerializationFailed, got, want)
	}
	return nil
}

// capacity bounds a preallocation by what the remaining input could hold.
func (r *reader) capacity(n int) int {
	if rest := len(r.bs) - r.off; n > rest {
		return rest
	}
	return n
}

// done reports the first decode error, or trailing bytes.
func (r *reader) done() error {
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.bs) {
		return fmt.Errorf("%w: %d trailing bytes", ErrSerializationFailed, len(r.bs)-r.off)
	}
	return nil
}
