package core

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a content-derived identifier for index entries.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// UnitID returns the stable identifier of a searchable unit.
// The same record, source column and sentence always map to the same ID across builds.
func UnitID(recordID, source, sentence string) ID {
	return IDFromContent(recordID + "\x1f" + source + "\x1f" + sentence)
}

// Record is one row of raw input data keyed by column name.
// A column absent from the map is treated as an empty value.
type Record map[string]string

// Text returns the value of column, or "" when the column is absent.
func (r Record) Text(column string) string {
	return r[column]
}

// TextValue coerces an arbitrary column value to its textual representation.
// nil becomes the empty string.
func TextValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// SearchUnit is one denormalized (record, candidate text) pair.
// Record is shared between all units of the same input row and must not be mutated.
type SearchUnit struct {
	RecordID       string
	Record         Record
	Sentence       string // raw text before normalization
	SentenceSource string // column that produced Sentence
}

// EmbeddingMap maps normalized text to its embedding vector.
type EmbeddingMap map[string][]float32

// IndexEntry is a normalized search unit annotated with its embedding.
type IndexEntry struct {
	UnitID         ID
	RecordID       string
	Sentence       string
	SentenceSource string
	Attributes     Record
	Embedding      []float32
}

// Index is the knowledge-base index published for similarity search.
// Each build produces a complete Index that replaces the previous one.
type Index struct {
	BuildID     string
	CreatedAt   time.Time
	PreprocMode string
	Fields      RoleMap
	Entries     []IndexEntry
}

// Sentences returns the distinct sentences of the index in first-seen order.
func (idx *Index) Sentences() []string {
	seen := make(map[string]struct{}, len(idx.Entries))
	out := make([]string, 0, len(idx.Entries))
	for _, e := range idx.Entries {
		if _, ok := seen[e.Sentence]; ok {
			continue
		}
		seen[e.Sentence] = struct{}{}
		out = append(out, e.Sentence)
	}
	return out
}
