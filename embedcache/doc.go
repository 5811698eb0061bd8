// Package embedcache keeps embeddings of normalized text across builds so that
// only new text reaches the embedding model.
//
// The cache grows monotonically: entries are added, never changed or removed,
// and entries for text no longer produced by any record are kept.
//
// # Concurrency
//
// At most one build may write a given cache key at a time. Saves replace the
// whole mapping without versioning, so two concurrent builds against the same
// key can lose each other's additions.
package embedcache
