// Package builder assembles the knowledge-base index.
//
// Build expands records into search units, normalizes their sentences,
// resolves embeddings through the cache and joins them back onto the units.
// Publish persists the resulting index and notifies the serving side.
package builder
