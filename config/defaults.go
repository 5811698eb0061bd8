package config

import (
	"github.com/poiesic/kbindex/ai"
	"github.com/poiesic/kbindex/builder"
	"github.com/poiesic/kbindex/embedcache"
)

// Source kinds.
const (
	SourceSQLite = "sqlite"
	SourceXLSX   = "xlsx"
)

// Storage backends.
const (
	BackendBadger = "badger"
	BackendMinio  = "minio"
	BackendS3     = "s3"
)

// Default values applied by ApplyDefaults.
const (
	DefaultSpecificityThreshold = 0.3
	DefaultSourceKind           = SourceSQLite
	DefaultSourceRoot           = "staging"
	DefaultStorageBackend       = BackendBadger
	DefaultStoragePath          = "data"
)

// ApplyDefaults fills zero values with defaults.
func ApplyDefaults(s *Settings) {
	aiDefaults := ai.DefaultConfig()
	if s.SpecificityThreshold == 0 {
		s.SpecificityThreshold = DefaultSpecificityThreshold
	}
	if s.EmbeddingHost == "" {
		s.EmbeddingHost = aiDefaults.EmbeddingHost
	}
	if s.EmbeddingBatchSize == 0 {
		s.EmbeddingBatchSize = aiDefaults.BatchSize
	}
	if s.Source.Kind == "" {
		s.Source.Kind = DefaultSourceKind
	}
	if s.Source.Root == "" {
		s.Source.Root = DefaultSourceRoot
	}
	if s.Storage.Backend == "" {
		s.Storage.Backend = DefaultStorageBackend
	}
	if s.Storage.Backend == BackendBadger && s.Storage.Path == "" {
		s.Storage.Path = DefaultStoragePath
	}
	if s.Keys.EmbeddingCache == "" {
		s.Keys.EmbeddingCache = embedcache.DefaultKey
	}
	if s.Keys.Index == "" {
		s.Keys.Index = builder.DefaultIndexKey
	}
}

// Default returns settings with every default applied.
func Default() *Settings {
	var s Settings
	ApplyDefaults(&s)
	return &s
}
