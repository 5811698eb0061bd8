// Package config loads the settings of an index build from YAML.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/poiesic/kbindex/ai"
	"github.com/poiesic/kbindex/core"
	"github.com/poiesic/kbindex/ingestion"
	"github.com/poiesic/kbindex/normalize"
	"gopkg.in/yaml.v3"
)

// Settings holds every recognized option of a build.
type Settings struct {
	StagingName               string        `yaml:"staging_name"`
	KBFields                  KBFields      `yaml:"kb_fields"`
	PreprocMode               string        `yaml:"preproc_mode"`
	SpecificityThreshold      float64       `yaml:"specificity_threshold"`
	AppName                   string        `yaml:"app_name"`
	RefreshURL                string        `yaml:"refresh_url"`
	EmbeddingsCache           *bool         `yaml:"embeddings_cache"`
	ModelStorageFile          string        `yaml:"model_storage_file"`
	ModelSentenceTransformers string        `yaml:"model_sentencetransformers"`
	EmbeddingHost             string        `yaml:"embedding_host"`
	EmbeddingBatchSize        int           `yaml:"embedding_batch_size"`
	StopwordsFile             string        `yaml:"stopwords_file"`
	WorkerPoolSize            int           `yaml:"worker_pool_size"`
	Session                   SessionConfig `yaml:"session"`
	Source                    SourceConfig  `yaml:"source"`
	Storage                   StorageConfig `yaml:"storage"`
	Keys                      KeysConfig    `yaml:"keys"`
}

// SessionConfig supplies defaults for partial staging paths.
type SessionConfig struct {
	Organization string `yaml:"organization"`
	Environment  string `yaml:"environment"`
}

// SourceConfig selects where records are read from.
type SourceConfig struct {
	Kind string `yaml:"kind"` // sqlite or xlsx
	Root string `yaml:"root"`
}

// StorageConfig selects the object store backend.
type StorageConfig struct {
	Backend   string `yaml:"backend"` // badger, minio or s3
	Path      string `yaml:"path"`
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`
	Region    string `yaml:"region"`
}

// KeysConfig names the stored objects.
type KeysConfig struct {
	EmbeddingCache string `yaml:"embedding_cache"`
	Index          string `yaml:"index"`
}

// KBFields holds the kb_fields role map as JSON. In YAML it may be written as
// a JSON string or as a mapping.
type KBFields struct {
	raw []byte
}

// NewKBFields wraps a JSON role map.
func NewKBFields(data string) KBFields {
	return KBFields{raw: []byte(data)}
}

// IsSet reports whether kb_fields was given.
func (k KBFields) IsSet() bool {
	return len(strings.TrimSpace(string(k.raw))) > 0
}

// String returns the JSON form.
func (k KBFields) String() string {
	return string(k.raw)
}

// RoleMap parses and validates the role map.
func (k KBFields) RoleMap() (core.RoleMap, error) {
	if !k.IsSet() {
		return core.RoleMap{}, core.ConfigErrorf("kb_fields is required")
	}
	return core.ParseRoleMap(k.raw)
}

func (k *KBFields) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		k.raw = []byte(node.Value)
		return nil
	case yaml.MappingNode:
		var m map[string]any
		if err := node.Decode(&m); err != nil {
			return err
		}
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		k.raw = data
		return nil
	}
	return fmt.Errorf("kb_fields must be a JSON string or a mapping (line %d)", node.Line)
}

func (k KBFields) MarshalYAML() (any, error) {
	return string(k.raw), nil
}

// UseCache returns embeddings_cache, defaulting to true when unset.
func (s *Settings) UseCache() bool {
	if s.EmbeddingsCache != nil {
		return *s.EmbeddingsCache
	}
	return true
}

// Resolved is the parsed form of the settings needed by a build.
type Resolved struct {
	Roles   core.RoleMap
	Staging ingestion.StagingPath
	Mode    normalize.Mode
	Model   string
}

// Validate checks the settings and resolves the role map, staging path,
// preprocessing mode and model. Every failure wraps core.ErrConfig.
func (s *Settings) Validate() (*Resolved, error) {
	roles, err := s.KBFields.RoleMap()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(s.StagingName) == "" {
		return nil, core.ConfigErrorf("staging_name is required")
	}
	staging, err := ingestion.ParseStagingPath(s.StagingName, ingestion.Session{
		Organization: s.Session.Organization,
		Environment:  s.Session.Environment,
	})
	if err != nil {
		return nil, err
	}
	mode, err := normalize.ParseMode(s.PreprocMode)
	if err != nil {
		return nil, err
	}
	if err := core.ValidateSpecificity(s.SpecificityThreshold); err != nil {
		return nil, err
	}
	model, err := ai.ResolveModel(s.ModelStorageFile, s.ModelSentenceTransformers)
	if err != nil {
		return nil, err
	}
	if s.RefreshURL != "" {
		u, err := url.Parse(s.RefreshURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, core.ConfigErrorf("refresh_url %q must be an absolute http(s) URL", s.RefreshURL)
		}
	}
	switch s.Source.Kind {
	case SourceSQLite, SourceXLSX:
	default:
		return nil, core.ConfigErrorf("unknown source.kind %q", s.Source.Kind)
	}
	switch s.Storage.Backend {
	case BackendBadger:
	case BackendMinio:
		if s.Storage.Endpoint == "" || s.Storage.Bucket == "" {
			return nil, core.ConfigErrorf("storage.endpoint and storage.bucket are required for minio")
		}
	case BackendS3:
		if s.Storage.Bucket == "" {
			return nil, core.ConfigErrorf("storage.bucket is required for s3")
		}
	default:
		return nil, core.ConfigErrorf("unknown storage.backend %q", s.Storage.Backend)
	}
	if s.Keys.EmbeddingCache == s.Keys.Index {
		return nil, core.ConfigErrorf("keys.embedding_cache and keys.index must differ")
	}

	return &Resolved{Roles: roles, Staging: staging, Mode: mode, Model: model}, nil
}

// AIConfig returns the embedding configuration for model.
func (s *Settings) AIConfig(model string) *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(s.EmbeddingHost),
		ai.WithEmbeddingModel(model),
		ai.WithBatchSize(s.EmbeddingBatchSize),
	)
}

// Load reads and parses the settings file at path, applies defaults and
// resolves relative paths against the file's directory.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config: %w", core.ErrConfig, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	s.Source.Root = expandPath(s.Source.Root, dir)
	s.Storage.Path = expandPath(s.Storage.Path, dir)
	s.StopwordsFile = expandPath(s.StopwordsFile, dir)
	return s, nil
}

// Parse decodes YAML settings and applies defaults.
func Parse(data []byte) (*Settings, error) {
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %w", core.ErrConfig, err)
	}
	ApplyDefaults(&s)
	return &s, nil
}

// Save writes s to path.
func Save(path string, s *Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath makes a relative path relative to dir. Empty paths stay empty.
func expandPath(path, dir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
