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

package core

import (
	"errors"
	"fmt"
)

// Build error taxonomy
var (
	// ErrConfig indicates malformed or missing required configuration.
	// It is always fatal and raised before any external call.
	ErrConfig = errors.New("invalid configuration")

	// ErrIngestion indicates the record source could not be read.
	// The build recovers by continuing with an empty record set.
	ErrIngestion = errors.New("ingestion failed")

	// ErrCacheLoad indicates the embedding cache could not be read or decoded.
	// The build recovers by starting from an empty cache.
	ErrCacheLoad = errors.New("embedding cache load failed")

	// ErrPublish indicates the downstream refresh notification failed.
	ErrPublish = errors.New("publish failed")

	// ErrTagParse indicates a record carried a malformed tag payload.
	// Only that record's tag contribution is skipped.
	ErrTagParse = errors.New("malformed tag payload")

	// ErrMissingIDRole indicates kb_fields does not bind the id role.
	ErrMissingIDRole = errors.New("at least one id field must be provided in kb_fields")

	// ErrMissingSearchRole indicates kb_fields does not bind the search role.
	ErrMissingSearchRole = errors.New("at least one search field must be provided in kb_fields")
)

// ConfigErrorf formats a configuration error wrapping ErrConfig.
func ConfigErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

// PublishError reports a failed refresh notification.
// The index may already be persisted, which the message makes explicit.
type PublishError struct {
	IndexKey   string // key the index was persisted under, "" if not persisted
	RefreshURL string
	StatusCode int // 0 when the request itself failed
	Err        error
}

func (e *PublishError) Error() string {
	persisted := "index not persisted"
	if e.IndexKey != "" {
		persisted = fmt.Sprintf("index persisted under %q", e.IndexKey)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s; refresh %s returned status %d", ErrPublish, persisted, e.RefreshURL, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s; refresh %s failed: %v", ErrPublish, persisted, e.RefreshURL, e.Err)
}

// Unwrap exposes both ErrPublish and the underlying cause to errors.Is.
func (e *PublishError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrPublish}
	}
	return []error{ErrPublish, e.Err}
}
