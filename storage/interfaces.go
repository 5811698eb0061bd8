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

import "context"

// ObjectStore persists opaque blobs by key.
// Implementations must be safe for concurrent use.
type ObjectStore interface {
	// Load returns the blob stored under key.
	// Returns ErrNotFound if nothing is stored there.
	Load(ctx context.Context, key string) ([]byte, error)

	// Save stores data under key, fully replacing any previous value.
	Save(ctx context.Context, key string, data []byte) error

	// Close releases resources held by the store.
	Close() error
}
