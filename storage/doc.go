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

// Package storage provides the persistence abstraction for kbindex.
//
// Builds persist two artifacts: the embedding cache (normalized text to
// vector) and the published knowledge-base index. Both are stored as opaque
// blobs through ObjectStore, which has one implementation per backend:
//
//   - badger: local BadgerDB directory, or in-memory for tests
//   - minio: MinIO and other S3-compatible servers
//   - s3: AWS S3
//
// # Blob Format
//
// EncodeEmbeddingMap and EncodeIndex serialize with mus-go and compress the
// result with zstd. Map keys are written in sorted order so equal values
// always produce equal blobs.
//
// # Usage
//
//	store, err := badger.NewStore("/var/lib/kbindex", "kbindex/")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	blob, err := storage.EncodeEmbeddingMap(m)
//	err = store.Save(ctx, "embeddings_cache", blob)
package storage
