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

// Package ai provides the embedding-model abstraction used by kbindex.
//
// Builds depend only on the Embedder interface: a batch of normalized texts in,
// one vector per text out, in input order. Vector dimensionality is fixed by
// the model and opaque to the rest of the system.
//
// # Implementation Packages
//
//   - ai/openai: production implementation using OpenAI-compatible APIs
//   - ai/mock: test double with call recording
//
// Public constructors of production implementations return the interface
// type; mock constructors return concrete types so tests can inspect calls.
//
//	embedder, err := openai.NewEmbedder(ai.NewConfig(ai.WithEmbeddingModel(model)))
//	vectors, err := embedder.EmbedTexts(ctx, []string{"ferias coletivas"})
//
// # Model Selection
//
// ResolveModel applies the precedence between a model published to storage
// and a sentence-transformers model name.
package ai
