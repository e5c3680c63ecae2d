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


// Package ai provides abstractions for the AI services used by Lectern.
//
// The package defines three interfaces:
//
//   - Embedder: Generates vector embeddings from text
//   - Generator: Produces text completions for grounded answers
//   - AIProvider: Aggregates AI services for convenient initialization
//
// # Implementation Packages
//
//   - ai/openai: Production implementation using OpenAI-compatible APIs
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// # Constructor Return Type Pattern
//
// Public constructors (openai.NewProvider, openai.NewEmbedder, etc.) return
// interface types. Test constructors (mock.NewMockEmbedder,
// mock.NewMockGenerator) return concrete types so tests can inject behavior
// and assert on call counts.
//
//	provider, err := openai.NewProvider(config)  // returns ai.AIProvider
//	mockEmbed := mock.NewMockEmbedder()           // returns *mock.MockEmbedder
//
// # Retries
//
// Services never retry on their own. Wrap an Embedder with
// NewRetryingEmbedder to retry failed requests with exponential backoff.
package ai
