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


// Package storage provides the vector store abstraction for lectern.
//
// This package defines the VectorStore contract that decouples the ingestion
// pipeline and the retrieval engine from any particular index. Three backends
// implement it:
//
//   - storage/badger: embedded key-value store, the default for local use
//   - storage/sqlite: a single portable database file
//   - storage/qdrant: a remote Qdrant server over gRPC
//
// # Constructor Return Type Pattern
//
// Public constructors return the storage.VectorStore interface to keep callers
// from coupling to a backend:
//
//	store, err := badger.NewStore(backend, "knowledge_base")  // returns storage.VectorStore
//
// # Errors
//
// Every backend failure is wrapped in *storage.Error. A missing collection is
// reported as ErrCollectionNotFound and an incompatible one as ErrConfigMismatch;
// use errors.Is to test for either.
//
// # Serialization
//
// The embedded backends persist points with the mus-go codecs in this package
// (PointMUS, PayloadMUS).
//
// # Thread Safety
//
// All store implementations must be safe for concurrent readers.
package storage
