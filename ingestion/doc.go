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


// Package ingestion indexes documents into a vector store.
//
// A Pipeline enumerates the documents of an extract.Source, skips those
// already present in the store, splits each non-blank page into chunks,
// embeds the chunks in fixed-size batches and upserts them as points.
//
// Batches are processed one at a time. A batch that fails to embed or store
// is recorded in Result.Failures and the run moves on. Only a collection
// configuration mismatch aborts a run.
package ingestion
