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


// Package search retrieves passages relevant to a natural-language query.
//
// The Engine embeds the query and over-fetches twice the requested number of
// candidates from the vector store. It then filters them in store order:
//   - Passages shorter than MinTextLength or made only of boilerplate lines
//     (page numbers, chapter numbers, dates, contents entries) are dropped
//   - When the query names an Entity by an informal alias, passages using the
//     alias without the canonical form are dropped
//   - Survivors are cleaned of pagination artifacts and truncated to the limit
//
// Queries are safe to run concurrently. QueryBatch fans a set of queries out
// over a worker pool.
package search
