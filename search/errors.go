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


package search

import "errors"

var (
	// ErrStoreRequired is returned when a vector store is not provided.
	ErrStoreRequired = errors.New("vector store required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrEmptyQuery is returned for blank query text.
	ErrEmptyQuery = errors.New("query text is empty")

	// ErrInvalidLimit is returned when limit is not positive.
	ErrInvalidLimit = errors.New("limit must be at least 1")

	// ErrInvalidEntity is returned for an entity without a canonical form or aliases.
	ErrInvalidEntity = errors.New("entity needs a canonical form and at least one alias")
)
