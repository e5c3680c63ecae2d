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


package ingestion

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreRequired is returned when a vector store is not provided.
	ErrStoreRequired = errors.New("vector store required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrSourceRequired is returned when Run is called without a document source.
	ErrSourceRequired = errors.New("document source required")

	// ErrInvalidBatchSize is returned for batch sizes below 1.
	ErrInvalidBatchSize = errors.New("batch size must be at least 1")

	// ErrUnknownDedupPolicy is returned when a dedup policy name is not recognized.
	ErrUnknownDedupPolicy = errors.New("unknown dedup policy")
)

// BatchError records a batch that could not be embedded or stored.
// The run continues past it and the batch is not retried.
type BatchError struct {
	Index int // 1-based batch number within the run
	Size  int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d (%d chunks): %v", e.Index, e.Size, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}
