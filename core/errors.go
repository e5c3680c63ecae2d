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

import "errors"

// Domain validation errors
var (
	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrInvalidPoint indicates an IndexedPoint failed validation.
	ErrInvalidPoint = errors.New("invalid point")

	// ErrEmptyContent indicates the text field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrEmptyFilename indicates the filename is empty.
	ErrEmptyFilename = errors.New("filename cannot be empty")

	// ErrInvalidPageNumber indicates a page number below 1.
	ErrInvalidPageNumber = errors.New("page number must be >= 1")

	// ErrInvalidChunkNumber indicates a chunk number below 1.
	ErrInvalidChunkNumber = errors.New("chunk number must be >= 1")

	// ErrEmptyVector indicates a point without an embedding.
	ErrEmptyVector = errors.New("vector cannot be empty")

	// ErrIDMismatch indicates a point id that does not match its payload location.
	ErrIDMismatch = errors.New("point id does not match payload")
)
