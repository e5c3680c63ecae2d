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

import (
	"fmt"
	"strings"
)

// ValidateChunk validates a Chunk according to domain rules.
//
// Validation rules:
//   - Filename must not be empty
//   - PageNumber and ChunkNumber must be 1-based
//   - Text must contain something other than whitespace
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}
	if err := validateLocation(chunk.Filename, chunk.PageNumber, chunk.ChunkNumber); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, err)
	}
	if strings.TrimSpace(chunk.Text) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyContent)
	}
	return nil
}

// ValidatePoint validates an IndexedPoint before it is written.
//
// Validation rules:
//   - Payload location must be valid
//   - Vector must not be empty
//   - ID must equal IDFor(filename, page, chunk)
func ValidatePoint(point *IndexedPoint) error {
	if point == nil {
		return fmt.Errorf("%w: point is nil", ErrInvalidPoint)
	}
	p := &point.Payload
	if err := validateLocation(p.Filename, p.PageNumber, p.ChunkNumber); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPoint, err)
	}
	if len(point.Vector) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidPoint, ErrEmptyVector)
	}
	if point.ID != IDFor(p.Filename, p.PageNumber, p.ChunkNumber) {
		return fmt.Errorf("%w: %w: id %d", ErrInvalidPoint, ErrIDMismatch, point.ID)
	}
	return nil
}

func validateLocation(filename string, page, chunk int) error {
	if filename == "" {
		return ErrEmptyFilename
	}
	if page < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidPageNumber, page)
	}
	if chunk < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidChunkNumber, chunk)
	}
	return nil
}
