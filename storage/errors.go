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


package storage

import (
	"errors"
	"fmt"

	"github.com/poiesic/lectern/core"
)

var (
	// ErrConfigMismatch indicates that a collection exists with a different
	// dimension or metric than requested, or that a vector does not match the
	// collection's dimension. It is fatal to ingestion and queries.
	ErrConfigMismatch = errors.New("collection configuration mismatch")

	// ErrCollectionNotFound indicates the collection has not been created.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrStorageClosed indicates that the storage backend is closed.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrInvalidQuery indicates invalid query parameters.
	ErrInvalidQuery = errors.New("invalid query parameters")

	// ErrUnknownMetric indicates an unsupported similarity metric.
	ErrUnknownMetric = errors.New("unknown similarity metric")

	// ErrCollectionRequired is returned when a store is created without a collection name.
	ErrCollectionRequired = errors.New("collection name required")

	// ErrSerializationFailed indicates a serialization/deserialization failure.
	ErrSerializationFailed = errors.New("serialization failed")
)

// Error wraps any failure raised while talking to a vector store.
// Callers tell an unreachable store from a missing collection by checking
// errors.Is(err, ErrCollectionNotFound), never by the wrapper's type.
type Error struct {
	Op         string
	Collection string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store %s %q: %v", e.Op, e.Collection, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap returns err wrapped in an *Error, or nil if err is nil.
// Errors that are already *Error are returned unchanged.
func Wrap(op, collection string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Op: op, Collection: collection, Err: err}
}

// CheckCompatible returns ErrConfigMismatch if an existing collection's
// configuration differs from the requested one.
func CheckCompatible(existing *CollectionInfo, dimension int, metric Metric) error {
	if existing.Dimension != dimension {
		return fmt.Errorf("%w: collection %q has dimension %d, requested %d",
			ErrConfigMismatch, existing.Name, existing.Dimension, dimension)
	}
	if existing.Metric != metric {
		return fmt.Errorf("%w: collection %q uses %s, requested %s",
			ErrConfigMismatch, existing.Name, existing.Metric, metric)
	}
	return nil
}

// CheckDimensions returns ErrConfigMismatch if any point's vector length differs from dimension.
func CheckDimensions(dimension int, points []*core.IndexedPoint) error {
	for _, p := range points {
		if len(p.Vector) != dimension {
			return fmt.Errorf("%w: point %d has %d dimensions, collection expects %d",
				ErrConfigMismatch, p.ID, len(p.Vector), dimension)
		}
	}
	return nil
}
