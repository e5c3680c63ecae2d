package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/storage"
)

// ErrInvalidCollectionName is returned for collection names containing ':'.
var ErrInvalidCollectionName = errors.New("collection name must not contain ':'")

// Store implements storage.VectorStore on top of BadgerDB.
// Similarity search is a brute-force scan over the collection's points.
type Store struct {
	backend     *Backend
	name        string
	ownsBackend bool
	logger      *slog.Logger
}

var _ storage.VectorStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger.With("component", "badger-store", "collection", s.name)
		return nil
	}
}

// NewStore binds a store to a collection on an already opened backend.
// The caller keeps ownership of the backend.
func NewStore(backend *Backend, collection string, opts ...Option) (storage.VectorStore, error) {
	return newStore(backend, collection, false, opts...)
}

// OpenStore opens a BadgerDB database at path and binds a store to collection.
// Closing the store closes the database.
func OpenStore(path, collection string, opts ...Option) (storage.VectorStore, error) {
	backend, err := OpenBackend(path, false)
	if err != nil {
		return nil, storage.Wrap("open", collection, err)
	}
	store, err := newStore(backend, collection, true, opts...)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return store, nil
}

func newStore(backend *Backend, collection string, owns bool, opts ...Option) (*Store, error) {
	if collection == "" {
		return nil, storage.ErrCollectionRequired
	}
	if strings.Contains(collection, ":") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCollectionName, collection)
	}

	s := &Store{
		backend:     backend,
		name:        collection,
		ownsBackend: owns,
		logger:      slog.Default().With("component", "badger-store", "collection", collection),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Name returns the collection name.
func (s *Store) Name() string {
	return s.name
}

// readInfo loads the collection metadata within tx.
// Returns storage.ErrCollectionNotFound if the collection was never created.
func (s *Store) readInfo(tx *badger.Txn) (*storage.CollectionInfo, error) {
	item, err := tx.Get(makeMetaKey(s.name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, storage.ErrCollectionNotFound
	}
	if err != nil {
		return nil, err
	}

	var info *storage.CollectionInfo
	err = item.Value(func(val []byte) error {
		var err error
		info, err = storage.UnmarshalCollectionInfo(s.name, val)
		return err
	})
	return info, err
}

// EnsureCollection creates the collection if absent and checks compatibility otherwise.
func (s *Store) EnsureCollection(ctx context.Context, dimension int, metric storage.Metric) error {
	if dimension <= 0 {
		return storage.Wrap("ensure", s.name, fmt.Errorf("%w: dimension %d", storage.ErrInvalidQuery, dimension))
	}

	err := s.backend.WithTx(func(tx *badger.Txn) error {
		existing, err := s.readInfo(tx)
		if err == nil {
			return storage.CheckCompatible(existing, dimension, metric)
		}
		if !errors.Is(err, storage.ErrCollectionNotFound) {
			return err
		}

		info := &storage.CollectionInfo{Name: s.name, Dimension: dimension, Metric: metric}
		if err := tx.Set(makeMetaKey(s.name), storage.MarshalCollectionInfo(info)); err != nil {
			return err
		}
		s.logger.Info("created collection", "dimension", dimension, "metric", metric)
		return tx.Commit()
	}, true)
	return storage.Wrap("ensure", s.name, err)
}

// CollectionExists reports whether the collection metadata is present.
func (s *Store) CollectionExists(ctx context.Context) (bool, error) {
	exists := false
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		_, err := tx.Get(makeMetaKey(s.name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	}, false)
	return exists, storage.Wrap("exists", s.name, err)
}

// Upsert writes all points in a single transaction.
func (s *Store) Upsert(ctx context.Context, points ...*core.IndexedPoint) error {
	if len(points) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return storage.Wrap("upsert", s.name, err)
	}

	err := s.backend.WithTx(func(tx *badger.Txn) error {
		info, err := s.readInfo(tx)
		if err != nil {
			return err
		}
		if err := storage.CheckDimensions(info.Dimension, points); err != nil {
			return err
		}

		for _, point := range points {
			key := makePointKey(s.name, point.ID)

			// Drop the previous filename index entry if the point moves documents.
			if item, err := tx.Get(key); err == nil {
				var old *core.IndexedPoint
				if err := item.Value(func(val []byte) error {
					var err error
					old, err = storage.UnmarshalPoint(val)
					return err
				}); err != nil {
					return err
				}
				if old.Payload.Filename != point.Payload.Filename {
					if err := tx.Delete(makeFilenameKey(s.name, old.Payload.Filename, old.ID)); err != nil {
						return err
					}
				}
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			if err := tx.Set(key, storage.MarshalPoint(point)); err != nil {
				return err
			}
			if err := tx.Set(makeFilenameKey(s.name, point.Payload.Filename, point.ID), []byte{}); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		s.logger.Error("upsert failed", "points", len(points), "err", err)
		return storage.Wrap("upsert", s.name, err)
	}

	s.logger.Debug("upserted points", "count", len(points))
	return nil
}

// Search scans every point in the collection and returns the best matches.
func (s *Store) Search(ctx context.Context, vector []float32, limit int, threshold float32) ([]*core.RetrievalResult, error) {
	if limit <= 0 {
		return nil, storage.Wrap("search", s.name, fmt.Errorf("%w: limit %d", storage.ErrInvalidQuery, limit))
	}

	var results []*core.RetrievalResult
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		info, err := s.readInfo(tx)
		if err != nil {
			return err
		}
		if len(vector) != info.Dimension {
			return fmt.Errorf("%w: query has %d dimensions, collection expects %d",
				storage.ErrConfigMismatch, len(vector), info.Dimension)
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = makePointPrefix(s.name)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var point *core.IndexedPoint
			err := iter.Item().Value(func(val []byte) error {
				var err error
				point, err = storage.UnmarshalPoint(val)
				return err
			})
			if err != nil {
				return err
			}

			score := storage.Score(info.Metric, vector, point.Vector)
			if score >= threshold {
				results = append(results, core.ResultFromPayload(point.ID, &point.Payload, score))
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, storage.Wrap("search", s.name, err)
	}

	return storage.RankResults(results, limit), nil
}

// countPoints counts point keys without reading values.
func (s *Store) countPoints(tx *badger.Txn) int {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = makePointPrefix(s.name)
	opts.PrefetchValues = false
	iter := tx.NewIterator(opts)
	defer iter.Close()

	count := 0
	for iter.Rewind(); iter.Valid(); iter.Next() {
		count++
	}
	return count
}

// Count returns the number of points in the collection.
func (s *Store) Count(ctx context.Context) (int, error) {
	count := 0
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		if _, err := s.readInfo(tx); err != nil {
			return err
		}
		count = s.countPoints(tx)
		return nil
	}, false)
	if err != nil {
		return 0, storage.Wrap("count", s.name, err)
	}
	return count, nil
}

// Filenames walks the filename index and returns the distinct filenames.
func (s *Store) Filenames(ctx context.Context) (map[string]struct{}, error) {
	filenames := make(map[string]struct{})
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		if _, err := s.readInfo(tx); err != nil {
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeFilenamePrefix(s.name)
		opts.PrefetchValues = false
		opts.PrefetchSize = storage.FilenamePageSize
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			name, ok := filenameFromKey(s.name, iter.Item().Key())
			if !ok {
				continue
			}
			filenames[name] = struct{}{}
		}
		return nil
	}, false)
	if err != nil {
		return nil, storage.Wrap("filenames", s.name, err)
	}
	return filenames, nil
}

// ExistingIDs returns which of ids are already stored.
func (s *Store) ExistingIDs(ctx context.Context, ids ...core.PointID) (map[core.PointID]struct{}, error) {
	existing := make(map[core.PointID]struct{})
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			_, err := tx.Get(makePointKey(s.name, id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			existing[id] = struct{}{}
		}
		return nil
	}, false)
	if err != nil {
		return nil, storage.Wrap("existing", s.name, err)
	}
	return existing, nil
}

// Info returns the collection configuration and point count.
func (s *Store) Info(ctx context.Context) (*storage.CollectionInfo, error) {
	var info *storage.CollectionInfo
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		info, err = s.readInfo(tx)
		if err != nil {
			return err
		}
		info.Points = s.countPoints(tx)
		return nil
	}, false)
	if err != nil {
		return nil, storage.Wrap("info", s.name, err)
	}
	return info, nil
}

// DeleteCollection drops every key belonging to the collection.
// Deleting a missing collection is a no-op.
func (s *Store) DeleteCollection(ctx context.Context) error {
	if err := s.backend.DropPrefix(makeCollectionPrefix(s.name)); err != nil {
		return storage.Wrap("delete", s.name, err)
	}
	s.logger.Warn("deleted collection")
	return nil
}

// Close closes the backend if the store opened it.
func (s *Store) Close() error {
	if !s.ownsBackend || s.backend.IsClosed() {
		return nil
	}
	return s.backend.Close()
}
