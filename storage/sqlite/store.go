package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/storage"
)

const driverName = "sqlite3"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		dimension INTEGER NOT NULL,
		metric TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS points (
		collection TEXT NOT NULL,
		id INTEGER NOT NULL,
		filename TEXT NOT NULL,
		payload BLOB NOT NULL,
		PRIMARY KEY (collection, id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_points_filename ON points(collection, filename)`,
}

// Open connects to the SQLite database at dsn and creates the schema.
// Use ":memory:" for a throwaway database.
func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return db, nil
}

type collectionRow struct {
	Name      string `db:"name"`
	Dimension int    `db:"dimension"`
	Metric    string `db:"metric"`
}

// Store implements storage.VectorStore on SQLite.
// Points are stored as MUS-encoded blobs and searched with a full scan.
type Store struct {
	db     *sqlx.DB
	name   string
	ownsDB bool
	logger *slog.Logger
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
		s.logger = logger.With("component", "sqlite-store", "collection", s.name)
		return nil
	}
}

// NewStore binds a store to collection on an open database.
// The caller keeps ownership of db, which must have been opened with Open.
func NewStore(db *sqlx.DB, collection string, opts ...Option) (storage.VectorStore, error) {
	return newStore(db, collection, false, opts...)
}

// OpenStore opens the database at dsn and binds a store to collection.
// Closing the store closes the database.
func OpenStore(dsn, collection string, opts ...Option) (storage.VectorStore, error) {
	db, err := Open(dsn)
	if err != nil {
		return nil, storage.Wrap("open", collection, err)
	}
	store, err := newStore(db, collection, true, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func newStore(db *sqlx.DB, collection string, owns bool, opts ...Option) (*Store, error) {
	if collection == "" {
		return nil, storage.ErrCollectionRequired
	}
	s := &Store{
		db:     db,
		name:   collection,
		ownsDB: owns,
		logger: slog.Default().With("component", "sqlite-store", "collection", collection),
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

func (s *Store) readInfo(ctx context.Context, q sqlx.QueryerContext) (*storage.CollectionInfo, error) {
	var row collectionRow
	err := sqlx.GetContext(ctx, q, &row,
		`SELECT name, dimension, metric FROM collections WHERE name = ?`, s.name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrCollectionNotFound
	}
	if err != nil {
		return nil, err
	}
	metric, err := storage.ParseMetric(row.Metric)
	if err != nil {
		return nil, err
	}
	return &storage.CollectionInfo{Name: row.Name, Dimension: row.Dimension, Metric: metric}, nil
}

func (s *Store) countPoints(ctx context.Context, q sqlx.QueryerContext) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, q, &count, `SELECT COUNT(*) FROM points WHERE collection = ?`, s.name)
	return count, err
}

// withTx runs fn in a transaction and commits if fn succeeds.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// EnsureCollection creates the collection row if absent and checks compatibility otherwise.
func (s *Store) EnsureCollection(ctx context.Context, dimension int, metric storage.Metric) error {
	if dimension <= 0 {
		return storage.Wrap("ensure", s.name, fmt.Errorf("%w: dimension %d", storage.ErrInvalidQuery, dimension))
	}

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		existing, err := s.readInfo(ctx, tx)
		if err == nil {
			return storage.CheckCompatible(existing, dimension, metric)
		}
		if !errors.Is(err, storage.ErrCollectionNotFound) {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO collections (name, dimension, metric) VALUES (?, ?, ?)`,
			s.name, dimension, string(metric)); err != nil {
			return err
		}
		s.logger.Info("created collection", "dimension", dimension, "metric", metric)
		return nil
	})
	return storage.Wrap("ensure", s.name, err)
}

// CollectionExists reports whether the collection row is present.
func (s *Store) CollectionExists(ctx context.Context) (bool, error) {
	_, err := s.readInfo(ctx, s.db)
	if errors.Is(err, storage.ErrCollectionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, storage.Wrap("exists", s.name, err)
	}
	return true, nil
}

// Upsert writes all points in a single transaction.
func (s *Store) Upsert(ctx context.Context, points ...*core.IndexedPoint) error {
	if len(points) == 0 {
		return nil
	}

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		info, err := s.readInfo(ctx, tx)
		if err != nil {
			return err
		}
		if err := storage.CheckDimensions(info.Dimension, points); err != nil {
			return err
		}

		stmt, err := tx.PreparexContext(ctx, `INSERT INTO points (collection, id, filename, payload)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (collection, id) DO UPDATE SET filename = excluded.filename, payload = excluded.payload`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, point := range points {
			if _, err := stmt.ExecContext(ctx, s.name, int64(point.ID), point.Payload.Filename,
				storage.MarshalPoint(point)); err != nil {
				return err
			}
		}
		return nil
	})
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

	info, err := s.readInfo(ctx, s.db)
	if err != nil {
		return nil, storage.Wrap("search", s.name, err)
	}
	if len(vector) != info.Dimension {
		return nil, storage.Wrap("search", s.name, fmt.Errorf("%w: query has %d dimensions, collection expects %d",
			storage.ErrConfigMismatch, len(vector), info.Dimension))
	}

	rows, err := s.db.QueryxContext(ctx, `SELECT payload FROM points WHERE collection = ?`, s.name)
	if err != nil {
		return nil, storage.Wrap("search", s.name, err)
	}
	defer rows.Close()

	var results []*core.RetrievalResult
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, storage.Wrap("search", s.name, err)
		}
		point, err := storage.UnmarshalPoint(blob)
		if err != nil {
			return nil, storage.Wrap("search", s.name, err)
		}
		score := storage.Score(info.Metric, vector, point.Vector)
		if score >= threshold {
			results = append(results, core.ResultFromPayload(point.ID, &point.Payload, score))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap("search", s.name, err)
	}

	return storage.RankResults(results, limit), nil
}

// Count returns the number of points in the collection.
func (s *Store) Count(ctx context.Context) (int, error) {
	if _, err := s.readInfo(ctx, s.db); err != nil {
		return 0, storage.Wrap("count", s.name, err)
	}
	count, err := s.countPoints(ctx, s.db)
	if err != nil {
		return 0, storage.Wrap("count", s.name, err)
	}
	return count, nil
}

// Filenames pages through the distinct filenames of the collection.
func (s *Store) Filenames(ctx context.Context) (map[string]struct{}, error) {
	if _, err := s.readInfo(ctx, s.db); err != nil {
		return nil, storage.Wrap("filenames", s.name, err)
	}

	filenames := make(map[string]struct{})
	for offset := 0; ; offset += storage.FilenamePageSize {
		var page []string
		err := s.db.SelectContext(ctx, &page,
			`SELECT DISTINCT filename FROM points WHERE collection = ? ORDER BY filename LIMIT ? OFFSET ?`,
			s.name, storage.FilenamePageSize, offset)
		if err != nil {
			return nil, storage.Wrap("filenames", s.name, err)
		}
		for _, name := range page {
			filenames[name] = struct{}{}
		}
		if len(page) < storage.FilenamePageSize {
			return filenames, nil
		}
	}
}

// ExistingIDs returns which of ids are already stored.
func (s *Store) ExistingIDs(ctx context.Context, ids ...core.PointID) (map[core.PointID]struct{}, error) {
	existing := make(map[core.PointID]struct{})
	if len(ids) == 0 {
		return existing, nil
	}

	args := make([]int64, len(ids))
	for i, id := range ids {
		args[i] = int64(id)
	}
	query, params, err := sqlx.In(`SELECT id FROM points WHERE collection = ? AND id IN (?)`, s.name, args)
	if err != nil {
		return nil, storage.Wrap("existing", s.name, err)
	}

	var found []int64
	if err := s.db.SelectContext(ctx, &found, s.db.Rebind(query), params...); err != nil {
		return nil, storage.Wrap("existing", s.name, err)
	}
	for _, id := range found {
		existing[core.PointID(id)] = struct{}{}
	}
	return existing, nil
}

// Info returns the collection configuration and point count.
func (s *Store) Info(ctx context.Context) (*storage.CollectionInfo, error) {
	info, err := s.readInfo(ctx, s.db)
	if err != nil {
		return nil, storage.Wrap("info", s.name, err)
	}
	info.Points, err = s.countPoints(ctx, s.db)
	if err != nil {
		return nil, storage.Wrap("info", s.name, err)
	}
	return info, nil
}

// DeleteCollection removes the collection row and its points.
// Deleting a missing collection is a no-op.
func (s *Store) DeleteCollection(ctx context.Context) error {
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM points WHERE collection = ?`, s.name); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, s.name)
		return err
	})
	if err != nil {
		return storage.Wrap("delete", s.name, err)
	}
	s.logger.Warn("deleted collection")
	return nil
}

// Close closes the database if the store opened it.
func (s *Store) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}
