package qdrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/storage"
	"github.com/qdrant/go-client/qdrant"
)

const (
	// DefaultHost is the Qdrant host used when none is configured.
	DefaultHost = "localhost"
	// DefaultPort is Qdrant's gRPC port.
	DefaultPort = 6334
	// DefaultTimeout bounds every call to the server.
	DefaultTimeout = 600 * time.Second
)

// Config holds the connection settings for a Qdrant server.
type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// Store implements storage.VectorStore against a Qdrant collection over gRPC.
type Store struct {
	client     *qdrant.Client
	name       string
	timeout    time.Duration
	ownsClient bool
	logger     *slog.Logger
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
		s.logger = logger.With("component", "qdrant-store", "collection", s.name)
		return nil
	}
}

// WithTimeout sets the per-call timeout.
// Default is DefaultTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Store) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: timeout must be positive", storage.ErrInvalidQuery)
		}
		s.timeout = timeout
		return nil
	}
}

// Open connects to the server described by cfg and binds a store to collection.
// Closing the store closes the connection.
func Open(cfg Config, collection string, opts ...Option) (storage.VectorStore, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, storage.Wrap("open", collection, err)
	}
	store, err := newStore(client, collection, true, opts...)
	if err != nil {
		client.Close()
		return nil, err
	}
	return store, nil
}

// NewStore binds a store to collection using an existing client.
// The caller keeps ownership of the client.
func NewStore(client *qdrant.Client, collection string, opts ...Option) (storage.VectorStore, error) {
	return newStore(client, collection, false, opts...)
}

func newStore(client *qdrant.Client, collection string, owns bool, opts ...Option) (*Store, error) {
	if collection == "" {
		return nil, storage.ErrCollectionRequired
	}
	s := &Store{
		client:     client,
		name:       collection,
		timeout:    DefaultTimeout,
		ownsClient: owns,
		logger:     slog.Default().With("component", "qdrant-store", "collection", collection),
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

func (s *Store) call(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// readInfo fetches the collection configuration.
// Returns storage.ErrCollectionNotFound if the collection does not exist.
func (s *Store) readInfo(ctx context.Context) (*storage.CollectionInfo, error) {
	exists, err := s.client.CollectionExists(ctx, s.name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, storage.ErrCollectionNotFound
	}

	remote, err := s.client.GetCollectionInfo(ctx, s.name)
	if err != nil {
		return nil, err
	}
	params := remote.GetConfig().GetParams().GetVectorsConfig().GetParams()
	metric, err := metricFor(params.GetDistance())
	if err != nil {
		return nil, err
	}
	return &storage.CollectionInfo{
		Name:      s.name,
		Dimension: int(params.GetSize()),
		Metric:    metric,
		Points:    int(remote.GetPointsCount()),
	}, nil
}

// EnsureCollection creates the collection if absent and checks compatibility otherwise.
func (s *Store) EnsureCollection(ctx context.Context, dimension int, metric storage.Metric) error {
	if dimension <= 0 {
		return storage.Wrap("ensure", s.name, fmt.Errorf("%w: dimension %d", storage.ErrInvalidQuery, dimension))
	}
	ctx, cancel := s.call(ctx)
	defer cancel()

	existing, err := s.readInfo(ctx)
	if err == nil {
		return storage.Wrap("ensure", s.name, storage.CheckCompatible(existing, dimension, metric))
	}
	if !errors.Is(err, storage.ErrCollectionNotFound) {
		return storage.Wrap("ensure", s.name, err)
	}

	distance, err := distanceFor(metric)
	if err != nil {
		return storage.Wrap("ensure", s.name, err)
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: distance,
		}),
	})
	if err != nil {
		return storage.Wrap("ensure", s.name, err)
	}
	s.logger.Info("created collection", "dimension", dimension, "metric", metric)
	return nil
}

// CollectionExists asks the server whether the collection exists.
func (s *Store) CollectionExists(ctx context.Context) (bool, error) {
	ctx, cancel := s.call(ctx)
	defer cancel()

	exists, err := s.client.CollectionExists(ctx, s.name)
	return exists, storage.Wrap("exists", s.name, err)
}

// Upsert sends every point in one request and waits for it to be applied.
func (s *Store) Upsert(ctx context.Context, points ...*core.IndexedPoint) error {
	if len(points) == 0 {
		return nil
	}
	ctx, cancel := s.call(ctx)
	defer cancel()

	info, err := s.readInfo(ctx)
	if err != nil {
		return storage.Wrap("upsert", s.name, err)
	}
	if err := storage.CheckDimensions(info.Dimension, points); err != nil {
		return storage.Wrap("upsert", s.name, err)
	}

	structs := make([]*qdrant.PointStruct, len(points))
	for i, point := range points {
		structs[i] = toPointStruct(point)
	}
	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.name,
		Wait:           qdrant.PtrOf(true),
		Points:         structs,
	})
	if err != nil {
		s.logger.Error("upsert failed", "points", len(points), "err", err)
		return storage.Wrap("upsert", s.name, err)
	}

	s.logger.Debug("upserted points", "count", len(points))
	return nil
}

// Search runs a nearest-neighbour query with a server-side score threshold.
func (s *Store) Search(ctx context.Context, vector []float32, limit int, threshold float32) ([]*core.RetrievalResult, error) {
	if limit <= 0 {
		return nil, storage.Wrap("search", s.name, fmt.Errorf("%w: limit %d", storage.ErrInvalidQuery, limit))
	}
	ctx, cancel := s.call(ctx)
	defer cancel()

	info, err := s.readInfo(ctx)
	if err != nil {
		return nil, storage.Wrap("search", s.name, err)
	}
	if len(vector) != info.Dimension {
		return nil, storage.Wrap("search", s.name, fmt.Errorf("%w: query has %d dimensions, collection expects %d",
			storage.ErrConfigMismatch, len(vector), info.Dimension))
	}

	scored, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.name,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		ScoreThreshold: qdrant.PtrOf(threshold),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, storage.Wrap("search", s.name, err)
	}

	results := make([]*core.RetrievalResult, 0, len(scored))
	for _, point := range scored {
		payload := payloadFromValues(point.GetPayload())
		results = append(results, core.ResultFromPayload(core.PointID(point.GetId().GetNum()), &payload, point.GetScore()))
	}
	return storage.RankResults(results, limit), nil
}

// Count returns the exact number of points in the collection.
func (s *Store) Count(ctx context.Context) (int, error) {
	ctx, cancel := s.call(ctx)
	defer cancel()

	if err := s.requireCollection(ctx); err != nil {
		return 0, storage.Wrap("count", s.name, err)
	}
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.name,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, storage.Wrap("count", s.name, err)
	}
	return int(count), nil
}

// Filenames scrolls the collection fetching only the filename payload field.
func (s *Store) Filenames(ctx context.Context) (map[string]struct{}, error) {
	ctx, cancel := s.call(ctx)
	defer cancel()

	if err := s.requireCollection(ctx); err != nil {
		return nil, storage.Wrap("filenames", s.name, err)
	}

	filenames := make(map[string]struct{})
	var offset *qdrant.PointId
	for {
		points, next, err := s.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
			CollectionName: s.name,
			Offset:         offset,
			Limit:          qdrant.PtrOf(uint32(storage.FilenamePageSize)),
			WithPayload:    qdrant.NewWithPayloadInclude(keyFilename),
		})
		if err != nil {
			return nil, storage.Wrap("filenames", s.name, err)
		}
		for _, point := range points {
			if name := point.GetPayload()[keyFilename].GetStringValue(); name != "" {
				filenames[name] = struct{}{}
			}
		}
		if next == nil {
			return filenames, nil
		}
		offset = next
	}
}

// ExistingIDs retrieves ids without payloads and reports which were found.
// A missing collection holds no ids.
func (s *Store) ExistingIDs(ctx context.Context, ids ...core.PointID) (map[core.PointID]struct{}, error) {
	existing := make(map[core.PointID]struct{})
	if len(ids) == 0 {
		return existing, nil
	}
	ctx, cancel := s.call(ctx)
	defer cancel()

	if err := s.requireCollection(ctx); err != nil {
		if errors.Is(err, storage.ErrCollectionNotFound) {
			return existing, nil
		}
		return nil, storage.Wrap("existing", s.name, err)
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDNum(uint64(id))
	}
	found, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.name,
		Ids:            pointIDs,
		WithPayload:    qdrant.NewWithPayload(false),
	})
	if err != nil {
		return nil, storage.Wrap("existing", s.name, err)
	}
	for _, point := range found {
		existing[core.PointID(point.GetId().GetNum())] = struct{}{}
	}
	return existing, nil
}

// Info returns the collection configuration with an exact point count.
func (s *Store) Info(ctx context.Context) (*storage.CollectionInfo, error) {
	ctx, cancel := s.call(ctx)
	defer cancel()

	info, err := s.readInfo(ctx)
	if err != nil {
		return nil, storage.Wrap("info", s.name, err)
	}
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.name,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return nil, storage.Wrap("info", s.name, err)
	}
	info.Points = int(count)
	return info, nil
}

// DeleteCollection drops the collection on the server.
// Deleting a missing collection is a no-op.
func (s *Store) DeleteCollection(ctx context.Context) error {
	ctx, cancel := s.call(ctx)
	defer cancel()

	exists, err := s.client.CollectionExists(ctx, s.name)
	if err != nil {
		return storage.Wrap("delete", s.name, err)
	}
	if !exists {
		return nil
	}
	if err := s.client.DeleteCollection(ctx, s.name); err != nil {
		return storage.Wrap("delete", s.name, err)
	}
	s.logger.Warn("deleted collection")
	return nil
}

// Close closes the client connection if the store created it.
func (s *Store) Close() error {
	if !s.ownsClient {
		return nil
	}
	return s.client.Close()
}

func (s *Store) requireCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.name)
	if err != nil {
		return err
	}
	if !exists {
		return storage.ErrCollectionNotFound
	}
	return nil
}
