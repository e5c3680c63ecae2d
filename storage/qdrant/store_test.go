package qdrant

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/storage"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// fakeServer holds the state behind the collection and point services.
type fakeServer struct {
	exists bool
	stored map[uint64]struct{}
	gets   atomic.Int32
}

type fakeCollections struct {
	qdrant.UnimplementedCollectionsServer
	*fakeServer
}

func (f fakeCollections) CollectionExists(_ context.Context, _ *qdrant.CollectionExistsRequest) (*qdrant.CollectionExistsResponse, error) {
	return &qdrant.CollectionExistsResponse{Result: &qdrant.CollectionExists{Exists: f.exists}}, nil
}

type fakePoints struct {
	qdrant.UnimplementedPointsServer
	*fakeServer
}

func (f fakePoints) Get(_ context.Context, req *qdrant.GetPoints) (*qdrant.GetResponse, error) {
	f.gets.Add(1)
	if !f.exists {
		return nil, status.Errorf(codes.NotFound, "Collection `%s` doesn't exist!", req.GetCollectionName())
	}
	resp := &qdrant.GetResponse{}
	for _, id := range req.GetIds() {
		if _, ok := f.stored[id.GetNum()]; ok {
			resp.Result = append(resp.Result, &qdrant.RetrievedPoint{Id: qdrant.NewIDNum(id.GetNum())})
		}
	}
	return resp, nil
}

// serve starts f on a loopback port and returns a store bound to "kb".
func serve(t *testing.T, f *fakeServer) storage.VectorStore {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := grpc.NewServer()
	qdrant.RegisterCollectionsServer(srv, fakeCollections{fakeServer: f})
	qdrant.RegisterPointsServer(srv, fakePoints{fakeServer: f})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:                   "127.0.0.1",
		Port:                   lis.Addr().(*net.TCPAddr).Port,
		SkipCompatibilityCheck: true,
		PoolSize:               1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewStore(client, "kb", WithTimeout(5*time.Second))
	require.NoError(t, err)
	return store
}

func TestExistingIDs(t *testing.T) {
	ctx := context.Background()
	stored := core.IDFor("a.pdf", 1, 1)
	missing := core.IDFor("a.pdf", 1, 2)

	t.Run("missing collection", func(t *testing.T) {
		f := &fakeServer{}
		store := serve(t, f)

		existing, err := store.ExistingIDs(ctx, stored, missing)
		require.NoError(t, err)
		assert.Empty(t, existing)
		assert.Zero(t, f.gets.Load())
	})

	t.Run("existing collection", func(t *testing.T) {
		f := &fakeServer{exists: true, stored: map[uint64]struct{}{uint64(stored): {}}}
		store := serve(t, f)

		existing, err := store.ExistingIDs(ctx, stored, missing)
		require.NoError(t, err)
		assert.Equal(t, map[core.PointID]struct{}{stored: {}}, existing)
		assert.Equal(t, int32(1), f.gets.Load())
	})

	t.Run("no ids", func(t *testing.T) {
		f := &fakeServer{}
		store := serve(t, f)

		existing, err := store.ExistingIDs(ctx)
		require.NoError(t, err)
		assert.Empty(t, existing)
	})
}
