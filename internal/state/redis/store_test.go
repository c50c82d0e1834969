package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	r "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/SpaceWJK/epic7-monitor/internal/monitor"
	"github.com/SpaceWJK/epic7-monitor/internal/state"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := r.NewClient(&r.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb, ""), mr
}

func TestNewStoreDefaultsPrefix(t *testing.T) {
	t.Parallel()
	store := NewStore(nil, "")
	require.Equal(t, "epic7:state:crawled_links", store.contentKey(state.DocLinks))
	require.Equal(t, "epic7:state:crawled_links:ver", store.versionKey(state.DocLinks))

	custom := NewStore(nil, "staging:state")
	require.Equal(t, "staging:state:sentiment_data", custom.contentKey(state.DocSentiment))
}

func TestReadAbsentDocument(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)

	content, version, err := store.Read(context.Background(), state.DocLinks)
	require.NoError(t, err)
	require.Nil(t, content)
	require.Equal(t, monitor.Version(0), version)
}

func TestWriteCreatesAtVersionZero(t *testing.T) {
	t.Parallel()
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, state.DocLinks, []byte(`{"links":{}}`), 0))
	require.True(t, mr.Exists("epic7:state:crawled_links"))

	content, version, err := store.Read(ctx, state.DocLinks)
	require.NoError(t, err)
	require.JSONEq(t, `{"links":{}}`, string(content))
	require.Equal(t, monitor.Version(1), version)
}

func TestWriteBumpsVersionEachTime(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, state.DocRunStats, []byte(`{"runs":[]}`), 0))
	require.NoError(t, store.Write(ctx, state.DocRunStats, []byte(`{"runs":["a"]}`), 1))
	require.NoError(t, store.Write(ctx, state.DocRunStats, []byte(`{"runs":["a","b"]}`), 2))

	content, version, err := store.Read(ctx, state.DocRunStats)
	require.NoError(t, err)
	require.JSONEq(t, `{"runs":["a","b"]}`, string(content))
	require.Equal(t, monitor.Version(3), version)
}

func TestWriteStaleVersionConflicts(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, state.DocSentiment, []byte(`{"overall":{}}`), 0))
	require.NoError(t, store.Write(ctx, state.DocSentiment, []byte(`{"overall":{"positive":1}}`), 1))

	// A writer still holding version 1 must lose without touching content.
	err := store.Write(ctx, state.DocSentiment, []byte(`{"overall":{"negative":1}}`), 1)
	require.ErrorIs(t, err, monitor.ErrVersionConflict)

	content, version, err := store.Read(ctx, state.DocSentiment)
	require.NoError(t, err)
	require.JSONEq(t, `{"overall":{"positive":1}}`, string(content))
	require.Equal(t, monitor.Version(2), version)
}

func TestWriteVersionZeroLosesToExisting(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, state.DocLinks, []byte(`{"links":{"a":1}}`), 0))

	err := store.Write(ctx, state.DocLinks, []byte(`{"links":{"b":1}}`), 0)
	require.ErrorIs(t, err, monitor.ErrVersionConflict)
}

func TestDocumentsAreIndependent(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, state.DocLinks, []byte(`{"links":{}}`), 0))
	require.NoError(t, store.Write(ctx, state.DocSentiment, []byte(`{"overall":{}}`), 0))

	_, version, err := store.Read(ctx, state.DocRunStats)
	require.NoError(t, err)
	require.Equal(t, monitor.Version(0), version)
}
