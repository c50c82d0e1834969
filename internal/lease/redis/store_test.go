package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	r "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/SpaceWJK/epic7-monitor/internal/monitor"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := r.NewClient(&r.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb, ""), mr
}

func testLease() monitor.Lease {
	return monitor.Lease{
		Domain:     "global-monitor",
		Owner:      "owner-a",
		AcquiredAt: time.Unix(1750000000, 0).UTC(),
		TTL:        35 * time.Minute,
	}
}

func TestNewStoreDefaultsPrefix(t *testing.T) {
	t.Parallel()
	store := NewStore(nil, "")
	require.Equal(t, "epic7:lease:global-monitor", store.key("global-monitor"))

	custom := NewStore(nil, "staging:lease")
	require.Equal(t, "staging:lease:korea-monitor", custom.key("korea-monitor"))
}

func TestCreateIsConditional(t *testing.T) {
	t.Parallel()
	store, mr := newTestStore(t)
	ctx := context.Background()

	lease := testLease()
	require.NoError(t, store.Create(ctx, lease))
	require.True(t, mr.Exists("epic7:lease:global-monitor"))

	rival := lease
	rival.Owner = "owner-b"
	require.ErrorIs(t, store.Create(ctx, rival), monitor.ErrLeaseHeld)

	got, held, err := store.Get(ctx, "global-monitor")
	require.NoError(t, err)
	require.True(t, held)
	require.Equal(t, "owner-a", got.Owner, "losing create must not clobber the holder")
}

func TestCreateSetsExpiryBackstop(t *testing.T) {
	t.Parallel()
	store, mr := newTestStore(t)

	lease := testLease()
	require.NoError(t, store.Create(context.Background(), lease))

	// The server-side expiry is padded well past the lease TTL so the
	// manager, not Redis, normally observes and reclaims staleness.
	require.Equal(t, lease.TTL*4, mr.TTL("epic7:lease:global-monitor"))
}

func TestGetRoundTrip(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	ctx := context.Background()

	lease := testLease()
	require.NoError(t, store.Create(ctx, lease))

	got, held, err := store.Get(ctx, "global-monitor")
	require.NoError(t, err)
	require.True(t, held)
	require.Equal(t, lease, got)
}

func TestGetAbsentDomain(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)

	_, held, err := store.Get(context.Background(), "korea-monitor")
	require.NoError(t, err)
	require.False(t, held)
}

func TestDeleteAbsentIsNoop(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Delete(ctx, "global-monitor"))

	require.NoError(t, store.Create(ctx, testLease()))
	require.NoError(t, store.Delete(ctx, "global-monitor"))
	require.NoError(t, store.Delete(ctx, "global-monitor"))
}

func TestDeleteIfMatchingOwner(t *testing.T) {
	t.Parallel()
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testLease()))
	require.NoError(t, store.DeleteIf(ctx, "global-monitor", "owner-a"))
	require.False(t, mr.Exists("epic7:lease:global-monitor"))
}

func TestDeleteIfDifferentOwner(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	ctx := context.Background()

	lease := testLease()
	lease.Owner = "owner-b"
	require.NoError(t, store.Create(ctx, lease))

	err := store.DeleteIf(ctx, "global-monitor", "owner-a")
	require.ErrorIs(t, err, monitor.ErrLeaseHeld)

	got, held, err := store.Get(ctx, "global-monitor")
	require.NoError(t, err)
	require.True(t, held)
	require.Equal(t, "owner-b", got.Owner, "mismatched delete must not clobber the holder")
}

func TestDeleteIfAbsentDomain(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)

	err := store.DeleteIf(context.Background(), "global-monitor", "owner-a")
	require.ErrorIs(t, err, monitor.ErrLeaseHeld)
}

func TestPing(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	require.NoError(t, store.Ping(context.Background()))
}
