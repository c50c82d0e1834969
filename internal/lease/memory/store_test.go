package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/SpaceWJK/epic7-monitor/internal/monitor"
)

func TestCreateIsConditional(t *testing.T) {
	t.Parallel()
	store := NewStore()
	ctx := context.Background()

	lease := monitor.Lease{
		Domain:     "global-monitor",
		Owner:      "owner-a",
		AcquiredAt: time.Now().UTC(),
		TTL:        35 * time.Minute,
	}
	require.NoError(t, store.Create(ctx, lease))

	rival := lease
	rival.Owner = "owner-b"
	require.ErrorIs(t, store.Create(ctx, rival), monitor.ErrLeaseHeld)

	got, held, err := store.Get(ctx, "global-monitor")
	require.NoError(t, err)
	require.True(t, held)
	require.Equal(t, "owner-a", got.Owner, "losing create must not clobber the holder")
}

func TestGetAbsentDomain(t *testing.T) {
	t.Parallel()
	store := NewStore()

	_, held, err := store.Get(context.Background(), "korea-monitor")
	require.NoError(t, err)
	require.False(t, held)
}

func TestDeleteAbsentIsNoop(t *testing.T) {
	t.Parallel()
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.Delete(ctx, "global-monitor"))

	require.NoError(t, store.Create(ctx, monitor.Lease{Domain: "global-monitor"}))
	require.NoError(t, store.Delete(ctx, "global-monitor"))
	require.NoError(t, store.Delete(ctx, "global-monitor"))
}

func TestDeleteIfMatchingOwner(t *testing.T) {
	t.Parallel()
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, monitor.Lease{Domain: "global-monitor", Owner: "owner-a"}))
	require.NoError(t, store.DeleteIf(ctx, "global-monitor", "owner-a"))

	_, held, err := store.Get(ctx, "global-monitor")
	require.NoError(t, err)
	require.False(t, held)
}

func TestDeleteIfDifferentOwner(t *testing.T) {
	t.Parallel()
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, monitor.Lease{Domain: "global-monitor", Owner: "owner-b"}))
	require.ErrorIs(t, store.DeleteIf(ctx, "global-monitor", "owner-a"), monitor.ErrLeaseHeld)

	got, held, err := store.Get(ctx, "global-monitor")
	require.NoError(t, err)
	require.True(t, held)
	require.Equal(t, "owner-b", got.Owner, "mismatched delete must not clobber the holder")
}

func TestDeleteIfAbsentDomain(t *testing.T) {
	t.Parallel()
	store := NewStore()

	err := store.DeleteIf(context.Background(), "global-monitor", "owner-a")
	require.ErrorIs(t, err, monitor.ErrLeaseHeld)
}
