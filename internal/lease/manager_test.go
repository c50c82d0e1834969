package lease

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SpaceWJK/epic7-monitor/internal/lease/memory"
	"github.com/SpaceWJK/epic7-monitor/internal/monitor"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestManager() (*Manager, *memory.Store, *fakeClock) {
	store := memory.NewStore()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return NewManager(store, clock, zap.NewNop()), store, clock
}

func TestAcquireFreeDomain(t *testing.T) {
	t.Parallel()
	mgr, _, clock := newTestManager()

	lease, err := mgr.Acquire(context.Background(), "global-monitor", 35*time.Minute)
	require.NoError(t, err)
	require.Equal(t, "global-monitor", lease.Domain)
	require.NotEmpty(t, lease.Owner)
	require.Equal(t, clock.now, lease.AcquiredAt)
	require.Equal(t, 35*time.Minute, lease.TTL)
}

func TestAcquireDeniedWhileHeld(t *testing.T) {
	t.Parallel()
	mgr, _, clock := newTestManager()
	ctx := context.Background()

	first, err := mgr.Acquire(ctx, "global-monitor", 2100*time.Second)
	require.NoError(t, err)

	// 1000s in, well inside the TTL: a second acquirer must be turned away.
	clock.advance(1000 * time.Second)
	_, err = mgr.Acquire(ctx, "global-monitor", 2100*time.Second)
	require.ErrorIs(t, err, monitor.ErrLeaseDenied)

	// The original holder is untouched by the denied attempt.
	require.False(t, first.Expired(clock.Now()))
}

func TestAcquireReclaimsExpiredLease(t *testing.T) {
	t.Parallel()
	mgr, store, clock := newTestManager()
	ctx := context.Background()

	stale, err := mgr.Acquire(ctx, "global-monitor", 2100*time.Second)
	require.NoError(t, err)

	// 2200s > TTL: the holder is presumed crashed and the record reclaimed.
	clock.advance(2200 * time.Second)
	fresh, err := mgr.Acquire(ctx, "global-monitor", 2100*time.Second)
	require.NoError(t, err)
	require.NotEqual(t, stale.Owner, fresh.Owner)
	require.Equal(t, clock.now, fresh.AcquiredAt)

	current, held, err := store.Get(ctx, "global-monitor")
	require.NoError(t, err)
	require.True(t, held)
	require.Equal(t, fresh.Owner, current.Owner)
}

func TestAcquireDomainsAreIndependent(t *testing.T) {
	t.Parallel()
	mgr, _, _ := newTestManager()
	ctx := context.Background()

	_, err := mgr.Acquire(ctx, "global-monitor", 35*time.Minute)
	require.NoError(t, err)
	_, err = mgr.Acquire(ctx, "korea-monitor", 35*time.Minute)
	require.NoError(t, err)
}

func TestAcquireRejectsNonPositiveTTL(t *testing.T) {
	t.Parallel()
	mgr, _, _ := newTestManager()

	_, err := mgr.Acquire(context.Background(), "global-monitor", 0)
	require.Error(t, err)
	require.NotErrorIs(t, err, monitor.ErrLeaseDenied)
}

func TestReleaseIsIdempotent(t *testing.T) {
	t.Parallel()
	mgr, store, _ := newTestManager()
	ctx := context.Background()

	_, err := mgr.Acquire(ctx, "global-monitor", 35*time.Minute)
	require.NoError(t, err)

	require.NoError(t, mgr.Release(ctx, "global-monitor"))
	require.NoError(t, mgr.Release(ctx, "global-monitor"))

	_, held, err := store.Get(ctx, "global-monitor")
	require.NoError(t, err)
	require.False(t, held)
}

func TestReleaseThenReacquire(t *testing.T) {
	t.Parallel()
	mgr, _, _ := newTestManager()
	ctx := context.Background()

	_, err := mgr.Acquire(ctx, "global-monitor", 35*time.Minute)
	require.NoError(t, err)
	require.NoError(t, mgr.Release(ctx, "global-monitor"))

	_, err = mgr.Acquire(ctx, "global-monitor", 35*time.Minute)
	require.NoError(t, err)
}

func TestForceReleaseUnblocksLiveLease(t *testing.T) {
	t.Parallel()
	mgr, _, _ := newTestManager()
	ctx := context.Background()

	_, err := mgr.Acquire(ctx, "global-monitor", 35*time.Minute)
	require.NoError(t, err)

	require.NoError(t, mgr.ForceRelease(ctx, "global-monitor"))

	_, err = mgr.Acquire(ctx, "global-monitor", 35*time.Minute)
	require.NoError(t, err)
}

// racingStore reports the domain as free but always loses the conditional
// create, simulating a rival acquirer winning between Get and Create.
type racingStore struct {
	creates int
}

func (s *racingStore) Create(context.Context, monitor.Lease) error {
	s.creates++
	return monitor.ErrLeaseHeld
}

func (s *racingStore) Get(context.Context, string) (monitor.Lease, bool, error) {
	return monitor.Lease{}, false, nil
}

func (s *racingStore) Delete(context.Context, string) error {
	return nil
}

func (s *racingStore) DeleteIf(context.Context, string, string) error {
	return monitor.ErrLeaseHeld
}

func TestAcquireLostCreateRaceBecomesDenial(t *testing.T) {
	t.Parallel()
	store := &racingStore{}
	clock := &fakeClock{now: time.Now().UTC()}
	mgr := NewManager(store, clock, zap.NewNop())

	_, err := mgr.Acquire(context.Background(), "global-monitor", 35*time.Minute)
	require.ErrorIs(t, err, monitor.ErrLeaseDenied)
	require.Equal(t, 2, store.creates, "acquire retries the create exactly once")
}

// staleReadStore serves one canned stale lease on the first Get and then
// defers to the wrapped store, simulating a reclaimer whose read races a
// rival that already reclaimed the domain and holds a fresh lease.
type staleReadStore struct {
	*memory.Store
	stale monitor.Lease
	reads int
}

func (s *staleReadStore) Get(ctx context.Context, domain string) (monitor.Lease, bool, error) {
	s.reads++
	if s.reads == 1 {
		return s.stale, true, nil
	}
	return s.Store.Get(ctx, domain)
}

func TestAcquireCannotEvictRivalReclaimer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	// The rival has already deleted the crashed holder's record and created
	// its own live lease in the backing store.
	backing := memory.NewStore()
	rival := monitor.Lease{
		Domain:     "global-monitor",
		Owner:      "rival-owner",
		AcquiredAt: clock.now,
		TTL:        2100 * time.Second,
	}
	require.NoError(t, backing.Create(ctx, rival))

	// Our acquirer still sees the crashed holder's expired record.
	store := &staleReadStore{
		Store: backing,
		stale: monitor.Lease{
			Domain:     "global-monitor",
			Owner:      "crashed-owner",
			AcquiredAt: clock.now.Add(-2200 * time.Second),
			TTL:        2100 * time.Second,
		},
	}
	mgr := NewManager(store, clock, zap.NewNop())

	_, err := mgr.Acquire(ctx, "global-monitor", 2100*time.Second)
	require.ErrorIs(t, err, monitor.ErrLeaseDenied)

	// The rival's fresh lease must survive the failed reclaim.
	current, held, err := backing.Get(ctx, "global-monitor")
	require.NoError(t, err)
	require.True(t, held)
	require.Equal(t, "rival-owner", current.Owner)
}
