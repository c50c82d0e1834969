// Package lease implements mutual exclusion for coordination domains over a
// plain key-value record store. There is no lock server and no process
// supervision: TTL-based staleness is the only deadlock-avoidance mechanism,
// so the TTL must exceed the slowest expected job duration but stay under
// one scheduling period.
package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/SpaceWJK/epic7-monitor/internal/id"
	"github.com/SpaceWJK/epic7-monitor/internal/metrics"
	"github.com/SpaceWJK/epic7-monitor/internal/monitor"
)

// Manager implements acquire/release/reclaim over a monitor.LeaseStore.
type Manager struct {
	store  monitor.LeaseStore
	clock  monitor.Clock
	logger *zap.Logger
}

// NewManager constructs a Manager.
func NewManager(store monitor.LeaseStore, clock monitor.Clock, logger *zap.Logger) *Manager {
	return &Manager{store: store, clock: clock, logger: logger}
}

// Acquire takes the lease for domain or returns monitor.ErrLeaseDenied if a
// live run holds it. An expired record is treated as abandoned: it is
// deleted and acquisition proceeds as the absent case. Callers that are
// denied must skip the run entirely, not wait and retry.
func (m *Manager) Acquire(ctx context.Context, domain string, ttl time.Duration) (monitor.Lease, error) {
	if ttl <= 0 {
		return monitor.Lease{}, fmt.Errorf("acquire %s: ttl must be > 0", domain)
	}

	// One extra attempt covers the window where a concurrent acquirer wins
	// the create race between our Get and Create. The store's conditional
	// create is what makes the race safe; the retry only reclassifies the
	// loss as a denial.
	for attempt := 0; attempt < 2; attempt++ {
		current, held, err := m.store.Get(ctx, domain)
		if err != nil {
			return monitor.Lease{}, fmt.Errorf("read lease %s: %w", domain, err)
		}

		now := m.clock.Now()
		if held {
			if !current.Expired(now) {
				m.logger.Info("lease denied, domain busy",
					zap.String("domain", domain),
					zap.Duration("age", current.Age(now)),
					zap.Duration("ttl", current.TTL),
				)
				metrics.LeaseDenied(domain)
				return monitor.Lease{}, monitor.ErrLeaseDenied
			}
			// Stale lease: the previous holder is presumed crashed.
			m.logger.Warn("reclaiming stale lease",
				zap.String("domain", domain),
				zap.String("previous_owner", current.Owner),
				zap.Duration("age", current.Age(now)),
				zap.Duration("ttl", current.TTL),
			)
			// The delete is conditioned on the stale owner we just read. A
			// rival reclaimer that got there first has already replaced the
			// record with its own live lease; blindly deleting here would
			// evict it and let two runs proceed at once.
			err = m.store.DeleteIf(ctx, domain, current.Owner)
			if errors.Is(err, monitor.ErrLeaseHeld) {
				continue
			}
			if err != nil {
				return monitor.Lease{}, fmt.Errorf("reclaim lease %s: %w", domain, err)
			}
			metrics.LeaseReclaimed(domain)
		}

		fresh := monitor.Lease{
			Domain:     domain,
			Owner:      id.NewOwnerToken(),
			AcquiredAt: now,
			TTL:        ttl,
		}
		err = m.store.Create(ctx, fresh)
		if err == nil {
			m.logger.Info("lease acquired",
				zap.String("domain", domain),
				zap.String("owner", fresh.Owner),
				zap.Duration("ttl", ttl),
			)
			return fresh, nil
		}
		if !errors.Is(err, monitor.ErrLeaseHeld) {
			return monitor.Lease{}, fmt.Errorf("create lease %s: %w", domain, err)
		}
		// Lost the create race; re-read and classify on the next pass.
	}
	return monitor.Lease{}, monitor.ErrLeaseDenied
}

// Release deletes the lease record for domain regardless of who holds it.
// It is idempotent and must run on every exit path of a job.
func (m *Manager) Release(ctx context.Context, domain string) error {
	if err := m.store.Delete(ctx, domain); err != nil {
		return fmt.Errorf("release lease %s: %w", domain, err)
	}
	m.logger.Debug("lease released", zap.String("domain", domain))
	return nil
}

// ForceRelease is the emergency path for when a runner process was torn
// down before its deferred Release could execute. It deletes the record
// unconditionally, with no age check.
func (m *Manager) ForceRelease(ctx context.Context, domain string) error {
	if err := m.store.Delete(ctx, domain); err != nil {
		return fmt.Errorf("force release lease %s: %w", domain, err)
	}
	m.logger.Warn("lease force-released", zap.String("domain", domain))
	return nil
}
