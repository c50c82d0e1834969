// Package memory holds lease records in-process for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/SpaceWJK/epic7-monitor/internal/monitor"
)

// Store is an in-memory monitor.LeaseStore guarded by a mutex, which gives
// it the same create-if-absent atomicity the real backends provide natively.
type Store struct {
	mu     sync.Mutex
	leases map[string]monitor.Lease
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{leases: make(map[string]monitor.Lease)}
}

// Create writes the lease only if the domain has no record.
func (s *Store) Create(_ context.Context, lease monitor.Lease) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.leases[lease.Domain]; held {
		return monitor.ErrLeaseHeld
	}
	s.leases[lease.Domain] = lease
	return nil
}

// Get returns the current lease for the domain, if any.
func (s *Store) Get(_ context.Context, domain string) (monitor.Lease, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lease, held := s.leases[domain]
	return lease, held, nil
}

// Delete removes the record unconditionally; absent records are a no-op.
func (s *Store) Delete(_ context.Context, domain string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.leases, domain)
	return nil
}

// DeleteIf removes the record only while it still belongs to owner.
func (s *Store) DeleteIf(_ context.Context, domain, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lease, held := s.leases[domain]
	if !held || lease.Owner != owner {
		return monitor.ErrLeaseHeld
	}
	delete(s.leases, domain)
	return nil
}
