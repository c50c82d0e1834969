// Package redis backs lease records with Redis. SET NX plus a PX expiry
// gives the store atomic create-if-absent and a server-side backstop for
// the TTL staleness check, closing the read-then-write reclaim race.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	r "github.com/redis/go-redis/v9"

	"github.com/SpaceWJK/epic7-monitor/internal/monitor"
)

// compareDelete removes the lease only while its payload still names the
// owner the caller observed. KEYS[1]=lease key, ARGV[1]=expected owner.
var compareDelete = r.NewScript(`
local payload = redis.call('GET', KEYS[1])
if not payload then
  return 0
end
if cjson.decode(payload)['owner'] ~= ARGV[1] then
  return 0
end
redis.call('DEL', KEYS[1])
return 1
`)

// Store implements monitor.LeaseStore on a Redis client.
type Store struct {
	rdb    *r.Client
	prefix string
}

// NewStore creates a Store. Keys are namespaced under prefix, which
// defaults to "epic7:lease".
func NewStore(rdb *r.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "epic7:lease"
	}
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) key(domain string) string {
	return s.prefix + ":" + domain
}

// Create writes the lease only if the key is absent. The Redis expiry is
// padded past the lease TTL so the manager's reclaim logging still observes
// the stale record in the common case; the expiry only catches the
// pathological holder that never comes back.
func (s *Store) Create(ctx context.Context, lease monitor.Lease) error {
	payload, err := json.Marshal(lease)
	if err != nil {
		return fmt.Errorf("marshal lease: %w", err)
	}
	expiry := lease.TTL * 4
	ok, err := s.rdb.SetNX(ctx, s.key(lease.Domain), payload, expiry).Result()
	if err != nil {
		return fmt.Errorf("setnx lease: %w", err)
	}
	if !ok {
		return monitor.ErrLeaseHeld
	}
	return nil
}

// Get returns the current lease for the domain, if any.
func (s *Store) Get(ctx context.Context, domain string) (monitor.Lease, bool, error) {
	payload, err := s.rdb.Get(ctx, s.key(domain)).Bytes()
	if errors.Is(err, r.Nil) {
		return monitor.Lease{}, false, nil
	}
	if err != nil {
		return monitor.Lease{}, false, fmt.Errorf("get lease: %w", err)
	}
	var lease monitor.Lease
	if err := json.Unmarshal(payload, &lease); err != nil {
		return monitor.Lease{}, false, fmt.Errorf("unmarshal lease: %w", err)
	}
	return lease, true, nil
}

// Delete removes the record unconditionally.
func (s *Store) Delete(ctx context.Context, domain string) error {
	if err := s.rdb.Del(ctx, s.key(domain)).Err(); err != nil {
		return fmt.Errorf("del lease: %w", err)
	}
	return nil
}

// DeleteIf removes the record only while it still belongs to owner.
func (s *Store) DeleteIf(ctx context.Context, domain, owner string) error {
	ok, err := compareDelete.Run(ctx, s.rdb, []string{s.key(domain)}, owner).Int64()
	if err != nil {
		return fmt.Errorf("compare-delete lease: %w", err)
	}
	if ok == 0 {
		return monitor.ErrLeaseHeld
	}
	return nil
}

// Ping verifies connectivity so the application can fail fast on startup.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.rdb.Ping(ctx).Err()
}
