// Package postgres backs lease records with a Postgres table. The primary
// key on the domain column gives Create its create-if-absent atomicity.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SpaceWJK/epic7-monitor/internal/monitor"
)

// Schema expected by the store:
//
//	CREATE TABLE leases (
//	    domain      TEXT PRIMARY KEY,
//	    owner       TEXT NOT NULL,
//	    acquired_at TIMESTAMPTZ NOT NULL,
//	    ttl_seconds BIGINT NOT NULL
//	);

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements monitor.LeaseStore over a pgx pool.
type Store struct {
	pool pool
}

// NewStore connects a pool from dsn and verifies it with a ping.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	p, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: p}, nil
}

// NewStoreWithPool constructs a Store from an existing pool (primarily for
// testing with pgxmock).
func NewStoreWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// Create inserts the lease row; an existing row for the domain wins.
func (s *Store) Create(ctx context.Context, lease monitor.Lease) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO leases (domain, owner, acquired_at, ttl_seconds)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (domain) DO NOTHING`,
		lease.Domain, lease.Owner, lease.AcquiredAt, int64(lease.TTL/time.Second),
	)
	if err != nil {
		return fmt.Errorf("insert lease: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return monitor.ErrLeaseHeld
	}
	return nil
}

// Get returns the current lease row for the domain, if any.
func (s *Store) Get(ctx context.Context, domain string) (monitor.Lease, bool, error) {
	var (
		lease      monitor.Lease
		ttlSeconds int64
	)
	err := s.pool.QueryRow(ctx,
		`SELECT domain, owner, acquired_at, ttl_seconds FROM leases WHERE domain = $1`,
		domain,
	).Scan(&lease.Domain, &lease.Owner, &lease.AcquiredAt, &ttlSeconds)
	if errors.Is(err, pgx.ErrNoRows) {
		return monitor.Lease{}, false, nil
	}
	if err != nil {
		return monitor.Lease{}, false, fmt.Errorf("select lease: %w", err)
	}
	lease.TTL = time.Duration(ttlSeconds) * time.Second
	return lease, true, nil
}

// Delete removes the lease row unconditionally.
func (s *Store) Delete(ctx context.Context, domain string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM leases WHERE domain = $1`, domain); err != nil {
		return fmt.Errorf("delete lease: %w", err)
	}
	return nil
}

// DeleteIf removes the lease row only while it still belongs to owner. A
// row that vanished or changed hands since the caller read it is reported
// as held either way; the caller re-reads and classifies.
func (s *Store) DeleteIf(ctx context.Context, domain, owner string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM leases WHERE domain = $1 AND owner = $2`,
		domain, owner,
	)
	if err != nil {
		return fmt.Errorf("conditional delete lease: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return monitor.ErrLeaseHeld
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
