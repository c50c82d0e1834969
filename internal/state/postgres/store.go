// Package postgres backs state documents with a versioned Postgres table.
// Writes are compare-and-set UPDATEs on the version column; a zero-version
// write is an insert guarded by the primary key.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SpaceWJK/epic7-monitor/internal/monitor"
)

// Schema expected by the store:
//
//	CREATE TABLE documents (
//	    doc_id  TEXT PRIMARY KEY,
//	    content JSONB NOT NULL,
//	    version BIGINT NOT NULL
//	);

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements monitor.StateStore over a pgx pool.
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

// Read returns the document row's content and version; an absent row reads
// as empty content at version zero.
func (s *Store) Read(ctx context.Context, docID string) ([]byte, monitor.Version, error) {
	var (
		content []byte
		version int64
	)
	err := s.pool.QueryRow(ctx,
		`SELECT content, version FROM documents WHERE doc_id = $1`,
		docID,
	).Scan(&content, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("select document %s: %w", docID, err)
	}
	return content, monitor.Version(version), nil
}

// Write persists content only if the row version still matches.
func (s *Store) Write(ctx context.Context, docID string, content []byte, version monitor.Version) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	if version == 0 {
		tag, err = s.pool.Exec(ctx,
			`INSERT INTO documents (doc_id, content, version)
			 VALUES ($1, $2, 1)
			 ON CONFLICT (doc_id) DO NOTHING`,
			docID, content,
		)
	} else {
		tag, err = s.pool.Exec(ctx,
			`UPDATE documents SET content = $2, version = version + 1
			 WHERE doc_id = $1 AND version = $3`,
			docID, content, int64(version),
		)
	}
	if err != nil {
		return fmt.Errorf("write document %s: %w", docID, err)
	}
	if tag.RowsAffected() == 0 {
		return monitor.ErrVersionConflict
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
