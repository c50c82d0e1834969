// Package redis backs state documents with Redis. A version counter lives
// next to each document and a Lua script performs the compare-and-set, so a
// write conditioned on a stale version loses cleanly.
package redis

import (
	"context"
	"fmt"

	r "github.com/redis/go-redis/v9"

	"github.com/SpaceWJK/epic7-monitor/internal/monitor"
)

// casWrite sets the document only if its version counter still matches the
// version the writer read. KEYS[1]=content key, KEYS[2]=version key,
// ARGV[1]=expected version, ARGV[2]=new content.
var casWrite = r.NewScript(`
local current = tonumber(redis.call('GET', KEYS[2]) or '0')
if current ~= tonumber(ARGV[1]) then
  return 0
end
redis.call('SET', KEYS[1], ARGV[2])
redis.call('INCR', KEYS[2])
return 1
`)

// Store implements monitor.StateStore on a Redis client.
type Store struct {
	rdb    *r.Client
	prefix string
}

// NewStore creates a Store. Keys are namespaced under prefix, which
// defaults to "epic7:state".
func NewStore(rdb *r.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "epic7:state"
	}
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) contentKey(docID string) string { return s.prefix + ":" + docID }
func (s *Store) versionKey(docID string) string { return s.prefix + ":" + docID + ":ver" }

// Read returns the document content and version; absent documents read as
// empty content at version zero.
func (s *Store) Read(ctx context.Context, docID string) ([]byte, monitor.Version, error) {
	pipe := s.rdb.Pipeline()
	contentCmd := pipe.Get(ctx, s.contentKey(docID))
	versionCmd := pipe.Get(ctx, s.versionKey(docID))
	if _, err := pipe.Exec(ctx); err != nil && err != r.Nil {
		return nil, 0, fmt.Errorf("read document %s: %w", docID, err)
	}

	content, err := contentCmd.Bytes()
	if err == r.Nil {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read document %s content: %w", docID, err)
	}
	version, err := versionCmd.Int64()
	if err != nil && err != r.Nil {
		return nil, 0, fmt.Errorf("read document %s version: %w", docID, err)
	}
	return content, monitor.Version(version), nil
}

// Write persists content only if the version counter has not moved.
func (s *Store) Write(ctx context.Context, docID string, content []byte, version monitor.Version) error {
	ok, err := casWrite.Run(ctx, s.rdb,
		[]string{s.contentKey(docID), s.versionKey(docID)},
		int64(version), content,
	).Int64()
	if err != nil {
		return fmt.Errorf("cas write %s: %w", docID, err)
	}
	if ok == 0 {
		return monitor.ErrVersionConflict
	}
	return nil
}
