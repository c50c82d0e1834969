package state

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/SpaceWJK/epic7-monitor/internal/metrics"
	"github.com/SpaceWJK/epic7-monitor/internal/monitor"
)

// DefaultConflictRetries is the bounded retry budget for a lost write race.
// Only a handful of domains overlap at once, so two retries cover the
// realistic contention; past that the delta is abandoned and the next run's
// superset delta carries it.
const DefaultConflictRetries = 2

// Committer applies state deltas through the store's conditional-write path,
// re-reading and re-applying on conflict.
type Committer struct {
	store   monitor.StateStore
	retries int
	logger  *zap.Logger
}

// NewCommitter constructs a Committer. retries < 0 selects the default.
func NewCommitter(store monitor.StateStore, retries int, logger *zap.Logger) *Committer {
	if retries < 0 {
		retries = DefaultConflictRetries
	}
	return &Committer{store: store, retries: retries, logger: logger}
}

// Apply reads the document, applies delta to the fresh content, and writes
// it back conditioned on the version it read. A lost race re-reads and
// re-applies, up to the retry budget. Exhaustion returns
// monitor.ErrCommitConflict; the caller downgrades that to a warning
// outcome rather than failing the run.
func (c *Committer) Apply(ctx context.Context, docID string, delta monitor.DeltaFunc) error {
	for attempt := 0; attempt <= c.retries; attempt++ {
		content, version, err := c.store.Read(ctx, docID)
		if err != nil {
			return fmt.Errorf("read %s: %w", docID, err)
		}

		updated, err := delta(content)
		if err != nil {
			return fmt.Errorf("apply delta to %s: %w", docID, err)
		}

		err = c.store.Write(ctx, docID, updated, version)
		if err == nil {
			if attempt > 0 {
				c.logger.Info("commit succeeded after conflict",
					zap.String("doc", docID),
					zap.Int("attempt", attempt+1),
				)
			}
			return nil
		}
		if !errors.Is(err, monitor.ErrVersionConflict) {
			return fmt.Errorf("write %s: %w", docID, err)
		}

		metrics.CommitConflict(docID)
		c.logger.Warn("commit conflict, re-reading document",
			zap.String("doc", docID),
			zap.Int("attempt", attempt+1),
			zap.Int64("stale_version", int64(version)),
		)
	}

	metrics.CommitAbandoned(docID)
	c.logger.Warn("commit abandoned, retry budget exhausted",
		zap.String("doc", docID),
		zap.Int("retries", c.retries),
	)
	return fmt.Errorf("commit %s: %w", docID, monitor.ErrCommitConflict)
}
