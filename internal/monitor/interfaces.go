package monitor

import (
	"context"
	"time"
)

// Lease records exclusive ownership of a coordination domain. At most one
// valid (non-expired) lease exists per domain; a lease older than its TTL is
// presumed abandoned and may be reclaimed by the next acquirer.
type Lease struct {
	Domain     string        `json:"domain"`
	Owner      string        `json:"owner"`
	AcquiredAt time.Time     `json:"acquired_at"`
	TTL        time.Duration `json:"ttl"`
}

// Age returns how long the lease has been held as of now.
func (l Lease) Age(now time.Time) time.Duration {
	return now.Sub(l.AcquiredAt)
}

// Expired reports whether the lease is stale as of now.
func (l Lease) Expired(now time.Time) bool {
	return l.Age(now) > l.TTL
}

// LeaseStore is the durable record of which domains are busy. Create must
// be atomic create-if-absent: backends with native conditional primitives
// (SET NX, generation preconditions, unique rows) return ErrLeaseHeld when
// a record already exists rather than overwriting it.
type LeaseStore interface {
	// Create writes the lease only if no record exists for its domain.
	Create(ctx context.Context, lease Lease) error
	// Get returns the current lease for the domain, or false if absent.
	Get(ctx context.Context, domain string) (Lease, bool, error)
	// Delete removes the lease record unconditionally. Deleting an absent
	// record is a no-op, never an error.
	Delete(ctx context.Context, domain string) error
	// DeleteIf removes the record only while it still carries owner. It
	// returns ErrLeaseHeld when the record is absent or owned by someone
	// else, so a reclaimer that lost the race cannot delete the winner's
	// fresh lease.
	DeleteIf(ctx context.Context, domain, owner string) error
}

// Version is a backend-native revision token for a state document. Zero
// means the document does not exist yet; a conditional write with version
// zero is a create-if-absent.
type Version int64

// StateStore is the shared durable document store. Write persists content
// only if the document has not changed since version was read, returning
// ErrVersionConflict on a lost race. Blind overwrites are not provided.
type StateStore interface {
	Read(ctx context.Context, docID string) ([]byte, Version, error)
	Write(ctx context.Context, docID string, content []byte, version Version) error
}

// DeltaFunc transforms document content. Implementations must be safe to
// compute from a stale read and to reapply: set unions, commutative sums,
// and append-only records all qualify.
type DeltaFunc func(content []byte) ([]byte, error)

// StateDelta binds a delta to the document it targets.
type StateDelta struct {
	DocID string
	Delta DeltaFunc
}

// Report is what a job body hands back on success: the state deltas it
// produced plus bookkeeping for the run statistics record.
type Report struct {
	Deltas     []StateDelta
	ItemsSeen  int
	NewItems   int
	AlertsSent int
}

// JobBody is the opaque unit of work (crawl, classify, notify) the runner
// wraps. The core only observes its error and its produced deltas.
type JobBody interface {
	Run(ctx context.Context, job JobDescriptor) (Report, error)
}

// JobBodyFunc adapts a function to the JobBody interface.
type JobBodyFunc func(ctx context.Context, job JobDescriptor) (Report, error)

// Run implements JobBody.
func (f JobBodyFunc) Run(ctx context.Context, job JobDescriptor) (Report, error) {
	return f(ctx, job)
}

// Notifier reports terminal outcomes to an external alert channel. Delivery
// failures are the notifier's own problem: they are logged and swallowed,
// never escalated into the run outcome.
type Notifier interface {
	Notify(ctx context.Context, outcome Outcome)
}
