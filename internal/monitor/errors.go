package monitor

import "errors"

// Sentinel errors classified by the coordination core. Lease denial and
// commit-conflict exhaustion are recovered locally and never propagate to
// the process outcome as failures.
var (
	// ErrLeaseDenied means the domain lease is held by a live run; the
	// caller must skip this trigger entirely, not wait and retry.
	ErrLeaseDenied = errors.New("lease denied: domain busy")

	// ErrLeaseHeld is returned by lease stores when an atomic
	// create-if-absent finds an existing record.
	ErrLeaseHeld = errors.New("lease record already exists")

	// ErrCommitConflict means the bounded retry budget for an optimistic
	// state commit was exhausted; the delta is abandoned for this run.
	ErrCommitConflict = errors.New("state commit conflict: retries exhausted")

	// ErrVersionConflict is returned by state stores when a conditional
	// write loses a race with another writer.
	ErrVersionConflict = errors.New("document version conflict")
)
