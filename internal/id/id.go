// Package id generates identifiers for runs and lease owners.
package id

import "github.com/google/uuid"

// NewRunID returns a UUIDv7 string. Run IDs are time-ordered so the run
// statistics log sorts chronologically by ID. Falls back to v4 if the
// entropy source misbehaves.
func NewRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// NewOwnerToken returns a UUIDv4 string identifying one lease acquisition.
// Owner tokens only need uniqueness, not ordering.
func NewOwnerToken() string {
	return uuid.NewString()
}
