// Package memory holds state documents in-process for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/SpaceWJK/epic7-monitor/internal/monitor"
)

type document struct {
	content []byte
	version monitor.Version
}

// Store is an in-memory monitor.StateStore with a revision counter per
// document, matching the conditional-write contract of the real backends.
type Store struct {
	mu   sync.Mutex
	docs map[string]document
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{docs: make(map[string]document)}
}

// Read returns the document content and its current version. An absent
// document reads as empty content at version zero.
func (s *Store) Read(_ context.Context, docID string) ([]byte, monitor.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[docID]
	if !ok {
		return nil, 0, nil
	}
	return append([]byte(nil), doc.content...), doc.version, nil
}

// Write persists content only if the document is still at version.
func (s *Store) Write(_ context.Context, docID string, content []byte, version monitor.Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.docs[docID].version
	if current != version {
		return monitor.ErrVersionConflict
	}
	s.docs[docID] = document{
		content: append([]byte(nil), content...),
		version: version + 1,
	}
	return nil
}
