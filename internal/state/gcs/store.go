// Package gcs backs state documents with Google Cloud Storage objects. The
// object generation is the document version: writes carry a generation-match
// precondition, so a racing writer's conditional PUT fails instead of
// clobbering the other delta.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/SpaceWJK/epic7-monitor/internal/monitor"
)

// Store implements monitor.StateStore on a GCS bucket.
type Store struct {
	bucket *storage.BucketHandle
	prefix string
}

// NewStore creates a Store writing document objects under prefix in bucket.
func NewStore(ctx context.Context, client *storage.Client, bucketName, prefix string) (*Store, error) {
	if prefix == "" {
		prefix = "state"
	}
	bkt := client.Bucket(bucketName)
	if _, err := bkt.Attrs(ctx); err != nil {
		return nil, fmt.Errorf("gcs bucket %q attrs: %w", bucketName, err)
	}
	return &Store{bucket: bkt, prefix: prefix}, nil
}

func (s *Store) object(docID string) *storage.ObjectHandle {
	return s.bucket.Object(s.prefix + "/" + docID + ".json")
}

// Read returns the object content and its generation. An absent object
// reads as empty content at version zero.
func (s *Store) Read(ctx context.Context, docID string) ([]byte, monitor.Version, error) {
	obj := s.object(docID)
	rdr, err := obj.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("open document %s: %w", docID, err)
	}
	defer func() { _ = rdr.Close() }()

	content, err := io.ReadAll(rdr)
	if err != nil {
		return nil, 0, fmt.Errorf("read document %s: %w", docID, err)
	}
	return content, monitor.Version(rdr.Attrs.Generation), nil
}

// Write persists content only if the object generation still matches
// version. Version zero writes with a DoesNotExist precondition, creating
// the document.
func (s *Store) Write(ctx context.Context, docID string, content []byte, version monitor.Version) error {
	cond := storage.Conditions{GenerationMatch: int64(version)}
	if version == 0 {
		cond = storage.Conditions{DoesNotExist: true}
	}

	w := s.object(docID).If(cond).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(content); err != nil {
		_ = w.Close()
		return fmt.Errorf("write document %s: %w", docID, err)
	}
	if err := w.Close(); err != nil {
		if isPreconditionFailed(err) {
			return monitor.ErrVersionConflict
		}
		return fmt.Errorf("finalize document %s: %w", docID, err)
	}
	return nil
}

func isPreconditionFailed(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed
}
