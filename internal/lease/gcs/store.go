// Package gcs backs lease records with Google Cloud Storage objects. A
// DoesNotExist generation precondition makes object creation atomic, so two
// racing acquirers cannot both write a lease for the same domain.
package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/SpaceWJK/epic7-monitor/internal/monitor"
)

// Store implements monitor.LeaseStore on a GCS bucket.
type Store struct {
	bucket *storage.BucketHandle
	prefix string
}

// NewStore creates a Store writing lease objects under prefix in bucket.
// Authentication runs through Application Default Credentials.
func NewStore(ctx context.Context, client *storage.Client, bucketName, prefix string) (*Store, error) {
	if prefix == "" {
		prefix = "leases"
	}
	bkt := client.Bucket(bucketName)
	// Fail fast on startup if the bucket is missing or unreadable.
	if _, err := bkt.Attrs(ctx); err != nil {
		return nil, fmt.Errorf("gcs bucket %q attrs: %w", bucketName, err)
	}
	return &Store{bucket: bkt, prefix: prefix}, nil
}

func (s *Store) object(domain string) *storage.ObjectHandle {
	return s.bucket.Object(s.prefix + "/" + domain + ".json")
}

// Create writes the lease object only if it does not already exist.
func (s *Store) Create(ctx context.Context, lease monitor.Lease) error {
	payload, err := json.Marshal(lease)
	if err != nil {
		return fmt.Errorf("marshal lease: %w", err)
	}

	w := s.object(lease.Domain).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(payload); err != nil {
		_ = w.Close()
		return fmt.Errorf("write lease object: %w", err)
	}
	if err := w.Close(); err != nil {
		if isPreconditionFailed(err) {
			return monitor.ErrLeaseHeld
		}
		return fmt.Errorf("finalize lease object: %w", err)
	}
	return nil
}

// Get returns the current lease for the domain, if any.
func (s *Store) Get(ctx context.Context, domain string) (monitor.Lease, bool, error) {
	rdr, err := s.object(domain).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return monitor.Lease{}, false, nil
	}
	if err != nil {
		return monitor.Lease{}, false, fmt.Errorf("open lease object: %w", err)
	}
	defer func() { _ = rdr.Close() }()

	payload, err := io.ReadAll(rdr)
	if err != nil {
		return monitor.Lease{}, false, fmt.Errorf("read lease object: %w", err)
	}
	var lease monitor.Lease
	if err := json.Unmarshal(payload, &lease); err != nil {
		return monitor.Lease{}, false, fmt.Errorf("unmarshal lease: %w", err)
	}
	return lease, true, nil
}

// Delete removes the lease object; a missing object is a no-op.
func (s *Store) Delete(ctx context.Context, domain string) error {
	err := s.object(domain).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete lease object: %w", err)
	}
	return nil
}

// DeleteIf removes the lease object only while it still belongs to owner.
// The delete is conditioned on the generation the owner check read, so a
// replacement object written in between survives.
func (s *Store) DeleteIf(ctx context.Context, domain, owner string) error {
	rdr, err := s.object(domain).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return monitor.ErrLeaseHeld
	}
	if err != nil {
		return fmt.Errorf("open lease object: %w", err)
	}
	generation := rdr.Attrs.Generation
	payload, err := io.ReadAll(rdr)
	_ = rdr.Close()
	if err != nil {
		return fmt.Errorf("read lease object: %w", err)
	}
	var lease monitor.Lease
	if err := json.Unmarshal(payload, &lease); err != nil {
		return fmt.Errorf("unmarshal lease: %w", err)
	}
	if lease.Owner != owner {
		return monitor.ErrLeaseHeld
	}

	err = s.object(domain).If(storage.Conditions{GenerationMatch: generation}).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) || isPreconditionFailed(err) {
		return monitor.ErrLeaseHeld
	}
	if err != nil {
		return fmt.Errorf("delete lease object: %w", err)
	}
	return nil
}

func isPreconditionFailed(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed
}
