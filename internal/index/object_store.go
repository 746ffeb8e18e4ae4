package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloo-solutions/docqa/internal/storage"
)

const contentType = "application/octet-stream"

// ObjectClient is the subset of storage.S3Client the object store needs.
type ObjectClient interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
	GetObject(ctx context.Context, key string) ([]byte, error)
	HeadObject(ctx context.Context, key string) (*storage.ObjectMetadata, error)
	DeleteObject(ctx context.Context, key string) error
}

// ObjectStore keeps encoded indexes in an S3-compatible bucket. A single PutObject
// is all-or-nothing, so readers never observe a partial index.
type ObjectStore struct {
	client ObjectClient
}

func NewObjectStore(client ObjectClient) *ObjectStore {
	return &ObjectStore{client: client}
}

func (s *ObjectStore) Save(ctx context.Context, loc Location, idx *Index) error {
	if err := loc.Validate(); err != nil {
		return err
	}
	data, err := Encode(idx)
	if err != nil {
		return err
	}
	if err := s.client.PutObject(ctx, loc.Key(), data, contentType); err != nil {
		return fmt.Errorf("failed to save index: %w", err)
	}
	return nil
}

func (s *ObjectStore) Load(ctx context.Context, loc Location) (*Index, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	data, err := s.client.GetObject(ctx, loc.Key())
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, NotFound(loc, err)
		}
		return nil, fmt.Errorf("failed to load index: %w", err)
	}
	return Decode(data)
}

func (s *ObjectStore) Exists(ctx context.Context, loc Location) (bool, error) {
	if err := loc.Validate(); err != nil {
		return false, err
	}
	_, err := s.client.HeadObject(ctx, loc.Key())
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrObjectNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check index: %w", err)
}

func (s *ObjectStore) Delete(ctx context.Context, loc Location) error {
	if err := loc.Validate(); err != nil {
		return err
	}
	if err := s.client.DeleteObject(ctx, loc.Key()); err != nil {
		return fmt.Errorf("failed to delete index: %w", err)
	}
	return nil
}
