package index

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/docqa/internal/domain"
)

// Store persists indexes by location. Save replaces any previous index atomically;
// Load fails with IndexNotFound or IndexCorrupt; Delete of a missing index is a no-op.
type Store interface {
	Save(ctx context.Context, loc Location, idx *Index) error
	Load(ctx context.Context, loc Location) (*Index, error)
	Exists(ctx context.Context, loc Location) (bool, error)
	Delete(ctx context.Context, loc Location) error
}

// NotFound builds the IndexNotFound error for loc.
func NotFound(loc Location, cause error) error {
	return domain.NewDomainErrorWithCause(domain.ErrCodeIndexNotFound,
		fmt.Sprintf("no index for document %s", loc.DocumentID), cause)
}
