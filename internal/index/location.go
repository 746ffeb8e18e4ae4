package index

import (
	"fmt"
	"path"
	"strings"

	"github.com/cloo-solutions/docqa/internal/domain"
)

const indexObjectName = "index.bin"

// Location is the durable address of one document's index.
type Location struct {
	DocumentID string
}

// LocationFor derives the location of a document's index from its id.
func LocationFor(documentID string) (Location, error) {
	loc := Location{DocumentID: documentID}
	if err := loc.Validate(); err != nil {
		return Location{}, err
	}
	return loc, nil
}

// Validate rejects ids that could escape the index namespace.
func (l Location) Validate() error {
	id := l.DocumentID
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, "/\\\x00") {
		return domain.NewDomainError(domain.ErrCodeValidation, fmt.Sprintf("invalid index location %q", id))
	}
	return nil
}

// Key is the slash-separated storage key, shared by the file and object stores.
func (l Location) Key() string {
	return path.Join("indexes", l.DocumentID, indexObjectName)
}

func (l Location) String() string {
	return l.Key()
}
