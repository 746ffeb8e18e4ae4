package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore keeps encoded indexes under a local directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) path(loc Location) string {
	return filepath.Join(s.dir, filepath.FromSlash(loc.Key()))
}

// Save writes to a temp file in the target directory and renames it into place,
// so readers see either the old index or the new one.
func (s *FileStore) Save(ctx context.Context, loc Location, idx *Index) error {
	if err := loc.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := Encode(idx)
	if err != nil {
		return err
	}

	target := s.path(loc)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".index-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp index file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("failed to write index: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close index: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to move index into place: %w", err)
	}

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

func (s *FileStore) Load(ctx context.Context, loc Location) (*Index, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(loc))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, NotFound(loc, err)
		}
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	return Decode(data)
}

func (s *FileStore) Exists(ctx context.Context, loc Location) (bool, error) {
	if err := loc.Validate(); err != nil {
		return false, err
	}
	_, err := os.Stat(s.path(loc))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat index: %w", err)
}

func (s *FileStore) Delete(ctx context.Context, loc Location) error {
	if err := loc.Validate(); err != nil {
		return err
	}
	err := os.RemoveAll(filepath.Dir(s.path(loc)))
	if err != nil {
		return fmt.Errorf("failed to delete index: %w", err)
	}
	return nil
}
