package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/docqa/internal/domain"
)

func TestFileStore_SaveLoadQueryEquality(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir())
	idx := sampleIndex(t)
	loc, err := LocationFor("doc-1")
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, loc, idx))

	exists, err := store.Exists(ctx, loc)
	require.NoError(t, err)
	assert.True(t, exists)

	loaded, err := store.Load(ctx, loc)
	require.NoError(t, err)

	q := []float32{0.2, 0.9, 0.1}
	want, err := idx.Query(q, 5)
	require.NoError(t, err)
	got, err := loaded.Query(q, 5)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFileStore_LoadMissing(t *testing.T) {
	store := NewFileStore(t.TempDir())
	loc, _ := LocationFor("never-saved")

	_, err := store.Load(context.Background(), loc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrIndexNotFound))

	exists, err := store.Exists(context.Background(), loc)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFileStore_LoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	loc, _ := LocationFor("doc-1")

	path := filepath.Join(dir, filepath.FromSlash(loc.Key()))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	_, err := store.Load(context.Background(), loc)
	assert.True(t, errors.Is(err, domain.ErrIndexCorrupt))
}

func TestFileStore_OverwriteAndDelete(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewFileStore(dir)
	loc, _ := LocationFor("doc-1")

	first := sampleIndex(t)
	require.NoError(t, store.Save(ctx, loc, first))

	second, err := Build([]domain.Chunk{{Position: 0, Text: "replaced"}}, [][]float32{{1, 1, 1}})
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, loc, second))

	loaded, err := store.Load(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())
	assert.Equal(t, "replaced", loaded.Chunks()[0].Text)

	entries, err := os.ReadDir(filepath.Join(dir, "indexes", "doc-1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")

	require.NoError(t, store.Delete(ctx, loc))
	require.NoError(t, store.Delete(ctx, loc))
	_, err = store.Load(ctx, loc)
	assert.True(t, errors.Is(err, domain.ErrIndexNotFound))
}

func TestFileStore_InvalidLocation(t *testing.T) {
	store := NewFileStore(t.TempDir())

	err := store.Save(context.Background(), Location{DocumentID: "../escape"}, sampleIndex(t))
	assert.Equal(t, domain.ErrCodeValidation, domain.CodeOf(err))
}
