package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/index"
	"github.com/cloo-solutions/docqa/internal/logging"
	"github.com/cloo-solutions/docqa/internal/pagination"
)

type documentFixture struct {
	repo     *MockDocumentRepository
	store    *index.FileStore
	embedder Embedder
	gen      *scriptedGenerator
	svc      *DocumentService
}

func newDocumentFixture(t *testing.T, embedder Embedder, ids ...string) *documentFixture {
	t.Helper()
	repo := new(MockDocumentRepository)
	store := index.NewFileStore(t.TempDir())
	gen := &scriptedGenerator{keywords: []string{"sky"}}
	indexer := newTestIndexer(embedder, store, 1000, 150)
	qa := NewQAService(store, NewRetriever(embedder), newTestSynthesizer(gen, 0), QAConfig{},
		WithQALogger(logging.Discard()))
	svc := NewDocumentService(repo, indexer, qa, store, NewMockUUIDGenerator(ids...),
		WithDocumentLogger(logging.Discard()))
	return &documentFixture{repo: repo, store: store, embedder: embedder, gen: gen, svc: svc}
}

func (f *documentFixture) indexExists(t *testing.T, id string) bool {
	t.Helper()
	ok, err := f.store.Exists(context.Background(), index.Location{DocumentID: id})
	require.NoError(t, err)
	return ok
}

func TestDocumentService_Upload(t *testing.T) {
	f := newDocumentFixture(t, wordEmbedder{dims: 32}, "doc-1")
	f.repo.On("Create", mock.Anything, mock.MatchedBy(func(d *domain.Document) bool {
		return d.ID == "doc-1" && d.OwnerID == "alice" && d.FileType == domain.FileTypeTXT
	})).Return(nil)

	doc, err := f.svc.Upload(context.Background(), UploadInput{
		OwnerID:  "alice",
		Filename: "notes.txt",
		Data:     []byte("The sky is blue.\nGrass is green."),
	})

	require.NoError(t, err)
	assert.Equal(t, "doc-1", doc.ID)
	assert.Equal(t, "notes.txt", doc.Filename)
	assert.Equal(t, "The sky is blue.\nGrass is green.", doc.Content)
	assert.True(t, f.indexExists(t, "doc-1"))
	f.repo.AssertExpectations(t)
}

func TestDocumentService_Upload_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   UploadInput
		code string
	}{
		{"missing owner", UploadInput{Filename: "a.txt", Data: []byte("x")}, domain.ErrCodeValidation},
		{"missing filename", UploadInput{OwnerID: "alice", Data: []byte("x")}, domain.ErrCodeValidation},
		{"unsupported format", UploadInput{OwnerID: "alice", Filename: "slides.pptx", Data: []byte("x")}, domain.ErrCodeUnsupportedFormat},
		{"no extension", UploadInput{OwnerID: "alice", Filename: "README", Data: []byte("x")}, domain.ErrCodeUnsupportedFormat},
		{"blank text", UploadInput{OwnerID: "alice", Filename: "a.txt", Data: []byte(" \n\n ")}, domain.ErrCodeEmptyDocument},
		{"malformed pdf", UploadInput{OwnerID: "alice", Filename: "a.pdf", Data: []byte("not a pdf")}, domain.ErrCodeExtractionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDocumentFixture(t, wordEmbedder{dims: 8})

			_, err := f.svc.Upload(context.Background(), tt.in)

			require.Error(t, err)
			assert.Equal(t, tt.code, domain.CodeOf(err))
			f.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestDocumentService_Upload_IndexingFailureRollsBack(t *testing.T) {
	embedder := new(MockEmbedder)
	embedder.On("EmbedBatch", mock.Anything, mock.Anything).
		Return(nil, domain.NewServiceError("embeddings", domain.ServiceErrorAuth, errors.New("401")))
	f := newDocumentFixture(t, embedder, "doc-1")
	f.repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.repo.On("Delete", mock.Anything, "doc-1").Return(nil)

	_, err := f.svc.Upload(context.Background(), UploadInput{OwnerID: "alice", Filename: "a.txt", Data: []byte("text")})

	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeEmbeddingServiceError, domain.CodeOf(err))
	assert.False(t, f.indexExists(t, "doc-1"))
	f.repo.AssertExpectations(t)
}

func TestDocumentService_Upload_RepositoryFailure(t *testing.T) {
	embedder := new(MockEmbedder)
	f := newDocumentFixture(t, embedder, "doc-1")
	f.repo.On("Create", mock.Anything, mock.Anything).Return(domain.ErrStorageOperationFail)

	_, err := f.svc.Upload(context.Background(), UploadInput{OwnerID: "alice", Filename: "a.txt", Data: []byte("text")})

	assert.ErrorIs(t, err, domain.ErrStorageOperationFail)
	embedder.AssertNotCalled(t, "EmbedBatch", mock.Anything, mock.Anything)
}

func TestDocumentService_Get(t *testing.T) {
	doc := &domain.Document{ID: "doc-1", OwnerID: "alice"}

	t.Run("owner", func(t *testing.T) {
		f := newDocumentFixture(t, wordEmbedder{dims: 8})
		f.repo.On("GetByID", mock.Anything, "doc-1").Return(doc, nil)

		got, err := f.svc.Get(context.Background(), "alice", "doc-1")

		require.NoError(t, err)
		assert.Same(t, doc, got)
	})

	t.Run("other owner", func(t *testing.T) {
		f := newDocumentFixture(t, wordEmbedder{dims: 8})
		f.repo.On("GetByID", mock.Anything, "doc-1").Return(doc, nil)

		_, err := f.svc.Get(context.Background(), "bob", "doc-1")

		assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
	})

	t.Run("missing", func(t *testing.T) {
		f := newDocumentFixture(t, wordEmbedder{dims: 8})
		f.repo.On("GetByID", mock.Anything, "doc-2").Return(nil, domain.ErrDocumentNotFound)

		_, err := f.svc.Get(context.Background(), "alice", "doc-2")

		assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
	})
}

func TestDocumentService_List(t *testing.T) {
	f := newDocumentFixture(t, wordEmbedder{dims: 8})
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	cursor := pagination.EncodeCursor("doc-9", ts)
	page := &pagination.PageResult[*domain.Document]{Items: []*domain.Document{{ID: "doc-8"}}}
	f.repo.On("ListByOwnerWithCursor", mock.Anything, "alice", mock.MatchedBy(func(c *pagination.Cursor) bool {
		return c != nil && c.LastID == "doc-9" && c.Timestamp.Equal(ts)
	}), pagination.MaxLimit).Return(page, nil)

	got, err := f.svc.List(context.Background(), "alice", cursor, 1000)

	require.NoError(t, err)
	assert.Same(t, page, got)
	f.repo.AssertExpectations(t)
}

func TestDocumentService_List_InvalidCursor(t *testing.T) {
	f := newDocumentFixture(t, wordEmbedder{dims: 8})

	_, err := f.svc.List(context.Background(), "alice", "%%%", 10)

	assert.Equal(t, domain.ErrCodeValidation, domain.CodeOf(err))
}

func TestDocumentService_Delete(t *testing.T) {
	f := newDocumentFixture(t, wordEmbedder{dims: 8}, "doc-1")
	f.repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	_, err := f.svc.Upload(context.Background(), UploadInput{OwnerID: "alice", Filename: "a.txt", Data: []byte("text")})
	require.NoError(t, err)
	require.True(t, f.indexExists(t, "doc-1"))

	f.repo.On("GetByID", mock.Anything, "doc-1").Return(&domain.Document{ID: "doc-1", OwnerID: "alice"}, nil)
	f.repo.On("Delete", mock.Anything, "doc-1").Return(nil)

	require.NoError(t, f.svc.Delete(context.Background(), "alice", "doc-1"))
	assert.False(t, f.indexExists(t, "doc-1"))
	f.repo.AssertExpectations(t)
}

func TestDocumentService_Delete_OtherOwner(t *testing.T) {
	f := newDocumentFixture(t, wordEmbedder{dims: 8})
	f.repo.On("GetByID", mock.Anything, "doc-1").Return(&domain.Document{ID: "doc-1", OwnerID: "alice"}, nil)

	err := f.svc.Delete(context.Background(), "bob", "doc-1")

	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
	f.repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestDocumentService_ReindexAndAsk(t *testing.T) {
	f := newDocumentFixture(t, wordEmbedder{dims: 32})
	doc := &domain.Document{
		ID:      "doc-1",
		OwnerID: "alice",
		Content: "The sky is blue.\nGrass is green.",
		Pages:   []domain.PageSpan{{Number: 1, Offset: 0, Len: 16}, {Number: 2, Offset: 17, Len: 15}},
	}
	f.repo.On("GetByID", mock.Anything, "doc-1").Return(doc, nil)

	before, err := f.svc.Ask(context.Background(), "alice", "doc-1", "What color is the sky?")
	require.NoError(t, err)
	assert.True(t, before.Unavailable)

	_, err = f.svc.Reindex(context.Background(), "alice", "doc-1")
	require.NoError(t, err)

	after, err := f.svc.Ask(context.Background(), "alice", "doc-1", "What color is the sky?")
	require.NoError(t, err)
	assert.False(t, after.Unavailable)
	assert.Equal(t, "The sky is blue.", after.Answer)
	assert.Equal(t, []int{1}, after.Sources)
}

func TestDocumentService_Ask_Errors(t *testing.T) {
	f := newDocumentFixture(t, wordEmbedder{dims: 8})
	f.repo.On("GetByID", mock.Anything, "doc-1").Return(&domain.Document{ID: "doc-1", OwnerID: "alice"}, nil)

	_, err := f.svc.Ask(context.Background(), "alice", "doc-1", "  ")
	assert.ErrorIs(t, err, domain.ErrEmptyQuestion)

	_, err = f.svc.Ask(context.Background(), "bob", "doc-1", "q")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}
