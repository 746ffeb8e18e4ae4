package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/cloo-solutions/docqa/internal/chunking"
	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/index"
	"github.com/cloo-solutions/docqa/internal/telemetry"
)

// IndexingConfig controls how documents are chunked and labelled.
type IndexingConfig struct {
	Chunking       chunking.Config
	EmbeddingModel string
}

// IndexingService chunks, embeds and persists document indexes.
type IndexingService struct {
	embedder Embedder
	store    index.Store
	cfg      IndexingConfig
	logger   *slog.Logger
}

type IndexingOption func(*IndexingService)

// WithIndexingLogger sets the logger used by IndexingService
func WithIndexingLogger(logger *slog.Logger) IndexingOption {
	return func(s *IndexingService) {
		s.logger = logger
	}
}

func NewIndexingService(embedder Embedder, store index.Store, cfg IndexingConfig, opts ...IndexingOption) *IndexingService {
	cfg.Chunking = cfg.Chunking.Normalize()
	s := &IndexingService{
		embedder: embedder,
		store:    store,
		cfg:      cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Build chunks text and embeds every chunk. Nothing is persisted.
func (s *IndexingService) Build(ctx context.Context, documentID, text string, pages []domain.PageSpan) (*index.Index, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.ErrEmptyDocument
	}

	segments := chunking.SplitSegments(text, s.cfg.Chunking)
	if len(segments) == 0 {
		return nil, domain.ErrEmptyDocument
	}
	chunks := chunking.ToChunks(segments, pages)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeEmbeddingServiceError, "failed to embed document chunks", err)
	}

	return index.Build(chunks, vectors, index.WithMetadata(index.Metadata{
		DocumentID:     documentID,
		EmbeddingModel: s.cfg.EmbeddingModel,
		ChunkSize:      s.cfg.Chunking.ChunkSize,
		ChunkOverlap:   s.cfg.Chunking.Overlap,
	}))
}

// IndexDocument builds the document's index and saves it at its derived location,
// replacing any previous index.
func (s *IndexingService) IndexDocument(ctx context.Context, doc *domain.Document) (*index.Index, error) {
	ctx, span := telemetry.StartSpan(ctx, "index.document", telemetry.SpanAttributes{
		OwnerID:    doc.OwnerID,
		DocumentID: doc.ID,
		Operation:  "index",
	})
	defer span.End()

	start := time.Now()
	loc, err := index.LocationFor(doc.ID)
	if err != nil {
		return nil, err
	}

	idx, err := s.Build(ctx, doc.ID, doc.Content, doc.Pages)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	span.SetData("chunks", idx.Len())

	if err := s.store.Save(ctx, loc, idx); err != nil {
		span.SetError(err)
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to persist index", err)
	}

	s.logger.Info("document indexed",
		"document_id", doc.ID,
		"chunks", idx.Len(),
		"dimensions", idx.Dimensions(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return idx, nil
}

// Fingerprint identifies the configuration new indexes are built with.
func (s *IndexingService) Fingerprint(dimensions int) string {
	return index.Metadata{
		EmbeddingModel: s.cfg.EmbeddingModel,
		ChunkSize:      s.cfg.Chunking.ChunkSize,
		ChunkOverlap:   s.cfg.Chunking.Overlap,
	}.Fingerprint(dimensions)
}
