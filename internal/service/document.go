package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/extract"
	"github.com/cloo-solutions/docqa/internal/index"
	"github.com/cloo-solutions/docqa/internal/pagination"
	"github.com/cloo-solutions/docqa/internal/telemetry"
)

// UploadInput is a raw file submitted by an owner.
type UploadInput struct {
	OwnerID  string
	Filename string
	Data     []byte
}

// DocumentService ties upload intake, indexing and question answering to owned documents.
type DocumentService struct {
	repo    DocumentRepositoryInterface
	indexer *IndexingService
	qa      *QAService
	store   index.Store
	uuidGen UUIDGenerator
	logger  *slog.Logger
}

type DocumentOption func(*DocumentService)

// WithDocumentLogger sets the logger used by DocumentService
func WithDocumentLogger(logger *slog.Logger) DocumentOption {
	return func(s *DocumentService) {
		s.logger = logger
	}
}

func NewDocumentService(
	repo DocumentRepositoryInterface,
	indexer *IndexingService,
	qa *QAService,
	store index.Store,
	uuidGen UUIDGenerator,
	opts ...DocumentOption,
) *DocumentService {
	if uuidGen == nil {
		uuidGen = &DefaultUUIDGenerator{}
	}
	s := &DocumentService{
		repo:    repo,
		indexer: indexer,
		qa:      qa,
		store:   store,
		uuidGen: uuidGen,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Upload extracts, records and indexes a file. If indexing fails the record is
// removed again, so a document either exists with an index or not at all.
func (s *DocumentService) Upload(ctx context.Context, in UploadInput) (*domain.Document, error) {
	if in.OwnerID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "owner ID is required")
	}
	if strings.TrimSpace(in.Filename) == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "filename is required")
	}

	ctx, span := telemetry.StartSpan(ctx, "document.upload", telemetry.SpanAttributes{
		OwnerID:   in.OwnerID,
		Operation: "upload",
	})
	defer span.End()

	fileType, err := domain.ParseFileType(in.Filename)
	if err != nil {
		return nil, err
	}

	res, err := extract.Extract(in.Data, fileType)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	if strings.TrimSpace(res.Text) == "" {
		return nil, domain.ErrEmptyDocument
	}

	doc := domain.NewDocument(
		s.uuidGen.NewString(),
		in.OwnerID,
		in.Filename,
		fileType,
		res.Text,
		res.Pages,
		time.Now().UTC(),
	)
	if err := domain.ValidateDocument(doc); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, doc); err != nil {
		return nil, err
	}

	if _, err := s.indexer.IndexDocument(ctx, doc); err != nil {
		s.rollback(ctx, doc.ID)
		return nil, err
	}

	s.logger.Info("document uploaded",
		"document_id", doc.ID,
		"owner_id", doc.OwnerID,
		"file_type", doc.FileType,
		"pages", len(doc.Pages),
		"bytes", len(in.Data),
	)
	return doc, nil
}

func (s *DocumentService) rollback(ctx context.Context, documentID string) {
	ctx = context.WithoutCancel(ctx)
	if loc, err := index.LocationFor(documentID); err == nil {
		if err := s.store.Delete(ctx, loc); err != nil {
			s.logger.Error("failed to remove partial index", "document_id", documentID, "error", err)
		}
	}
	if err := s.repo.Delete(ctx, documentID); err != nil && !errors.Is(err, domain.ErrDocumentNotFound) {
		s.logger.Error("failed to remove document after indexing failure", "document_id", documentID, "error", err)
	}
}

// Get returns a document owned by ownerID. Other owners' documents are not found.
func (s *DocumentService) Get(ctx context.Context, ownerID, id string) (*domain.Document, error) {
	if id == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "document ID is required")
	}
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != ownerID {
		return nil, domain.ErrDocumentNotFound
	}
	return doc, nil
}

// List returns the owner's documents, newest first.
func (s *DocumentService) List(ctx context.Context, ownerID, cursor string, limit int) (*pagination.PageResult[*domain.Document], error) {
	if ownerID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "owner ID is required")
	}
	c, err := pagination.DecodeCursor(cursor)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid cursor", err)
	}
	return s.repo.ListByOwnerWithCursor(ctx, ownerID, c, pagination.ClampLimit(limit))
}

// Delete removes the document's index and then its record.
func (s *DocumentService) Delete(ctx context.Context, ownerID, id string) error {
	doc, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}

	loc, err := index.LocationFor(doc.ID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, loc); err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to delete index", err)
	}
	if err := s.repo.Delete(ctx, doc.ID); err != nil {
		return err
	}

	s.logger.Info("document deleted", "document_id", doc.ID, "owner_id", ownerID)
	return nil
}

// Reindex rebuilds the index from the stored text with the current configuration.
func (s *DocumentService) Reindex(ctx context.Context, ownerID, id string) (*domain.Document, error) {
	doc, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.indexer.IndexDocument(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Ask answers a question about an owned document. Only lookup and validation
// failures are errors; everything after that is reported inside the result.
func (s *DocumentService) Ask(ctx context.Context, ownerID, id, question string) (domain.AnswerResult, error) {
	if strings.TrimSpace(question) == "" {
		return domain.AnswerResult{}, domain.ErrEmptyQuestion
	}
	doc, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	return s.qa.Ask(ctx, doc.ID, question), nil
}
