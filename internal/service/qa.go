package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/index"
	"github.com/cloo-solutions/docqa/internal/telemetry"
)

// DefaultAskTimeout bounds one question end to end.
const DefaultAskTimeout = 90 * time.Second

// QAConfig controls retrieval depth and the per-question deadline.
type QAConfig struct {
	TopK       int
	AskTimeout time.Duration
}

// QAService answers questions against a document's persisted index.
type QAService struct {
	store       index.Store
	retriever   *Retriever
	synthesizer *AnswerSynthesizer
	cfg         QAConfig
	logger      *slog.Logger
	fingerprint func(dimensions int) string
}

type QAOption func(*QAService)

// WithQALogger sets the logger used by QAService
func WithQALogger(logger *slog.Logger) QAOption {
	return func(s *QAService) {
		s.logger = logger
	}
}

// WithExpectedFingerprint makes Ask refuse indexes built with another configuration.
func WithExpectedFingerprint(fn func(dimensions int) string) QAOption {
	return func(s *QAService) {
		s.fingerprint = fn
	}
}

func NewQAService(store index.Store, retriever *Retriever, synthesizer *AnswerSynthesizer, cfg QAConfig, opts ...QAOption) *QAService {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.AskTimeout <= 0 {
		cfg.AskTimeout = DefaultAskTimeout
	}
	s := &QAService{
		store:       store,
		retriever:   retriever,
		synthesizer: synthesizer,
		cfg:         cfg,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Ask loads the document's index and answers the question. It always returns a
// displayable result; failures are reported as Unavailable with a diagnostic.
func (s *QAService) Ask(ctx context.Context, documentID, question string) domain.AnswerResult {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.AskTimeout)
	defer cancel()

	ctx, span := telemetry.StartSpan(ctx, "qa.ask", telemetry.SpanAttributes{
		DocumentID: documentID,
		Operation:  "ask",
	})
	defer span.End()

	if strings.TrimSpace(question) == "" {
		return Unavailable(question, domain.ErrEmptyQuestion)
	}

	loc, err := index.LocationFor(documentID)
	if err != nil {
		return Unavailable(question, err)
	}

	idx, err := s.store.Load(ctx, loc)
	if err != nil {
		s.logger.Warn("index load failed", "document_id", documentID, "error", err)
		span.SetError(err)
		telemetry.AddBreadcrumb(ctx, "qa", "index unavailable for "+documentID)
		return Unavailable(question, err)
	}

	return s.askIndex(ctx, idx, question)
}

// AskIndex answers against an index already in memory.
func (s *QAService) AskIndex(ctx context.Context, idx *index.Index, question string) domain.AnswerResult {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.AskTimeout)
	defer cancel()

	if strings.TrimSpace(question) == "" {
		return Unavailable(question, domain.ErrEmptyQuestion)
	}
	return s.askIndex(ctx, idx, question)
}

func (s *QAService) askIndex(ctx context.Context, idx *index.Index, question string) domain.AnswerResult {
	start := time.Now()
	if s.fingerprint != nil {
		if want := s.fingerprint(idx.Dimensions()); want != idx.Fingerprint() {
			s.logger.Warn("index was built with a different configuration",
				"document_id", idx.Metadata().DocumentID,
				"index_fingerprint", idx.Fingerprint(),
				"current_fingerprint", want,
			)
			return Unavailable(question, domain.ErrIndexOutdated)
		}
	}

	matches, err := s.retriever.Retrieve(ctx, idx, question, s.cfg.TopK)
	if err != nil {
		s.logger.Warn("retrieval failed", "document_id", idx.Metadata().DocumentID, "error", err)
		return Unavailable(question, err)
	}

	result := s.synthesizer.Answer(ctx, question, matches)
	if result.Unavailable && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		result.Diagnostic = "timed out: " + result.Diagnostic
	}

	s.logger.Info("question answered",
		"document_id", idx.Metadata().DocumentID,
		"matches", len(matches),
		"unknown", result.Unknown,
		"unavailable", result.Unavailable,
		"sources", result.Sources,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result
}
