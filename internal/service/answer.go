package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/index"
)

// DefaultMaxContextTokens bounds the retrieved context placed in the prompt.
const DefaultMaxContextTokens = 3000

const unavailableMessage = "The answer is unavailable right now. Please try again later."

// AnswerConfig controls prompt size and the unknown-answer sentinel.
type AnswerConfig struct {
	UnknownAnswer    string
	MaxContextTokens int
}

// AnswerSynthesizer builds a grounded prompt from retrieved chunks and asks the
// generator for an answer with page provenance.
type AnswerSynthesizer struct {
	generator Generator
	counter   TokenCounter
	cfg       AnswerConfig
	logger    *slog.Logger
}

type AnswerOption func(*AnswerSynthesizer)

// WithAnswerLogger sets the logger used by AnswerSynthesizer
func WithAnswerLogger(logger *slog.Logger) AnswerOption {
	return func(s *AnswerSynthesizer) {
		s.logger = logger
	}
}

// WithTokenCounter replaces the default character-based estimate.
func WithTokenCounter(counter TokenCounter) AnswerOption {
	return func(s *AnswerSynthesizer) {
		s.counter = counter
	}
}

func NewAnswerSynthesizer(generator Generator, cfg AnswerConfig, opts ...AnswerOption) *AnswerSynthesizer {
	if cfg.UnknownAnswer == "" {
		cfg.UnknownAnswer = domain.DefaultUnknownAnswer
	}
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = DefaultMaxContextTokens
	}
	s := &AnswerSynthesizer{
		generator: generator,
		counter:   EstimateCounter{},
		cfg:       cfg,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.counter == nil {
		s.counter = EstimateCounter{}
	}
	return s
}

// UnknownAnswer returns the configured sentinel.
func (s *AnswerSynthesizer) UnknownAnswer() string {
	return s.cfg.UnknownAnswer
}

// Answer never returns an error: generation failures become Unavailable results.
func (s *AnswerSynthesizer) Answer(ctx context.Context, question string, matches []index.Match) domain.AnswerResult {
	if len(matches) == 0 {
		return s.Unknown(question)
	}

	used := s.selectContext(matches)
	system, user := s.buildPrompt(question, used)

	answer, err := s.generator.Generate(ctx, system, user)
	if err != nil {
		s.logger.Warn("answer generation failed", "error", err)
		return Unavailable(question, err)
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return Unavailable(question, domain.NewServiceError("generation", domain.ServiceErrorMalformedResponse,
			fmt.Errorf("empty answer")))
	}
	if domain.IsUnknownAnswer(answer, s.cfg.UnknownAnswer) {
		return s.Unknown(question)
	}

	return domain.AnswerResult{
		Question: question,
		Answer:   answer,
		Sources:  sourcePages(used),
	}
}

// Unknown is the result for a question the document cannot answer.
func (s *AnswerSynthesizer) Unknown(question string) domain.AnswerResult {
	return domain.AnswerResult{
		Question: question,
		Answer:   s.cfg.UnknownAnswer,
		Sources:  []int{},
		Unknown:  true,
	}
}

// Unavailable is the displayable result for a failed answer attempt.
func Unavailable(question string, err error) domain.AnswerResult {
	diagnostic := domain.ErrAnswerUnavailable.Message
	if err != nil {
		diagnostic = err.Error()
	}
	return domain.AnswerResult{
		Question:    question,
		Answer:      unavailableMessage,
		Sources:     []int{},
		Unavailable: true,
		Diagnostic:  diagnostic,
	}
}

// selectContext keeps matches in rank order until the token budget is spent.
// The best match is always kept, trimmed to the budget if necessary.
func (s *AnswerSynthesizer) selectContext(matches []index.Match) []domain.Chunk {
	budget := s.cfg.MaxContextTokens
	used := make([]domain.Chunk, 0, len(matches))
	spent := 0
	for i, m := range matches {
		tokens := s.counter.CountTokens(m.Chunk.Text)
		if i == 0 && tokens > budget {
			c := m.Chunk
			c.Text = s.counter.TrimToTokenLimit(c.Text, budget)
			return append(used, c)
		}
		if spent+tokens > budget {
			break
		}
		spent += tokens
		used = append(used, m.Chunk)
	}
	return used
}

func (s *AnswerSynthesizer) buildPrompt(question string, chunks []domain.Chunk) (string, string) {
	system := fmt.Sprintf(
		"You answer questions about a single document. Use only the context provided by the user. "+
			"If the context does not contain the answer, or the question is not related to the document, "+
			"reply with exactly %q and nothing else.", s.cfg.UnknownAnswer)

	var sb strings.Builder
	sb.WriteString("Context:\n")
	for i, c := range chunks {
		if i > 0 {
			sb.WriteString("\n---\n")
		}
		sb.WriteString(strings.TrimSpace(c.Text))
	}
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(strings.TrimSpace(question))
	return system, sb.String()
}

// sourcePages returns the distinct page markers of chunks in ascending order,
// or the default page when none carries one.
func sourcePages(chunks []domain.Chunk) []int {
	seen := make(map[int]struct{}, len(chunks))
	pages := make([]int, 0, len(chunks))
	for _, c := range chunks {
		if c.Page <= 0 {
			continue
		}
		if _, ok := seen[c.Page]; ok {
			continue
		}
		seen[c.Page] = struct{}{}
		pages = append(pages, c.Page)
	}
	if len(pages) == 0 {
		return []int{domain.DefaultSourcePage}
	}
	sort.Ints(pages)
	return pages
}
