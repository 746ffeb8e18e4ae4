package service

import (
	"context"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/index"
)

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 5

// Retriever finds the chunks of an index most similar to a question.
type Retriever struct {
	embedder Embedder
}

func NewRetriever(embedder Embedder) *Retriever {
	return &Retriever{embedder: embedder}
}

// Retrieve embeds the question and returns the top k matches, best first.
func (r *Retriever) Retrieve(ctx context.Context, idx *index.Index, question string, k int) ([]index.Match, error) {
	if k < 1 {
		return nil, domain.ErrInvalidTopK
	}
	if question == "" {
		return nil, domain.ErrEmptyQuestion
	}

	vector, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeEmbeddingServiceError, "failed to embed question", err)
	}

	return idx.Query(vector, k)
}
