package retry

import (
	"context"

	"golang.org/x/time/rate"
)

// Embedder is the embedding client contract.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator is the text generation client contract.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// RetryingEmbedder applies a Policy and an optional limiter to every call.
type RetryingEmbedder struct {
	next    Embedder
	policy  Policy
	limiter *rate.Limiter
}

func NewEmbedder(next Embedder, policy Policy, limiter *rate.Limiter) *RetryingEmbedder {
	return &RetryingEmbedder{next: next, policy: policy, limiter: limiter}
}

func (e *RetryingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := Do(ctx, e.policy, e.limiter, func(ctx context.Context) error {
		var err error
		out, err = e.next.Embed(ctx, text)
		return err
	})
	return out, err
}

func (e *RetryingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := Do(ctx, e.policy, e.limiter, func(ctx context.Context) error {
		var err error
		out, err = e.next.EmbedBatch(ctx, texts)
		return err
	})
	return out, err
}

// RetryingGenerator applies a Policy and an optional limiter to every call.
type RetryingGenerator struct {
	next    Generator
	policy  Policy
	limiter *rate.Limiter
}

func NewGenerator(next Generator, policy Policy, limiter *rate.Limiter) *RetryingGenerator {
	return &RetryingGenerator{next: next, policy: policy, limiter: limiter}
}

func (g *RetryingGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	var out string
	err := Do(ctx, g.policy, g.limiter, func(ctx context.Context) error {
		var err error
		out, err = g.next.Generate(ctx, system, user)
		return err
	})
	return out, err
}
