package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cloo-solutions/docqa/internal/domain"
)

const (
	// DefaultEmbeddingModel is the OpenAI model used for generating embeddings
	DefaultEmbeddingModel = openai.SmallEmbedding3
	// DefaultEmbeddingDimensions is the dimension of text-embedding-3-small vectors
	DefaultEmbeddingDimensions = 1536
	// DefaultChatModel answers questions over retrieved context
	DefaultChatModel = openai.GPT4oMini
	// DefaultBatchSize bounds the number of inputs per embeddings request
	DefaultBatchSize = 64

	DefaultEmbedTimeout    = 30 * time.Second
	DefaultGenerateTimeout = 60 * time.Second

	serviceEmbedding  = "embedding"
	serviceGeneration = "generation"
)

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when an embedding has an unexpected length
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
	// ErrEmptyCompletion is returned when the chat response has no content
	ErrEmptyCompletion = errors.New("completion has no choices")
	// ErrOutOfSequence is returned when embedding results do not cover the inputs in order
	ErrOutOfSequence = errors.New("embedding response out of sequence")
)

// EmbeddingAPI creates one embedding per input, in input order.
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// ChatAPI runs a single system+user chat completion.
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, system, user string) (string, error)
}

// Client wraps the OpenAI API with timeouts, batching and error classification.
// It never retries; see the retry package for that.
type Client struct {
	embeddings      EmbeddingAPI
	chat            ChatAPI
	embeddingModel  string
	dimensions      int
	batchSize       int
	embedTimeout    time.Duration
	generateTimeout time.Duration
}

type Config struct {
	APIKey              string
	BaseURL             string
	EmbeddingModel      openai.EmbeddingModel
	EmbeddingDimensions int
	ChatModel           string
	Temperature         float32
	BatchSize           int
	EmbedTimeout        time.Duration
	GenerateTimeout     time.Duration
}

// NewClient creates a new OpenAI client using defaults.
func NewClient(apiKey string) *Client {
	return NewClientWithConfig(Config{APIKey: apiKey})
}

// NewClientWithConfig creates a new OpenAI client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.EmbeddingDimensions <= 0 {
		cfg.EmbeddingDimensions = DefaultEmbeddingDimensions
	}
	adapter := NewOpenAIAdapter(cfg)
	return newClient(adapter, adapter, cfg)
}

func newClient(embeddings EmbeddingAPI, chat ChatAPI, cfg Config) *Client {
	c := &Client{
		embeddings:      embeddings,
		chat:            chat,
		embeddingModel:  string(cfg.EmbeddingModel),
		dimensions:      cfg.EmbeddingDimensions,
		batchSize:       cfg.BatchSize,
		embedTimeout:    cfg.EmbedTimeout,
		generateTimeout: cfg.GenerateTimeout,
	}
	if c.embeddingModel == "" {
		c.embeddingModel = string(DefaultEmbeddingModel)
	}
	if c.dimensions <= 0 {
		c.dimensions = DefaultEmbeddingDimensions
	}
	if c.batchSize <= 0 {
		c.batchSize = DefaultBatchSize
	}
	if c.embedTimeout <= 0 {
		c.embedTimeout = DefaultEmbedTimeout
	}
	if c.generateTimeout <= 0 {
		c.generateTimeout = DefaultGenerateTimeout
	}
	return c
}

// Dimensions returns the length of every vector this client produces.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Model returns the embedding model name, recorded in index metadata.
func (c *Client) Model() string {
	return c.embeddingModel
}

// Embed generates an embedding for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in order, one vector per text. Identical texts in the
// same call share one upstream input.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	unique := make([]string, 0, len(texts))
	slot := make([]int, len(texts))
	seen := make(map[string]int, len(texts))
	for i, text := range texts {
		if text == "" {
			return nil, domain.NewServiceError(serviceEmbedding, domain.ServiceErrorInvalidInput, ErrEmptyText)
		}
		idx, ok := seen[text]
		if !ok {
			idx = len(unique)
			seen[text] = idx
			unique = append(unique, text)
		}
		slot[i] = idx
	}

	vectors := make([][]float32, 0, len(unique))
	for start := 0; start < len(unique); start += c.batchSize {
		end := min(start+c.batchSize, len(unique))
		batch, err := c.embedOnce(ctx, unique[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}

	out := make([][]float32, len(texts))
	for i, idx := range slot {
		out[i] = vectors[idx]
	}
	return out, nil
}

func (c *Client) embedOnce(ctx context.Context, batch []string) ([][]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.embedTimeout)
	defer cancel()

	vectors, err := c.embeddings.CreateEmbeddings(callCtx, batch)
	if err != nil {
		return nil, classify(serviceEmbedding, err)
	}
	if len(vectors) != len(batch) {
		return nil, domain.NewServiceError(serviceEmbedding, domain.ServiceErrorMalformedResponse,
			fmt.Errorf("expected %d embeddings, got %d", len(batch), len(vectors)))
	}
	for _, v := range vectors {
		if len(v) != c.dimensions {
			return nil, domain.NewServiceError(serviceEmbedding, domain.ServiceErrorMalformedResponse,
				fmt.Errorf("%w: expected %d, got %d", ErrWrongDimensions, c.dimensions, len(v)))
		}
	}
	return vectors, nil
}

// Generate runs one completion and returns the answer text.
func (c *Client) Generate(ctx context.Context, system, user string) (string, error) {
	if user == "" {
		return "", domain.NewServiceError(serviceGeneration, domain.ServiceErrorInvalidInput, ErrEmptyText)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.generateTimeout)
	defer cancel()

	answer, err := c.chat.CreateChatCompletion(callCtx, system, user)
	if err != nil {
		return "", classify(serviceGeneration, err)
	}
	return answer, nil
}
