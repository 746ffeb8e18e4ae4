package admin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goopenai "github.com/sashabaranov/go-openai"

	"github.com/cloo-solutions/docqa/internal/chunking"
	"github.com/cloo-solutions/docqa/internal/config"
	"github.com/cloo-solutions/docqa/internal/index"
	"github.com/cloo-solutions/docqa/internal/logging"
	"github.com/cloo-solutions/docqa/internal/openai"
	"github.com/cloo-solutions/docqa/internal/repository"
	"github.com/cloo-solutions/docqa/internal/retry"
	"github.com/cloo-solutions/docqa/internal/service"
	"github.com/cloo-solutions/docqa/internal/storage"
)

// pipeline is the indexing and question answering stack shared by every command.
type pipeline struct {
	store   index.Store
	indexer *service.IndexingService
	qa      *service.QAService
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
	})
}

// openStore returns the index store selected by DOCQA_INDEX_BACKEND. pool may be
// nil unless the postgres backend is selected.
func openStore(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) (index.Store, error) {
	switch cfg.IndexBackend {
	case config.IndexBackendS3:
		client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := client.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		logger.Info("index bucket ready", "bucket", cfg.S3Bucket)
		return index.NewObjectStore(client), nil
	case config.IndexBackendPostgres:
		if pool == nil {
			return nil, fmt.Errorf("postgres index backend needs a database connection")
		}
		return repository.NewIndexRepository(pool), nil
	default:
		logger.Info("index directory ready", "dir", cfg.IndexDir)
		return index.NewFileStore(cfg.IndexDir), nil
	}
}

func newPipeline(cfg *config.Config, store index.Store, logger *slog.Logger) *pipeline {
	client := openai.NewClientWithConfig(openai.Config{
		APIKey:              cfg.OpenAIAPIKey,
		BaseURL:             cfg.OpenAIBaseURL,
		EmbeddingModel:      goopenai.EmbeddingModel(cfg.EmbeddingModel),
		EmbeddingDimensions: cfg.EmbeddingDimensions,
		ChatModel:           cfg.ChatModel,
		BatchSize:           cfg.EmbeddingBatchSize,
		EmbedTimeout:        cfg.EmbedTimeout,
		GenerateTimeout:     cfg.GenerateTimeout,
	})

	policy := retry.Policy{
		MaxAttempts:     cfg.RetryMaxAttempts,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     5 * time.Second,
	}
	limiter := retry.NewLimiter(cfg.RateLimitRPS)
	embedder := retry.NewEmbedder(client, policy, limiter)
	generator := retry.NewGenerator(client, policy, limiter)

	var counter service.TokenCounter = service.EstimateCounter{}
	if tc, err := service.NewTiktokenCounter(); err == nil {
		counter = tc
	} else {
		logger.Warn("tiktoken unavailable, estimating token counts", "error", err)
	}

	indexer := service.NewIndexingService(embedder, store, service.IndexingConfig{
		Chunking: chunking.Config{
			ChunkSize: cfg.ChunkSize,
			Overlap:   cfg.ChunkOverlap,
		},
		EmbeddingModel: cfg.EmbeddingModel,
	}, service.WithIndexingLogger(logger))

	synthesizer := service.NewAnswerSynthesizer(generator, service.AnswerConfig{
		UnknownAnswer:    cfg.UnknownAnswer,
		MaxContextTokens: cfg.MaxContextTokens,
	}, service.WithAnswerLogger(logger), service.WithTokenCounter(counter))

	qa := service.NewQAService(store, service.NewRetriever(embedder), synthesizer, service.QAConfig{
		TopK:       cfg.TopK,
		AskTimeout: cfg.AskTimeout,
	}, service.WithQALogger(logger), service.WithExpectedFingerprint(indexer.Fingerprint))

	return &pipeline{store: store, indexer: indexer, qa: qa}
}
