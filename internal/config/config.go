package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Index backends
const (
	IndexBackendFile     = "file"
	IndexBackendS3       = "s3"
	IndexBackendPostgres = "postgres"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Debug       bool   `envconfig:"DEBUG" default:"false"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	DatabaseURL      string `envconfig:"DATABASE_URL"`
	DatabaseMaxConns int32  `envconfig:"DATABASE_MAX_CONNS" default:"10"`

	IndexBackend string `envconfig:"INDEX_BACKEND" default:"file"`
	IndexDir     string `envconfig:"INDEX_DIR" default:"./data"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"docqa-indexes"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	OpenAIAPIKey        string        `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL       string        `envconfig:"OPENAI_BASE_URL"`
	EmbeddingModel      string        `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions int           `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`
	EmbeddingBatchSize  int           `envconfig:"EMBEDDING_BATCH_SIZE" default:"64"`
	ChatModel           string        `envconfig:"CHAT_MODEL" default:"gpt-4o-mini"`
	EmbedTimeout        time.Duration `envconfig:"EMBED_TIMEOUT" default:"30s"`
	GenerateTimeout     time.Duration `envconfig:"GENERATE_TIMEOUT" default:"60s"`

	ChunkSize        int           `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap     int           `envconfig:"CHUNK_OVERLAP" default:"150"`
	TopK             int           `envconfig:"TOP_K" default:"5"`
	MaxContextTokens int           `envconfig:"MAX_CONTEXT_TOKENS" default:"3000"`
	UnknownAnswer    string        `envconfig:"UNKNOWN_ANSWER" default:"I don't know"`
	AskTimeout       time.Duration `envconfig:"ASK_TIMEOUT" default:"90s"`

	RetryMaxAttempts     int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	RetryInitialInterval time.Duration `envconfig:"RETRY_INITIAL_INTERVAL" default:"500ms"`
	RateLimitRPS         float64       `envconfig:"RATE_LIMIT_RPS" default:"0"`

	// APIKeys maps owner IDs to the hex sha256 of their API token: "alice:<hash>,bob:<hash>"
	APIKeys        map[string]string `envconfig:"API_KEYS"`
	MaxUploadBytes int64             `envconfig:"MAX_UPLOAD_BYTES" default:"26214400"`

	SentryDSN string `envconfig:"SENTRY_DSN"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("DOCQA", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	var errs []error
	switch c.IndexBackend {
	case IndexBackendFile:
		if c.IndexDir == "" {
			errs = append(errs, errors.New("DOCQA_INDEX_DIR is required for the file index backend"))
		}
	case IndexBackendS3:
		if !c.HasS3() {
			errs = append(errs, errors.New("DOCQA_S3_ENDPOINT, DOCQA_S3_ACCESS_KEY_ID and DOCQA_S3_SECRET_ACCESS_KEY are required for the s3 index backend"))
		}
	case IndexBackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DOCQA_DATABASE_URL is required for the postgres index backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown index backend %q (want file, s3 or postgres)", c.IndexBackend))
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("DOCQA_CHUNK_SIZE must be positive, got %d", c.ChunkSize))
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("DOCQA_CHUNK_OVERLAP must be in [0, %d), got %d", c.ChunkSize, c.ChunkOverlap))
	}
	if c.TopK < 1 {
		errs = append(errs, fmt.Errorf("DOCQA_TOP_K must be at least 1, got %d", c.TopK))
	}
	if c.EmbeddingDimensions <= 0 {
		errs = append(errs, fmt.Errorf("DOCQA_EMBEDDING_DIMENSIONS must be positive, got %d", c.EmbeddingDimensions))
	}
	if !c.HasOpenAI() {
		errs = append(errs, errors.New("DOCQA_OPENAI_API_KEY is required"))
	}
	return errors.Join(errs...)
}

// ValidateServer additionally checks what the HTTP server needs.
func (c *Config) ValidateServer() error {
	var errs []error
	if err := c.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DOCQA_DATABASE_URL is required"))
	}
	if len(c.APIKeys) == 0 {
		errs = append(errs, errors.New("DOCQA_API_KEYS must list at least one owner:hash pair"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("DOCQA_MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes))
	}
	return errors.Join(errs...)
}
