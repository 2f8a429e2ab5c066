package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	VectorBackendPgvector = "pgvector"
	VectorBackendMemory   = "memory"

	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

type Config struct {
	Port      string `envconfig:"PORT" default:"8080"`
	Debug     bool   `envconfig:"DEBUG" default:"false"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMaxConns  int32  `envconfig:"DB_MAX_CONNS" default:"10"`

	VectorBackend string `envconfig:"VECTOR_BACKEND" default:"pgvector"`

	EmbeddingProvider   string  `envconfig:"EMBEDDING_PROVIDER" default:"openai"`
	EmbeddingModel      string  `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions int     `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`
	EmbeddingRPS        float64 `envconfig:"EMBEDDING_RPS" default:"0"`

	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL"`

	GenerationProvider string `envconfig:"GENERATION_PROVIDER" default:"ollama"`
	GenerationModel    string `envconfig:"GENERATION_MODEL" default:"llama3.2:3b"`
	OllamaURL          string `envconfig:"OLLAMA_URL" default:"http://localhost:11434"`

	ChunkSize      int `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap   int `envconfig:"CHUNK_OVERLAP" default:"200"`
	IndexBatchSize int `envconfig:"INDEX_BATCH_SIZE" default:"50"`

	SyncMaxAttempts   int           `envconfig:"SYNC_MAX_ATTEMPTS" default:"3"`
	SyncBackoffBase   time.Duration `envconfig:"SYNC_BACKOFF_BASE" default:"1s"`
	SyncRecoveryPause time.Duration `envconfig:"SYNC_RECOVERY_PAUSE" default:"5s"`
	SyncConcurrency   int           `envconfig:"SYNC_CONCURRENCY" default:"6"`
	SyncInterval      time.Duration `envconfig:"SYNC_INTERVAL" default:"5m"`

	SessionMaxMessages   int           `envconfig:"SESSION_MAX_MESSAGES" default:"30"`
	SessionIdleTTL       time.Duration `envconfig:"SESSION_IDLE_TTL" default:"1h"`
	SessionSweepInterval time.Duration `envconfig:"SESSION_SWEEP_INTERVAL" default:"10m"`

	ReadinessTimeout time.Duration `envconfig:"READINESS_TIMEOUT" default:"30s"`

	// Bearer token guarding the admin API. Empty disables the guard.
	AdminToken string `envconfig:"ADMIN_TOKEN"`

	// Session transcript archive
	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"stockrag-sessions"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("STOCKRAG", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
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

// Validate checks enumerated settings and numeric bounds that envconfig
// cannot express through tags.
func (c *Config) Validate() error {
	switch c.VectorBackend {
	case VectorBackendPgvector, VectorBackendMemory:
	default:
		return fmt.Errorf("invalid VECTOR_BACKEND %q", c.VectorBackend)
	}
	switch c.EmbeddingProvider {
	case ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("invalid EMBEDDING_PROVIDER %q", c.EmbeddingProvider)
	}
	switch c.GenerationProvider {
	case ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("invalid GENERATION_PROVIDER %q", c.GenerationProvider)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("CHUNK_OVERLAP must not be negative, got %d", c.ChunkOverlap)
	}
	if c.IndexBatchSize <= 0 {
		return fmt.Errorf("INDEX_BATCH_SIZE must be positive, got %d", c.IndexBatchSize)
	}
	if c.SyncMaxAttempts <= 0 {
		return fmt.Errorf("SYNC_MAX_ATTEMPTS must be positive, got %d", c.SyncMaxAttempts)
	}
	if c.SessionMaxMessages <= 0 {
		return fmt.Errorf("SESSION_MAX_MESSAGES must be positive, got %d", c.SessionMaxMessages)
	}
	return nil
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasSentry() bool {
	return c.SentryDSN != ""
}
