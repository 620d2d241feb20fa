// Package config loads the process configuration from the environment.
// The resulting struct is validated once at construction and never
// mutated afterwards: collection name, vector dimension and distance
// metric are fixed for the lifetime of the index.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// Config is the full runtime configuration.
type Config struct {
	// HTTP transport
	ListenAddr string `validate:"required"`

	// Redis vector index
	RedisAddr     string `validate:"required,hostname_port"`
	RedisPassword string
	RedisDB       int `validate:"gte=0"`
	RedisPoolSize int `validate:"gt=0"`

	// Vector collection, fixed at creation time
	IndexName string `validate:"required"`
	KeyPrefix string `validate:"required"`
	VectorDim int    `validate:"gt=0"`

	// Chunking policy
	ChunkSize    int `validate:"gt=0"`
	ChunkOverlap int `validate:"gte=0,ltfield=ChunkSize"`

	// Retrieval
	DefaultTopK int `validate:"gt=0"`

	// Model access (OpenAI-compatible endpoints)
	EmbeddingAPIKey  string `validate:"required"`
	EmbeddingBaseURL string
	EmbeddingModel   string `validate:"required"`
	ChatProvider     string `validate:"oneof=openai gemini"`
	ChatAPIKey       string `validate:"required"`
	ChatBaseURL      string
	ChatModel        string `validate:"required"`
	Temperature      float32 `validate:"gte=0,lte=2"`

	// Run checkpoints
	CheckpointTTLHours int `validate:"gt=0"`
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:         getEnvString("LISTEN_ADDR", ":8080"),
		RedisAddr:          getEnvString("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnvString("REDIS_PASSWORD", ""),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		RedisPoolSize:      getEnvInt("REDIS_POOL_SIZE", 10),
		IndexName:          getEnvString("VECTOR_INDEX_NAME", "docs"),
		KeyPrefix:          getEnvString("VECTOR_KEY_PREFIX", "vec:"),
		VectorDim:          getEnvInt("VECTOR_DIM", 384),
		ChunkSize:          getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap:       getEnvInt("CHUNK_OVERLAP", 200),
		DefaultTopK:        getEnvInt("DEFAULT_TOP_K", 5),
		EmbeddingAPIKey:    getEnvString("EMBEDDING_API_KEY", ""),
		EmbeddingBaseURL:   getEnvString("EMBEDDING_BASE_URL", ""),
		EmbeddingModel:     getEnvString("EMBEDDING_MODEL", "text-embedding-3-small"),
		ChatProvider:       getEnvString("CHAT_PROVIDER", "openai"),
		ChatAPIKey:         getEnvString("CHAT_API_KEY", ""),
		ChatBaseURL:        getEnvString("CHAT_BASE_URL", ""),
		ChatModel:          getEnvString("CHAT_MODEL", "llama-3.1-8b-instant"),
		Temperature:        getEnvFloat("CHAT_TEMPERATURE", 0.2),
		CheckpointTTLHours: getEnvInt("CHECKPOINT_TTL_HOURS", 24),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// getEnvString reads a string from environment variable
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer from environment variable
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// getEnvFloat reads a float from environment variable
func getEnvFloat(key string, defaultVal float32) float32 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 32); err == nil {
			return float32(f)
		}
	}
	return defaultVal
}
