// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Cache (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Auth tokens
	JWTSecret       string        `env:"JWT_SECRET,required"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"30m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`

	// Object storage (S3)
	S3Bucket   string        `env:"S3_BUCKET" envDefault:"ezcommon-uploads"`
	S3Region   string        `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint string        `env:"S3_ENDPOINT" envDefault:""` // Non-empty for LocalStack/MinIO
	PresignTTL time.Duration `env:"PRESIGN_TTL" envDefault:"1h"`

	// Chunk index (OpenSearch)
	OpenSearchURL      string `env:"OPENSEARCH_URL" envDefault:"http://localhost:9200"`
	OpenSearchIndex    string `env:"OPENSEARCH_INDEX" envDefault:"document_chunks"`
	OpenSearchUsername string `env:"OPENSEARCH_USERNAME" envDefault:""`
	OpenSearchPassword string `env:"OPENSEARCH_PASSWORD" envDefault:""`

	// LLM provider
	LLMProvider   string `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey  string `env:"OPENAI_API_KEY" envDefault:""`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	OpenAIModel   string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`

	// OCR fallback (tesseract)
	OCREnabled   bool   `env:"OCR_ENABLED" envDefault:"true"`
	OCRLanguages string `env:"OCR_LANGUAGES" envDefault:"eng"`

	// Parse pipeline
	ParseBatchParallelism int `env:"PARSE_BATCH_PARALLELISM" envDefault:"3"`

	// Rate limiting
	RateLimitAPIEnabled bool `env:"RATE_LIMIT_API_ENABLED" envDefault:"true"`
	RateLimitParseRPS   int  `env:"RATE_LIMIT_PARSE_RPS" envDefault:"5"`
	RateLimitParseBurst int  `env:"RATE_LIMIT_PARSE_BURST" envDefault:"2"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://example.com,https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 25MB; uploads are multipart)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"26214400"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// OCRLanguageList parses the comma-separated OCR language string.
func (c *Config) OCRLanguageList() []string {
	parts := strings.Split(c.OCRLanguages, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// Load parses environment variables and returns a Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
