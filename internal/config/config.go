// Package config loads pdf-rag configuration from defaults, an optional YAML
// file, a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Config is the full application configuration.
type Config struct {
	Qdrant      QdrantConfig      `koanf:"qdrant"`
	Vector      VectorConfig      `koanf:"vector"`
	Embedding   EmbeddingConfig   `koanf:"embedding"`
	OpenAI      APIConfig         `koanf:"openai"`
	HuggingFace APIConfig         `koanf:"huggingface"`
	Groq        GroqConfig        `koanf:"groq"`
	Generation  GenerationConfig  `koanf:"generation"`
	Chunk       ChunkConfig       `koanf:"chunk"`
	Mongo       MongoConfig       `koanf:"mongo"`
	Upload      UploadConfig      `koanf:"upload"`
	Ingest      IngestConfig      `koanf:"ingest"`
	Server      ServerConfig      `koanf:"server"`
	GitHub      GitHubConfig      `koanf:"github"`
	Log         LogConfig         `koanf:"log"`
	Otel        OtelConfig        `koanf:"otel"`
}

// QdrantConfig locates the Qdrant gRPC endpoint.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	APIKey     string `koanf:"api_key"`
	UseTLS     bool   `koanf:"use_tls"`
	Collection string `koanf:"collection"`
}

// VectorConfig selects the vector backend.
type VectorConfig struct {
	Backend   string        `koanf:"backend"` // qdrant or memory
	Dimension int           `koanf:"dimension"`
	Timeout   time.Duration `koanf:"timeout"`
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider string        `koanf:"provider"` // huggingface or openai
	Model    string        `koanf:"model"`
	Interval time.Duration `koanf:"interval"`
	Timeout  time.Duration `koanf:"timeout"`
}

// APIConfig holds credentials for an HTTP API.
type APIConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
}

// GroqConfig holds the chat completion endpoint.
type GroqConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
}

// GenerationConfig tunes answer generation.
type GenerationConfig struct {
	Timeout           time.Duration `koanf:"timeout"`
	Temperature       float64       `koanf:"temperature"`
	MaxTokens         int           `koanf:"max_tokens"`
	MaxContextTokens  int           `koanf:"max_context_tokens"`
	RequestsPerMinute int           `koanf:"requests_per_minute"`
}

// ChunkConfig sizes text chunks, in characters.
type ChunkConfig struct {
	Size    int `koanf:"size"`
	Overlap int `koanf:"overlap"`
}

// MongoConfig locates the records database. An empty URI keeps records in memory.
type MongoConfig struct {
	URI      string `koanf:"uri"`
	Database string `koanf:"database"`
}

// UploadConfig limits uploads.
type UploadConfig struct {
	MaxBytes int64 `koanf:"max_bytes"`
}

// IngestConfig tunes bulk ingestion.
type IngestConfig struct {
	Concurrency int `koanf:"concurrency"`
}

// ServerConfig configures the MCP server binary.
type ServerConfig struct {
	Port int    `koanf:"port"`
	Mode string `koanf:"mode"` // stdio or http
}

// GitHubConfig locates PDFs for ingest-github.
type GitHubConfig struct {
	Token string `koanf:"token"`
	Owner string `koanf:"owner"`
	Repo  string `koanf:"repo"`
	Path  string `koanf:"path"`
}

// LogConfig configures the root logger.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // text or json
}

// OtelConfig configures trace export. An empty endpoint disables it.
type OtelConfig struct {
	Endpoint    string `koanf:"endpoint"`
	ServiceName string `koanf:"service_name"`
	Insecure    bool   `koanf:"insecure"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		Qdrant: QdrantConfig{
			Host:       "localhost",
			Port:       6334,
			Collection: "pdf_chunks",
		},
		Vector: VectorConfig{
			Backend: "qdrant",
			Timeout: 30 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Provider: "huggingface",
			Interval: 150 * time.Millisecond,
			Timeout:  30 * time.Second,
		},
		HuggingFace: APIConfig{
			BaseURL: "https://router.huggingface.co/hf-inference/models",
		},
		Groq: GroqConfig{
			BaseURL: "https://api.groq.com/openai/v1/",
			Model:   "llama-3.3-70b-versatile",
		},
		Generation: GenerationConfig{
			Timeout:           60 * time.Second,
			Temperature:       0.1,
			MaxTokens:         1024,
			MaxContextTokens:  6000,
			RequestsPerMinute: 30,
		},
		Chunk: ChunkConfig{
			Size:    1000,
			Overlap: 100,
		},
		Mongo: MongoConfig{
			Database: "pdf_rag",
		},
		Upload: UploadConfig{
			MaxBytes: 10 << 20,
		},
		Ingest: IngestConfig{
			Concurrency: 2,
		},
		Server: ServerConfig{
			Port: 8080,
			Mode: "stdio",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Otel: OtelConfig{
			ServiceName: "pdf-rag",
			Insecure:    true,
		},
	}
}

// Validate rejects values the application cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Chunk.Size <= 0 {
		errs = append(errs, fmt.Errorf("chunk.size must be positive, got %d", c.Chunk.Size))
	}
	if c.Chunk.Overlap < 0 || c.Chunk.Overlap >= c.Chunk.Size {
		errs = append(errs, fmt.Errorf("chunk.overlap must be in [0, chunk.size), got %d", c.Chunk.Overlap))
	}
	switch c.Vector.Backend {
	case "qdrant":
		if c.Qdrant.Host == "" {
			errs = append(errs, errors.New("qdrant.host is required"))
		}
		if c.Qdrant.Port <= 0 || c.Qdrant.Port > 65535 {
			errs = append(errs, fmt.Errorf("qdrant.port out of range: %d", c.Qdrant.Port))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("vector.backend must be qdrant or memory, got %q", c.Vector.Backend))
	}
	if c.Vector.Dimension < 0 {
		errs = append(errs, fmt.Errorf("vector.dimension must not be negative, got %d", c.Vector.Dimension))
	}
	switch c.Embedding.Provider {
	case "huggingface", "openai":
	default:
		errs = append(errs, fmt.Errorf("embedding.provider must be huggingface or openai, got %q", c.Embedding.Provider))
	}
	if c.Embedding.Interval < 0 {
		errs = append(errs, errors.New("embedding.interval must not be negative"))
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		errs = append(errs, fmt.Errorf("generation.temperature must be in [0, 2], got %g", c.Generation.Temperature))
	}
	if c.Generation.RequestsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("generation.requests_per_minute must not be negative, got %d", c.Generation.RequestsPerMinute))
	}
	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, fmt.Errorf("upload.max_bytes must be positive, got %d", c.Upload.MaxBytes))
	}
	if c.Ingest.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("ingest.concurrency must be at least 1, got %d", c.Ingest.Concurrency))
	}
	switch c.Server.Mode {
	case "stdio", "http":
	default:
		errs = append(errs, fmt.Errorf("server.mode must be stdio or http, got %q", c.Server.Mode))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// EmbeddingAPIKey returns the key of the selected embedding provider.
func (c *Config) EmbeddingAPIKey() string {
	if c.Embedding.Provider == "openai" {
		return c.OpenAI.APIKey
	}
	return c.HuggingFace.APIKey
}

// NewLogger builds the root logger described by c.Log, writing to stderr.
func (c *Config) NewLogger() *slog.Logger {
	level, _ := parseLevel(c.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
