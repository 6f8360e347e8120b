package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load("")
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.Chunk.Size)
	assert.Equal(t, 100, cfg.Chunk.Overlap)
	assert.Equal(t, "pdf_chunks", cfg.Qdrant.Collection)
	assert.Equal(t, 150*time.Millisecond, cfg.Embedding.Interval)
	assert.Equal(t, int64(10<<20), cfg.Upload.MaxBytes)
	assert.Equal(t, 2, cfg.Ingest.Concurrency)
	assert.Equal(t, "stdio", cfg.Server.Mode)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeConfig(t, `
qdrant:
  host: qdrant.internal
  port: 7000
chunk:
  size: 500
  overlap: 50
embedding:
  provider: openai
  interval: 300ms
vector:
  backend: memory
`)
	t.Setenv("CHUNK_SIZE", "800")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("GENERATION_MAX_TOKENS", "512")

	cfg, err := load(path)
	require.NoError(t, err)

	assert.Equal(t, "qdrant.internal", cfg.Qdrant.Host)
	assert.Equal(t, 7000, cfg.Qdrant.Port)
	assert.Equal(t, 800, cfg.Chunk.Size, "env overrides file")
	assert.Equal(t, 50, cfg.Chunk.Overlap)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, 300*time.Millisecond, cfg.Embedding.Interval)
	assert.Equal(t, "memory", cfg.Vector.Backend)
	assert.Equal(t, 512, cfg.Generation.MaxTokens)
	assert.Equal(t, "sk-test", cfg.EmbeddingAPIKey())
	assert.Equal(t, "llama-3.3-70b-versatile", cfg.Groq.Model, "untouched defaults survive")
}

func TestLoad_RejectsInvalid(t *testing.T) {
	path := writeConfig(t, "chunk:\n  size: 100\n  overlap: 100\n")

	_, err := load(path)
	assert.ErrorContains(t, err, "chunk.overlap")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown backend", func(c *Config) { c.Vector.Backend = "pinecone" }, "vector.backend"},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "cohere" }, "embedding.provider"},
		{"zero concurrency", func(c *Config) { c.Ingest.Concurrency = 0 }, "ingest.concurrency"},
		{"bad mode", func(c *Config) { c.Server.Mode = "grpc" }, "server.mode"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"no upload limit", func(c *Config) { c.Upload.MaxBytes = 0 }, "upload.max_bytes"},
		{"bad qdrant port", func(c *Config) { c.Qdrant.Port = 70000 }, "qdrant.port"},
		{"negative request rate", func(c *Config) { c.Generation.RequestsPerMinute = -1 }, "generation.requests_per_minute"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}

	cfg := Defaults()
	assert.NoError(t, cfg.Validate())

	cfg.Generation.Temperature = 0
	assert.NoError(t, cfg.Validate())
}

func TestValidate_MemoryBackendNeedsNoQdrant(t *testing.T) {
	cfg := Defaults()
	cfg.Vector.Backend = "memory"
	cfg.Qdrant.Host = ""
	assert.NoError(t, cfg.Validate())
}

func TestEmbeddingAPIKey(t *testing.T) {
	cfg := Defaults()
	cfg.HuggingFace.APIKey = "hf"
	cfg.OpenAI.APIKey = "oa"

	assert.Equal(t, "hf", cfg.EmbeddingAPIKey())
	cfg.Embedding.Provider = "openai"
	assert.Equal(t, "oa", cfg.EmbeddingAPIKey())
}

func TestNewLogger(t *testing.T) {
	cfg := Defaults()
	cfg.Log.Format = "json"
	cfg.Log.Level = "debug"

	logger := cfg.NewLogger()
	require.NotNil(t, logger)
	assert.True(t, logger.Enabled(t.Context(), slog.LevelDebug))
}
