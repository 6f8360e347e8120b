// Package app wires configuration into the ingestion and retrieval
// components shared by the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mike-a-ellis/pdf-rag/internal/chunker"
	"github.com/mike-a-ellis/pdf-rag/internal/config"
	"github.com/mike-a-ellis/pdf-rag/internal/embedding"
	"github.com/mike-a-ellis/pdf-rag/internal/extract"
	"github.com/mike-a-ellis/pdf-rag/internal/generation"
	ghclient "github.com/mike-a-ellis/pdf-rag/internal/github"
	"github.com/mike-a-ellis/pdf-rag/internal/indexer"
	"github.com/mike-a-ellis/pdf-rag/internal/records"
	"github.com/mike-a-ellis/pdf-rag/internal/retrieval"
	"github.com/mike-a-ellis/pdf-rag/internal/storage"
)

// ErrAnsweringDisabled is returned by Ask when no generation key is configured.
var ErrAnsweringDisabled = errors.New("answering disabled: groq.api_key not set")

// Vector sizes of the default embedding models.
const (
	huggingFaceDimension = 384
	openAIDimension      = 1536
)

// Records is what both record stores implement.
type Records interface {
	records.DocumentStore
	records.SessionStore
}

// App holds the constructed components.
type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	Records      Records
	Store        *storage.Store
	Pipeline     *indexer.Pipeline
	Orchestrator *retrieval.Orchestrator // nil when answering is disabled

	closers []func(context.Context) error
}

// New connects to the configured backends and builds the pipeline and
// orchestrator. Close releases everything New opened.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	embedBackend, err := newEmbeddingBackend(cfg)
	if err != nil {
		return nil, err
	}
	embedder := embedding.NewEmbedder(embedBackend, logger.With("component", "embedding"),
		embedding.WithInterval(cfg.Embedding.Interval),
		embedding.WithTimeout(cfg.Embedding.Timeout),
	)

	vectorBackend, err := a.newVectorBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return vectorBackend.Close() })

	var storeOpts []storage.StoreOption
	if cfg.Vector.Dimension > 0 {
		storeOpts = append(storeOpts, storage.WithDimension(cfg.Vector.Dimension))
	}
	storeOpts = append(storeOpts, storage.WithCallTimeout(cfg.Vector.Timeout))
	a.Store = storage.NewStore(vectorBackend, embedder, logger.With("component", "storage"), storeOpts...)

	if err := a.openRecords(ctx, cfg, logger); err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}

	a.Pipeline = indexer.NewPipeline(
		extract.NewExtractor(logger.With("component", "extract")),
		chunker.NewChunker(cfg.Chunk.Size, cfg.Chunk.Overlap),
		a.Store,
		a.Records,
		logger.With("component", "indexer"),
		indexer.WithMaxUploadBytes(cfg.Upload.MaxBytes),
		indexer.WithConcurrency(cfg.Ingest.Concurrency),
	)

	if cfg.Groq.APIKey != "" {
		temperature := cfg.Generation.Temperature
		gen, err := generation.NewClient(generation.Config{
			APIKey:            cfg.Groq.APIKey,
			BaseURL:           cfg.Groq.BaseURL,
			Model:             cfg.Groq.Model,
			Temperature:       &temperature,
			MaxTokens:         cfg.Generation.MaxTokens,
			MaxContextTokens:  cfg.Generation.MaxContextTokens,
			RequestsPerMinute: cfg.Generation.RequestsPerMinute,
			Timeout:           cfg.Generation.Timeout,
		}, logger.With("component", "generation"))
		if err != nil {
			_ = a.Close(context.Background())
			return nil, err
		}
		a.Orchestrator = retrieval.NewOrchestrator(a.Store, gen, a.Records, logger.With("component", "retrieval"))
	} else {
		logger.Warn("groq.api_key not set, answering disabled")
	}

	return a, nil
}

// Ask answers a question over ready documents.
func (a *App) Ask(ctx context.Context, req retrieval.Request) (*retrieval.Answer, error) {
	if a.Orchestrator == nil {
		return nil, ErrAnsweringDisabled
	}
	if err := a.checkReady(ctx, req.DocumentIDs); err != nil {
		return nil, err
	}
	return a.Orchestrator.Answer(ctx, req)
}

// NotReadyError reports a document that cannot be queried yet.
type NotReadyError struct {
	ID     string
	Status records.Status
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("document %s is %s, not ready", e.ID, e.Status)
}

func (a *App) checkReady(ctx context.Context, ids []string) error {
	for _, id := range ids {
		doc, err := a.Records.GetDocument(ctx, id)
		if err != nil {
			return fmt.Errorf("document %s: %w", id, err)
		}
		if doc.Status != records.StatusReady {
			return &NotReadyError{ID: id, Status: doc.Status}
		}
	}
	return nil
}

// GitHubSource builds a bulk source from the github config section.
func (a *App) GitHubSource() (indexer.GitHubSource, error) {
	gh := a.Config.GitHub
	if gh.Owner == "" || gh.Repo == "" {
		return indexer.GitHubSource{}, errors.New("github.owner and github.repo are required")
	}
	client, err := ghclient.NewClient(gh.Token)
	if err != nil {
		return indexer.GitHubSource{}, fmt.Errorf("create github client: %w", err)
	}
	return indexer.GitHubSource{Fetcher: ghclient.NewFetcher(client, gh.Owner, gh.Repo, gh.Path)}, nil
}

// Close releases backends in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}

func newEmbeddingBackend(cfg *config.Config) (embedding.Backend, error) {
	switch cfg.Embedding.Provider {
	case "openai":
		return embedding.NewOpenAIBackend(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.Embedding.Model)
	default:
		return embedding.NewHuggingFaceBackend(cfg.HuggingFace.APIKey, cfg.HuggingFace.BaseURL, cfg.Embedding.Model)
	}
}

func (a *App) newVectorBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Backend, error) {
	if cfg.Vector.Backend == "memory" {
		logger.Info("Using in-memory vector backend")
		return storage.NewMemoryBackend(cfg.Qdrant.Collection)
	}

	dimension := cfg.Vector.Dimension
	if dimension <= 0 {
		dimension = huggingFaceDimension
		if cfg.Embedding.Provider == "openai" {
			dimension = openAIDimension
		}
	}

	connectCtx, cancel := context.WithTimeout(ctx, 45*time.Second)
	defer cancel()
	backend, err := storage.NewQdrantBackend(connectCtx, storage.QdrantConfig{
		Host:       cfg.Qdrant.Host,
		Port:       cfg.Qdrant.Port,
		APIKey:     cfg.Qdrant.APIKey,
		UseTLS:     cfg.Qdrant.UseTLS,
		Collection: cfg.Qdrant.Collection,
		Dimension:  dimension,
	}, logger.With("component", "qdrant"))
	if err != nil {
		return nil, err
	}
	if err := backend.EnsureCollection(connectCtx); err != nil {
		_ = backend.Close()
		return nil, err
	}
	return backend, nil
}

func (a *App) openRecords(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.Mongo.URI == "" {
		logger.Warn("mongo.uri not set, records kept in memory")
		a.Records = records.NewMemoryStore()
		return nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	store, err := records.NewMongoStore(connectCtx, cfg.Mongo.URI, cfg.Mongo.Database, logger.With("component", "records"))
	if err != nil {
		return err
	}
	a.Records = store
	a.closers = append(a.closers, store.Close)
	return nil
}
