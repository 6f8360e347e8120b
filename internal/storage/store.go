package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("pdf-rag/storage")

// Backend is a flat vector index. Every record carries its collection id in
// the documentId metadata field; Query, DeleteCollection and Count must only
// touch records whose documentId equals collectionID.
type Backend interface {
	Upsert(ctx context.Context, records []Record) error
	Query(ctx context.Context, vector []float32, topK int, collectionID string) ([]Match, error)
	DeleteCollection(ctx context.Context, collectionID string) error
	Count(ctx context.Context, collectionID string) (int, error)
	Health(ctx context.Context) error
	Close() error
}

// Embedder is the subset of embedding.Embedder used by the store.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store embeds chunk text and persists it in a Backend, keyed by collection.
type Store struct {
	backend   Backend
	embedder  Embedder
	dimension int // 0 accepts any consistent dimension
	timeout   time.Duration
	logger    *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithDimension makes Upsert reject vectors of any other length.
func WithDimension(n int) StoreOption {
	return func(s *Store) { s.dimension = n }
}

// WithCallTimeout bounds every backend call. Zero disables the timeout.
func WithCallTimeout(d time.Duration) StoreOption {
	return func(s *Store) { s.timeout = d }
}

// NewStore creates a Store.
func NewStore(backend Backend, embedder Embedder, logger *slog.Logger, opts ...StoreOption) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		backend:  backend,
		embedder: embedder,
		timeout:  30 * time.Second,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upsert embeds chunks and stores them under collectionID. metadatas may be
// nil or must have one entry per chunk. Re-upserting the same index
// overwrites the previous record.
func (s *Store) Upsert(ctx context.Context, collectionID string, chunks []string, metadatas []map[string]any) error {
	ctx, span := tracer.Start(ctx, "storage.Upsert")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collectionID), attribute.Int("chunks", len(chunks)))

	if collectionID == "" {
		return ErrEmptyCollectionID
	}
	if metadatas != nil && len(metadatas) != len(chunks) {
		return fmt.Errorf("%w: %d chunks, %d metadata entries", ErrMetadataMismatch, len(chunks), len(metadatas))
	}
	if len(chunks) == 0 {
		return nil
	}

	vectors, err := s.embedder.Embed(ctx, chunks)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		return fmt.Errorf("embed chunks: %w", err)
	}
	if err := s.validateDimensions(vectors); err != nil {
		return err
	}

	records := make([]Record, len(chunks))
	for i, text := range chunks {
		key := RecordKey(collectionID, i)
		meta := make(map[string]any, 8)
		if metadatas != nil {
			for k, v := range metadatas[i] {
				meta[k] = v
			}
		}
		meta[MetaText] = text
		meta[MetaDocumentID] = collectionID
		meta[MetaChunkIndex] = i
		meta[MetaRecordKey] = key

		records[i] = Record{
			ID:       RecordID(key),
			Key:      key,
			Vector:   vectors[i],
			Metadata: meta,
		}
	}

	for i := 0; i < len(records); i += BatchSize {
		end := min(i+BatchSize, len(records))

		callCtx, cancel := s.callContext(ctx)
		err := s.backend.Upsert(callCtx, records[i:end])
		cancel()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "upsert failed")
			return fmt.Errorf("upsert batch %d-%d: %w", i, end, err)
		}
	}

	s.logger.Info("Stored chunk vectors", "collection", collectionID, "records", len(records))
	return nil
}

// Query returns the topK chunks of collectionID closest to queryText.
func (s *Store) Query(ctx context.Context, collectionID, queryText string, topK int) ([]QueryResult, error) {
	if collectionID == "" {
		return nil, ErrEmptyCollectionID
	}
	vector, err := s.EmbedQuery(ctx, queryText)
	if err != nil {
		return nil, err
	}
	return s.QueryVector(ctx, collectionID, vector, topK)
}

// EmbedQuery embeds queryText with the store's embedder, so one vector can be
// reused across several QueryVector calls.
func (s *Store) EmbedQuery(ctx context.Context, queryText string) ([]float32, error) {
	vector, err := s.embedder.EmbedQuery(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return vector, nil
}

// QueryVector returns the topK chunks of collectionID closest to vector.
func (s *Store) QueryVector(ctx context.Context, collectionID string, vector []float32, topK int) ([]QueryResult, error) {
	ctx, span := tracer.Start(ctx, "storage.Query")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collectionID), attribute.Int("top_k", topK))

	if collectionID == "" {
		return nil, ErrEmptyCollectionID
	}
	if topK <= 0 {
		topK = 5
	}

	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	matches, err := s.backend.Query(callCtx, vector, topK, collectionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("query %s: %w", collectionID, err)
	}

	results := make([]QueryResult, 0, len(matches))
	for _, m := range matches {
		text, _ := m.Metadata[MetaText].(string)
		results = append(results, QueryResult{
			Text:     text,
			Score:    m.Score,
			Distance: 1 - m.Score,
			Metadata: m.Metadata,
		})
	}
	span.SetAttributes(attribute.Int("results", len(results)))
	return results, nil
}

// Delete removes every record of collectionID.
func (s *Store) Delete(ctx context.Context, collectionID string) error {
	if collectionID == "" {
		return ErrEmptyCollectionID
	}
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	if err := s.backend.DeleteCollection(callCtx, collectionID); err != nil {
		return fmt.Errorf("delete %s: %w", collectionID, err)
	}
	s.logger.Info("Deleted chunk vectors", "collection", collectionID)
	return nil
}

// Count returns the number of records stored for collectionID.
func (s *Store) Count(ctx context.Context, collectionID string) (int, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	return s.backend.Count(callCtx, collectionID)
}

// Health reports whether the backend is reachable.
func (s *Store) Health(ctx context.Context) error {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	if err := s.backend.Health(callCtx); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) validateDimensions(vectors [][]float32) error {
	want := s.dimension
	for i, v := range vectors {
		if want == 0 {
			want = len(v)
		}
		if len(v) != want || len(v) == 0 {
			return fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(v), want)
		}
	}
	return nil
}

func (s *Store) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
