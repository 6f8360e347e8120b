package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/mike-a-ellis/pdf-rag/internal/chunker"
	"github.com/mike-a-ellis/pdf-rag/internal/extract"
	"github.com/mike-a-ellis/pdf-rag/internal/records"
	"github.com/mike-a-ellis/pdf-rag/internal/storage"
)

var tracer = otel.Tracer("pdf-rag/indexer")

// DefaultConcurrency is the number of documents IndexSource ingests at once.
const DefaultConcurrency = 2

// Chunk metadata keys carrying the extractor's page information.
const (
	MetaTotalPages = "totalPages"
	MetaTotalWords = "totalWords"
	MetaTitle      = "title"
)

var ErrNoChunks = errors.New("no text chunks produced")

// VectorStore is the subset of storage.Store used by the pipeline.
type VectorStore interface {
	Upsert(ctx context.Context, collectionID string, chunks []string, metadatas []map[string]any) error
	Delete(ctx context.Context, collectionID string) error
}

// IndexResult contains statistics about a bulk indexing operation.
type IndexResult struct {
	TotalDocs      int
	TotalChunks    int
	SuccessfulDocs int
	FailedDocs     []FailedDoc
	Documents      []*records.Document
	Revision       string
	Duration       time.Duration
}

// FailedDoc represents a document that failed to index.
type FailedDoc struct {
	Path   string
	Reason string
}

// Pipeline turns uploaded PDFs into indexed chunks and document records.
type Pipeline struct {
	extractor   *extract.Extractor
	chunker     *chunker.Chunker
	vectors     VectorStore
	documents   records.DocumentStore
	maxBytes    int64
	concurrency int
	logger      *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMaxUploadBytes sets the upload size limit.
func WithMaxUploadBytes(n int64) Option {
	return func(p *Pipeline) { p.maxBytes = n }
}

// WithConcurrency sets how many documents IndexSource processes at once.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) { p.concurrency = n }
}

// NewPipeline creates a new ingestion pipeline with the given components.
func NewPipeline(
	extractor *extract.Extractor,
	chunker *chunker.Chunker,
	vectors VectorStore,
	documents records.DocumentStore,
	logger *slog.Logger,
	opts ...Option,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		extractor:   extractor,
		chunker:     chunker,
		vectors:     vectors,
		documents:   documents,
		maxBytes:    DefaultMaxUploadBytes,
		concurrency: DefaultConcurrency,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.concurrency < 1 {
		p.concurrency = 1
	}
	return p
}

// Ingest validates, extracts, chunks and indexes one PDF.
//
// Invalid uploads are rejected before any record exists. Once the document
// record is created it always ends up ready or error, even if ctx is
// cancelled midway. The returned document reflects the final status; on
// failure it is returned together with the error.
func (p *Pipeline) Ingest(ctx context.Context, u Upload) (*records.Document, error) {
	if err := ValidateUpload(u, p.maxBytes); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "indexer.Ingest")
	defer span.End()

	id := uuid.NewString()
	doc := &records.Document{
		ID:           id,
		Filename:     storedName(id, u.Filename),
		OriginalName: u.Filename,
		FileSize:     int64(len(u.Data)),
		CollectionID: storage.CollectionID(id),
	}
	if err := p.documents.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document record: %w", err)
	}
	span.SetAttributes(attribute.String("document", doc.ID), attribute.Int("bytes", len(u.Data)))
	p.logger.Info("Processing document", "document", doc.ID, "name", u.Filename, "bytes", len(u.Data))

	outcome := p.process(ctx, doc, u.Data)

	finalizeCtx := context.WithoutCancel(ctx)
	if err := p.documents.Finalize(finalizeCtx, doc.ID, outcome); err != nil {
		return nil, fmt.Errorf("finalize document %s: %w", doc.ID, err)
	}

	final, err := p.documents.GetDocument(finalizeCtx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("reload document %s: %w", doc.ID, err)
	}

	if outcome.Err != nil {
		span.RecordError(outcome.Err)
		span.SetStatus(codes.Error, "ingest failed")
		p.logger.Error("Failed to process document", "document", doc.ID, "error", outcome.Err)
		return final, outcome.Err
	}

	span.SetAttributes(attribute.Int("chunks", outcome.ChunksCount))
	p.logger.Info("Indexed document", "document", doc.ID, "chunks", outcome.ChunksCount, "pages", outcome.PageCount)
	return final, nil
}

// process runs extraction, chunking and indexing for a created document.
func (p *Pipeline) process(ctx context.Context, doc *records.Document, data []byte) records.Outcome {
	result := p.extractor.Extract(data)
	outcome := records.Outcome{
		PageCount: result.PageCount,
		WordCount: result.WordCount,
		Title:     result.Title,
	}
	p.logger.Debug("Extracted text", "document", doc.ID, "method", result.Method, "chars", len(result.Text))

	chunks := p.chunker.Split(result.Text)
	if len(chunks) == 0 {
		outcome.Err = ErrNoChunks
		return outcome
	}

	texts := make([]string, len(chunks))
	metadatas := make([]map[string]any, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
		metadatas[i] = map[string]any{
			MetaTotalPages: result.PageCount,
			MetaTotalWords: result.WordCount,
			MetaTitle:      result.Title,
		}
	}

	if err := p.vectors.Upsert(ctx, doc.CollectionID, texts, metadatas); err != nil {
		outcome.Err = fmt.Errorf("index chunks: %w", err)
		// Earlier batches may already be stored.
		if delErr := p.vectors.Delete(context.WithoutCancel(ctx), doc.CollectionID); delErr != nil {
			p.logger.Warn("Failed to remove partial vectors", "document", doc.ID, "error", delErr)
		}
		return outcome
	}

	outcome.ChunksCount = len(chunks)
	return outcome
}

// IndexSource ingests every PDF listed by src. Documents are processed
// concurrently; a failing document is recorded and does not stop the others.
func (p *Pipeline) IndexSource(ctx context.Context, src Source) (*IndexResult, error) {
	start := time.Now()
	result := &IndexResult{}

	if r, ok := src.(Revisioner); ok {
		rev, err := r.Revision(ctx)
		if err != nil {
			return nil, fmt.Errorf("get revision: %w", err)
		}
		result.Revision = rev
	}

	names, err := src.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	result.TotalDocs = len(names)
	p.logger.Info("Starting indexing", "documents", len(names), "revision", result.Revision)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, name := range names {
		g.Go(func() error {
			doc, err := p.ingestFromSource(gctx, src, name)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				p.logger.Warn("Failed to index document", "path", name, "error", err)
				result.FailedDocs = append(result.FailedDocs, FailedDoc{Path: name, Reason: err.Error()})
				return nil
			}
			result.SuccessfulDocs++
			result.TotalChunks += doc.ChunksCount
			result.Documents = append(result.Documents, doc)
			return nil
		})
	}
	_ = g.Wait()

	result.Duration = time.Since(start)
	p.logger.Info("Indexing complete",
		"successful", result.SuccessfulDocs,
		"failed", len(result.FailedDocs),
		"chunks", result.TotalChunks,
		"duration", result.Duration,
	)
	return result, ctx.Err()
}

func (p *Pipeline) ingestFromSource(ctx context.Context, src Source, name string) (*records.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	upload, err := src.Fetch(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	return p.Ingest(ctx, *upload)
}

// DeleteDocument removes a document's vectors and its record.
func (p *Pipeline) DeleteDocument(ctx context.Context, id string) error {
	doc, err := p.documents.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	collectionID := doc.CollectionID
	if collectionID == "" {
		collectionID = storage.CollectionID(doc.ID)
	}
	if err := p.vectors.Delete(ctx, collectionID); err != nil {
		return fmt.Errorf("delete vectors of %s: %w", id, err)
	}
	if err := p.documents.DeleteDocument(ctx, id); err != nil {
		return err
	}
	p.logger.Info("Deleted document", "document", id)
	return nil
}
