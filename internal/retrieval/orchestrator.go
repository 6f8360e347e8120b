// Package retrieval answers questions from the indexed chunks of one or more
// documents.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/mike-a-ellis/pdf-rag/internal/records"
	"github.com/mike-a-ellis/pdf-rag/internal/storage"
)

var tracer = otel.Tracer("pdf-rag/retrieval")

const (
	// DefaultTopK is the number of chunks retrieved per document.
	DefaultTopK = 3
	// HistoryLimit is the number of previous messages passed to generation.
	HistoryLimit = 10
	// ContextSeparator joins retrieved chunks into one context block.
	ContextSeparator = "\n\n---\n\n"
	// NoContextResponse is returned when nothing relevant was retrieved.
	NoContextResponse = "No relevant content found in the documents"
)

var (
	ErrEmptyQuestion    = errors.New("question is empty")
	ErrNoDocuments      = errors.New("no documents selected")
	ErrGenerationFailed = errors.New("failed to generate response")
)

// VectorQuerier is the subset of storage.Store used for retrieval.
type VectorQuerier interface {
	EmbedQuery(ctx context.Context, queryText string) ([]float32, error)
	QueryVector(ctx context.Context, collectionID string, vector []float32, topK int) ([]storage.QueryResult, error)
}

// Generator writes answers and session titles.
type Generator interface {
	GenerateResponse(ctx context.Context, question, contextText string, history []records.Message) (string, error)
	GenerateTitle(ctx context.Context, firstMessage string) string
}

// ContextBudgeter is implemented by generators that accept a bounded amount
// of context, in characters. Chunks past the budget are not sent.
type ContextBudgeter interface {
	ContextBudget() int
}

// Request is one question over a set of documents.
type Request struct {
	Question    string
	DocumentIDs []string
	SessionID   string // empty starts a new session
}

// Source is a retrieved chunk that contributed to an answer.
type Source struct {
	DocumentID string  `json:"documentId"`
	ChunkIndex int     `json:"chunkIndex"`
	Score      float64 `json:"score"`
	Text       string  `json:"text"`
}

// Answer is the result of a Request.
type Answer struct {
	Response     string   `json:"response"`
	SessionID    string   `json:"sessionId,omitempty"`
	SessionTitle string   `json:"sessionTitle,omitempty"`
	NoContext    bool     `json:"noContext"`
	Sources      []Source `json:"sources,omitempty"`
}

// Orchestrator retrieves context for a question and hands it to a Generator.
type Orchestrator struct {
	vectors   VectorQuerier
	generator Generator
	sessions  records.SessionStore
	topK      int
	logger    *slog.Logger
}

// NewOrchestrator creates an Orchestrator. sessions may be nil, in which case
// no conversation history is loaded or saved.
func NewOrchestrator(vectors VectorQuerier, generator Generator, sessions records.SessionStore, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		vectors:   vectors,
		generator: generator,
		sessions:  sessions,
		topK:      DefaultTopK,
		logger:    logger,
	}
}

// Answer retrieves the most relevant chunks of every requested document and
// generates a response grounded in them. Callers are expected to pass only
// documents that finished ingestion.
func (o *Orchestrator) Answer(ctx context.Context, req Request) (*Answer, error) {
	ctx, span := tracer.Start(ctx, "retrieval.Answer")
	defer span.End()
	span.SetAttributes(attribute.Int("documents", len(req.DocumentIDs)))

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if len(req.DocumentIDs) == 0 {
		return nil, ErrNoDocuments
	}

	session, err := o.loadSession(ctx, req.SessionID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	vector, err := o.vectors.EmbedQuery(ctx, question)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("embed question: %w", err)
	}

	sources := o.retrieve(ctx, vector, req.DocumentIDs)
	span.SetAttributes(attribute.Int("sources", len(sources)))
	if len(sources) == 0 {
		o.logger.Info("No relevant context found", "documents", len(req.DocumentIDs))
		return &Answer{Response: NoContextResponse, SessionID: req.SessionID, NoContext: true}, nil
	}

	sources = o.fitContext(sources)
	texts := make([]string, len(sources))
	for i, s := range sources {
		texts[i] = s.Text
	}
	contextText := strings.Join(texts, ContextSeparator)

	var history []records.Message
	if session != nil {
		history = session.Messages
		if len(history) > HistoryLimit {
			history = history[len(history)-HistoryLimit:]
		}
	}

	response, err := o.generator.GenerateResponse(ctx, question, contextText, history)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	answer := &Answer{Response: response, Sources: sources}
	if o.sessions == nil {
		return answer, nil
	}

	if session == nil {
		session = &records.Session{
			Title:       o.generator.GenerateTitle(ctx, question),
			DocumentIDs: append([]string(nil), req.DocumentIDs...),
		}
		if err := o.sessions.CreateSession(ctx, session); err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
	}

	now := time.Now().UTC()
	err = o.sessions.AppendMessages(ctx, session.ID,
		records.Message{Role: records.RoleUser, Content: question, Timestamp: now},
		records.Message{Role: records.RoleAssistant, Content: response, Timestamp: now},
	)
	if err != nil {
		return nil, fmt.Errorf("save messages: %w", err)
	}

	answer.SessionID = session.ID
	answer.SessionTitle = session.Title
	return answer, nil
}

// retrieve queries every document concurrently. A failing document is logged
// and contributes nothing. Results keep document order, then rank order.
func (o *Orchestrator) retrieve(ctx context.Context, vector []float32, documentIDs []string) []Source {
	perDoc := make([][]Source, len(documentIDs))

	g, gctx := errgroup.WithContext(ctx)
	for i, docID := range documentIDs {
		g.Go(func() error {
			results, err := o.vectors.QueryVector(gctx, storage.CollectionID(docID), vector, o.topK)
			if err != nil {
				o.logger.Warn("Failed to query document", "document", docID, "error", err)
				return nil
			}
			for _, r := range results {
				if strings.TrimSpace(r.Text) == "" {
					continue
				}
				perDoc[i] = append(perDoc[i], Source{
					DocumentID: docID,
					ChunkIndex: chunkIndex(r.Metadata),
					Score:      r.Score,
					Text:       r.Text,
				})
			}
			return nil
		})
	}
	_ = g.Wait()

	var sources []Source
	for _, s := range perDoc {
		sources = append(sources, s...)
	}
	return sources
}

// fitContext keeps the leading sources whose joined text fits the
// generator's context budget. The first source is always kept.
func (o *Orchestrator) fitContext(sources []Source) []Source {
	b, ok := o.generator.(ContextBudgeter)
	if !ok || b.ContextBudget() <= 0 {
		return sources
	}
	budget := b.ContextBudget()
	sepLen := utf8.RuneCountInString(ContextSeparator)

	used := 0
	for i, s := range sources {
		n := utf8.RuneCountInString(s.Text)
		if i > 0 {
			n += sepLen
		}
		if i > 0 && used+n > budget {
			var dropped []string
			seen := make(map[string]bool)
			for _, d := range sources[i:] {
				if !seen[d.DocumentID] {
					seen[d.DocumentID] = true
					dropped = append(dropped, d.DocumentID)
				}
			}
			o.logger.Warn("Context budget exceeded, dropping chunks",
				"budget_chars", budget, "dropped_chunks", len(sources)-i, "dropped_documents", dropped)
			return sources[:i]
		}
		used += n
	}
	return sources
}

// loadSession returns the stored session, or nil when id is empty or no
// longer exists. Any other store error is returned.
func (o *Orchestrator) loadSession(ctx context.Context, id string) (*records.Session, error) {
	if o.sessions == nil || id == "" {
		return nil, nil
	}
	session, err := o.sessions.GetSession(ctx, id)
	if errors.Is(err, records.ErrSessionNotFound) {
		o.logger.Info("Session not found, starting a new one", "session", id)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return session, nil
}

// chunkIndex reads the chunk index back from metadata, which comes out of
// the backends as int, int64 or float64.
func chunkIndex(metadata map[string]any) int {
	switch v := metadata[storage.MetaChunkIndex].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		var n int
		fmt.Sscanf(v, "%d", &n)
		return n
	}
	return 0
}
