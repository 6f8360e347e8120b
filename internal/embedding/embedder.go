package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultInterval is the pause after each upstream call before the next
	// call of the same batch starts.
	DefaultInterval = 150 * time.Millisecond

	// DefaultTimeout bounds a single upstream call.
	DefaultTimeout = 30 * time.Second
)

var (
	// ErrEmbeddingFailed wraps any failure that aborted a batch.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrEmptyText is returned for blank input.
	ErrEmptyText = errors.New("text is empty")

	// ErrMissingAPIKey is returned when a backend is created without credentials.
	ErrMissingAPIKey = errors.New("api key not set")
)

// Embedder turns texts into vectors through a Backend, one call per text.
// Each call of a batch is followed by a fixed pause before the next one and
// retried with exponential backoff on HTTP 429. A failure on any text aborts the batch.
type Embedder struct {
	backend  Backend
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	// newBackOff is swapped in tests.
	newBackOff func() backoff.BackOff
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithInterval sets the pause between the end of one call and the start of
// the next within a batch.
func WithInterval(d time.Duration) Option {
	return func(e *Embedder) { e.interval = d }
}

// WithTimeout sets the per-call timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(e *Embedder) { e.timeout = d }
}

// NewEmbedder creates an Embedder for backend.
func NewEmbedder(backend Backend, logger *slog.Logger, opts ...Option) *Embedder {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Embedder{
		backend:    backend,
		interval:   DefaultInterval,
		timeout:    DefaultTimeout,
		logger:     logger,
		newBackOff: defaultBackOff,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Embed returns one vector per text, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: text %d: %w", ErrEmbeddingFailed, i, err)
		}

		vec, err := e.embedWithRetry(ctx, text)
		if err != nil {
			e.logger.Error("Embedding failed, aborting batch", "index", i, "total", len(texts), "error", err)
			return nil, fmt.Errorf("%w: text %d: %w", ErrEmbeddingFailed, i, err)
		}
		vectors[i] = vec

		if i < len(texts)-1 {
			if err := e.pause(ctx); err != nil {
				return nil, fmt.Errorf("%w: text %d: %w", ErrEmbeddingFailed, i+1, err)
			}
		}
	}

	e.logger.Debug("Embedded batch", "texts", len(texts))
	return vectors, nil
}

// pause waits for the configured interval or until ctx is done.
func (e *Embedder) pause(ctx context.Context) error {
	if e.interval <= 0 {
		return nil
	}
	timer := time.NewTimer(e.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// EmbedQuery embeds a single query string.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// embedWithRetry embeds one text, retrying with exponential backoff on rate
// limit errors (HTTP 429). Other errors fail immediately.
func (e *Embedder) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	var vec []float32
	operation := func() error {
		callCtx, cancel := e.callContext(ctx)
		defer cancel()

		v, err := e.backend.EmbedText(callCtx, text)
		if err != nil {
			if isRateLimitError(err) {
				e.logger.Warn("Embedding rate limited, backing off", "error", err)
				return err
			}
			return backoff.Permanent(err)
		}
		vec = v
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(e.newBackOff(), ctx))
	return vec, err
}

func (e *Embedder) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// isRateLimitError checks if the error is a rate limit error (HTTP 429).
func isRateLimitError(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}
