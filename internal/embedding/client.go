package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	// DefaultOpenAIModel is the OpenAI embedding model.
	DefaultOpenAIModel = "text-embedding-3-small"

	// DefaultHuggingFaceModel is the sentence-transformers model used by the
	// Hugging Face feature-extraction backend. It produces 384-dim vectors.
	DefaultHuggingFaceModel = "sentence-transformers/all-MiniLM-L6-v2"

	// DefaultHuggingFaceBaseURL is the hosted inference router.
	DefaultHuggingFaceBaseURL = "https://router.huggingface.co/hf-inference/models"
)

// Backend produces one embedding vector per call.
type Backend interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// StatusError is returned by backends when the upstream answered with a
// non-success HTTP status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("embedding endpoint returned HTTP %d: %s", e.StatusCode, e.Body)
}

// OpenAIBackend embeds text with the OpenAI embeddings API or any compatible endpoint.
type OpenAIBackend struct {
	client *openai.Client
	model  string
}

// NewOpenAIBackend creates an OpenAI backend. baseURL may be empty.
func NewOpenAIBackend(apiKey, baseURL, model string) (*OpenAIBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrMissingAPIKey)
	}
	if model == "" {
		model = DefaultOpenAIModel
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)

	return &OpenAIBackend{client: &client, model: model}, nil
}

// EmbedText implements Backend.
func (b *OpenAIBackend) EmbedText(ctx context.Context, text string) ([]float32, error) {
	resp, err := b.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
		Model: openai.EmbeddingModel(b.model),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &StatusError{StatusCode: apiErr.StatusCode, Body: apiErr.Message}
		}
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai: empty embedding response")
	}
	return toFloat32(resp.Data[0].Embedding), nil
}

// HuggingFaceBackend calls a Hugging Face feature-extraction pipeline over HTTP.
type HuggingFaceBackend struct {
	httpClient *http.Client
	apiKey     string
	url        string
}

// NewHuggingFaceBackend creates a backend for model under baseURL.
// Empty arguments select the defaults.
func NewHuggingFaceBackend(apiKey, baseURL, model string) (*HuggingFaceBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("huggingface: %w", ErrMissingAPIKey)
	}
	if baseURL == "" {
		baseURL = DefaultHuggingFaceBaseURL
	}
	if model == "" {
		model = DefaultHuggingFaceModel
	}

	return &HuggingFaceBackend{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		apiKey:     apiKey,
		url:        strings.TrimRight(baseURL, "/") + "/" + model + "/pipeline/feature-extraction",
	}, nil
}

type featureExtractionRequest struct {
	Inputs  string         `json:"inputs"`
	Options map[string]any `json:"options,omitempty"`
}

// EmbedText implements Backend.
func (b *HuggingFaceBackend) EmbedText(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(featureExtractionRequest{
		Inputs:  text,
		Options: map[string]any{"wait_for_model": true},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}

	return NormalizeVector(payload)
}

// NormalizeVector decodes a feature-extraction response. A nested sequence
// yields its first element; a flat sequence is used directly.
func NormalizeVector(raw json.RawMessage) ([]float32, error) {
	var flat []float32
	if err := json.Unmarshal(raw, &flat); err == nil {
		if len(flat) == 0 {
			return nil, errors.New("empty embedding vector")
		}
		return flat, nil
	}

	var nested [][]float32
	if err := json.Unmarshal(raw, &nested); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	if len(nested) == 0 || len(nested[0]) == 0 {
		return nil, errors.New("empty embedding vector")
	}
	return nested[0], nil
}

// toFloat32 converts []float64 to []float32.
// OpenAI API returns float64, but storage uses float32 for memory efficiency.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
