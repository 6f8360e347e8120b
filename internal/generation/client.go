// Package generation wraps the chat completion service that writes answers
// from retrieved document context.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/mike-a-ellis/pdf-rag/internal/records"
)

const (
	// DefaultBaseURL is Groq's OpenAI-compatible endpoint.
	DefaultBaseURL = "https://api.groq.com/openai/v1/"
	// DefaultModel is the chat model used for answers and titles.
	DefaultModel = "llama-3.3-70b-versatile"

	DefaultTemperature = 0.1
	DefaultMaxTokens   = 1024
	DefaultTimeout     = 60 * time.Second

	// DefaultRequestsPerMinute matches Groq's free tier.
	DefaultRequestsPerMinute = 30

	// DefaultMaxContextTokens bounds the context block sent with a question.
	DefaultMaxContextTokens = 6000

	// HistoryLimit is the number of previous messages sent with a question.
	HistoryLimit = 10

	// FallbackTitle is used when no title could be generated.
	FallbackTitle = "New Chat"

	titleMaxWords = 6
)

var (
	ErrMissingAPIKey = errors.New("generation api key not set")
	ErrEmptyResponse = errors.New("no response generated")
)

const systemPromptTemplate = `You are a helpful assistant that answers questions based on the provided context from PDF documents.

Guidelines:
- Answer questions based ONLY on the provided context
- If the answer is not in the context, say "I don't have enough information in the provided documents to answer this question."
- Be concise but comprehensive
- If referencing specific information, mention it's from the documents
- Maintain a helpful and professional tone

Context from documents:
%s`

const titlePrompt = "Generate a short, descriptive title (max 6 words) for this chat based on the user's first question. Return only the title, nothing else."

// Config configures a Client.
type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	Temperature       *float64 // nil selects DefaultTemperature
	MaxTokens         int
	MaxContextTokens  int
	RequestsPerMinute int
	Timeout           time.Duration
}

// Client generates grounded answers and session titles.
type Client struct {
	client           *openai.Client
	model            string
	temperature      float64
	maxTokens        int
	maxContextTokens int
	timeout          time.Duration
	breaker          *gobreaker.CircuitBreaker
	limiter          *rate.Limiter
	logger           *slog.Logger
}

// NewClient creates a Client. Zero config values select the defaults.
func NewClient(cfg Config, logger *slog.Logger, opts ...option.RequestOption) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	temperature := DefaultTemperature
	if cfg.Temperature != nil {
		temperature = *cfg.Temperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = DefaultMaxContextTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultRequestsPerMinute
	}

	reqOpts := append([]option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
	}, opts...)
	client := openai.NewClient(reqOpts...)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "generation",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &Client{
		client:           &client,
		model:            cfg.Model,
		temperature:      temperature,
		maxTokens:        cfg.MaxTokens,
		maxContextTokens: cfg.MaxContextTokens,
		timeout:          cfg.Timeout,
		breaker:          breaker,
		limiter:          rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60), max(1, cfg.RequestsPerMinute/10)),
		logger:           logger,
	}, nil
}

// GenerateResponse answers question from contextText and the recent history.
func (c *Client) GenerateResponse(ctx context.Context, question, contextText string, history []records.Message) (string, error) {
	messages := buildMessages(question, c.truncateContext(contextText), history)

	content, err := c.complete(ctx, messages, c.temperature, c.maxTokens)
	if err != nil {
		return "", err
	}
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

// GenerateTitle returns a short title for a chat that starts with
// firstMessage. It never fails; FallbackTitle is returned on any error.
func (c *Client) GenerateTitle(ctx context.Context, firstMessage string) string {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(titlePrompt),
		openai.UserMessage(firstMessage),
	}

	content, err := c.complete(ctx, messages, 0.3, 50)
	if err != nil {
		c.logger.Warn("Title generation failed", "error", err)
		return FallbackTitle
	}
	return cleanTitle(content)
}

func (c *Client) complete(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, temperature float64, maxTokens int) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		resp, err := c.client.Chat.Completions.New(callCtx, openai.ChatCompletionNewParams{
			Messages:    messages,
			Model:       openai.ChatModel(c.model),
			Temperature: openai.Float(temperature),
			MaxTokens:   openai.Int(int64(maxTokens)),
			TopP:        openai.Float(1),
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return "", nil
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	return result.(string), nil
}

// buildMessages assembles the system prompt with context, the last
// HistoryLimit messages of history and the question.
func buildMessages(question, contextText string, history []records.Message) []openai.ChatCompletionMessageParamUnion {
	if len(history) > HistoryLimit {
		history = history[len(history)-HistoryLimit:]
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	messages = append(messages, openai.SystemMessage(fmt.Sprintf(systemPromptTemplate, contextText)))
	for _, m := range history {
		switch m.Role {
		case records.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	messages = append(messages, openai.UserMessage(question))
	return messages
}

// ContextBudget is the number of context characters GenerateResponse sends
// without truncating.
func (c *Client) ContextBudget() int {
	return c.maxContextTokens * 4
}

// truncateContext truncates context to fit within token limits.
// Uses rough estimate of 4 characters per token.
func (c *Client) truncateContext(contextText string) string {
	maxChars := c.ContextBudget()
	runes := []rune(contextText)
	if len(runes) <= maxChars {
		return contextText
	}

	c.logger.Warn("Truncating context", "from_chars", len(runes), "to_chars", maxChars)
	return string(runes[:maxChars])
}

// cleanTitle strips quotes and trailing punctuation and caps the word count.
func cleanTitle(raw string) string {
	title := strings.TrimSpace(raw)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	title = strings.Trim(title, "\"'` *#")
	title = strings.TrimRight(title, ".!?:")

	words := strings.Fields(title)
	if len(words) == 0 {
		return FallbackTitle
	}
	if len(words) > titleMaxWords {
		words = words[:titleMaxWords]
	}
	return strings.Join(words, " ")
}
