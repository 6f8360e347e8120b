package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mike-a-ellis/pdf-rag/internal/records"
)

type chatRequest struct {
	Model       string  `json:"model"`
	Temperature *float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// fakeCompletions serves the chat completions endpoint with a fixed reply.
type fakeCompletions struct {
	mu       sync.Mutex
	requests []chatRequest
	reply    string
	status   int
}

func (f *fakeCompletions) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var req chatRequest
	_ = json.Unmarshal(body, &req)

	f.mu.Lock()
	f.requests = append(f.requests, req)
	status, reply := f.status, f.reply
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != 0 && status != http.StatusOK {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":{"message":"upstream failure","type":"server_error"}}`))
		return
	}
	replyJSON, _ := json.Marshal(reply)
	fmt.Fprintf(w, `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":%q,
		"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":%s}}]}`,
		req.Model, replyJSON)
}

func newTestClient(t *testing.T, fake *fakeCompletions) *Client {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	c, err := NewClient(Config{APIKey: "test-key", BaseURL: server.URL + "/"}, nil, option.WithMaxRetries(0))
	require.NoError(t, err)
	return c
}

func TestGenerateResponse(t *testing.T) {
	fake := &fakeCompletions{reply: "  ATP is produced in mitochondria.  "}
	c := newTestClient(t, fake)

	history := []records.Message{
		{Role: records.RoleUser, Content: "What is a cell?"},
		{Role: records.RoleAssistant, Content: "The basic unit of life."},
	}
	answer, err := c.GenerateResponse(context.Background(), "Where is ATP made?", "Mitochondria produce ATP.", history)
	require.NoError(t, err)

	assert.Equal(t, "ATP is produced in mitochondria.", answer)
	require.Len(t, fake.requests, 1)
	req := fake.requests[0]
	assert.Equal(t, DefaultModel, req.Model)
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, DefaultTemperature, *req.Temperature, 1e-9)
	assert.Equal(t, DefaultMaxTokens, req.MaxTokens)

	require.Len(t, req.Messages, 4)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "Mitochondria produce ATP.")
	assert.Contains(t, req.Messages[0].Content, "based ONLY on the provided context")
	assert.Equal(t, "user", req.Messages[1].Role)
	assert.Equal(t, "assistant", req.Messages[2].Role)
	assert.Equal(t, "Where is ATP made?", req.Messages[3].Content)
}

func TestGenerateResponse_ExplicitZeroTemperature(t *testing.T) {
	fake := &fakeCompletions{reply: "ok"}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	zero := 0.0
	c, err := NewClient(Config{APIKey: "k", BaseURL: server.URL + "/", Temperature: &zero}, nil, option.WithMaxRetries(0))
	require.NoError(t, err)

	_, err = c.GenerateResponse(context.Background(), "q", "ctx", nil)
	require.NoError(t, err)

	require.Len(t, fake.requests, 1)
	require.NotNil(t, fake.requests[0].Temperature)
	assert.Zero(t, *fake.requests[0].Temperature)
}

func TestGenerateResponse_RateLimited(t *testing.T) {
	fake := &fakeCompletions{reply: "ok"}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	c, err := NewClient(Config{APIKey: "k", BaseURL: server.URL + "/", RequestsPerMinute: 1}, nil, option.WithMaxRetries(0))
	require.NoError(t, err)

	_, err = c.GenerateResponse(context.Background(), "q", "ctx", nil)
	require.NoError(t, err)

	// The next token is a minute away, past the deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.GenerateResponse(ctx, "q", "ctx", nil)
	assert.Error(t, err)
	assert.Len(t, fake.requests, 1)
}

func TestContextBudget(t *testing.T) {
	c, err := NewClient(Config{APIKey: "k", MaxContextTokens: 100}, nil)
	require.NoError(t, err)
	assert.Equal(t, 400, c.ContextBudget())
}

func TestGenerateResponse_UpstreamError(t *testing.T) {
	fake := &fakeCompletions{status: http.StatusInternalServerError}
	c := newTestClient(t, fake)

	_, err := c.GenerateResponse(context.Background(), "q", "ctx", nil)
	assert.Error(t, err)
}

func TestGenerateResponse_EmptyReply(t *testing.T) {
	fake := &fakeCompletions{reply: "   "}
	c := newTestClient(t, fake)

	_, err := c.GenerateResponse(context.Background(), "q", "ctx", nil)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestGenerateTitle(t *testing.T) {
	fake := &fakeCompletions{reply: `"Understanding Cellular Energy Production In Plants And Animals."`}
	c := newTestClient(t, fake)

	title := c.GenerateTitle(context.Background(), "How do cells make energy?")

	assert.Equal(t, "Understanding Cellular Energy Production In Plants", title)
	require.Len(t, fake.requests, 1)
	assert.Equal(t, "How do cells make energy?", fake.requests[0].Messages[1].Content)
}

func TestGenerateTitle_FallbackOnError(t *testing.T) {
	fake := &fakeCompletions{status: http.StatusBadGateway}
	c := newTestClient(t, fake)

	assert.Equal(t, FallbackTitle, c.GenerateTitle(context.Background(), "anything"))
}

func TestBuildMessages_LimitsHistory(t *testing.T) {
	var history []records.Message
	for i := 0; i < 15; i++ {
		history = append(history, records.Message{Role: records.RoleUser, Content: fmt.Sprintf("m%d", i)})
	}

	messages := buildMessages("question", "context", history)

	// system + 10 history + question
	assert.Len(t, messages, 12)
}

func TestTruncateContext(t *testing.T) {
	c := &Client{maxContextTokens: 10, logger: slog.Default()}

	long := strings.Repeat("é", 100)
	truncated := c.truncateContext(long)

	assert.Equal(t, 40, len([]rune(truncated)))
	assert.True(t, strings.HasPrefix(long, truncated))
	assert.Equal(t, "short", c.truncateContext("short"))
}

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Cell Biology Basics", "Cell Biology Basics"},
		{"  'Quoted Title.'  ", "Quoted Title"},
		{"**Bold Title**", "Bold Title"},
		{"First line\nsecond line", "First line"},
		{"", FallbackTitle},
		{"one two three four five six seven", "one two three four five six"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanTitle(tt.in), "input %q", tt.in)
	}
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{}, nil)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}
