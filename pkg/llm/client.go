package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pippinlabs/go-pippin/internal/httpc"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Client is the standard HTTP-based generation provider.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	logger  *slog.Logger

	// Client-side request smoothing so burst traffic does not trip the
	// provider's own limits before the dispatch queue can help.
	limiter *rate.Limiter

	maxTokens int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIKey sets the API key.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) { c.apiKey = key }
}

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(url, "/") }
}

// WithModel sets the model name.
func WithModel(model string) ClientOption {
	return func(c *Client) { c.model = model }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.http = httpc.NewClient(timeout) }
}

// WithRequestsPerMinute caps outgoing generation calls.
func WithRequestsPerMinute(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(float64(n)/60.0), n)
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a new generation client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   defaultBaseURL,
		model:     "gpt-4o-mini",
		http:      httpc.Client,
		logger:    slog.Default(),
		maxTokens: 1024,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "llm.client")
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Generate produces a reply for the utterance.
func (c *Client) Generate(ctx context.Context, req *Request) (*Result, error) {
	messages := []chatMessage{
		{Role: "system", Content: req.System},
	}
	if req.Context != "" {
		messages = append(messages, chatMessage{
			Role:    "system",
			Content: "What you remember about this user: " + req.Context,
		})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Utterance})

	return c.chat(ctx, req, messages)
}

// Continue asks the model to extend a reply that came back too short.
func (c *Client) Continue(ctx context.Context, req *Request, prior string) (string, error) {
	messages := []chatMessage{
		{Role: "system", Content: req.System},
		{Role: "user", Content: req.Utterance},
		{Role: "assistant", Content: prior},
		{Role: "user", Content: "Please continue the story from exactly where you left off. Do not repeat anything."},
	}

	result, err := c.chat(ctx, req, messages)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// chat performs one chat-completions call.
func (c *Client) chat(ctx context.Context, req *Request, messages []chatMessage) (*Result, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("llm: rate wait: %w", err)
		}
	}
	start := time.Now()

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	payload := map[string]interface{}{
		"model":      c.model,
		"messages":   messages,
		"max_tokens": maxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("llm: status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("llm: decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, ErrNoChoices
	}

	latency := time.Since(start).Milliseconds()
	c.logger.Debug("generated reply",
		"model", result.Model,
		"chars", len(result.Choices[0].Message.Content),
		"latency_ms", latency,
	)

	return &Result{
		Text:      result.Choices[0].Message.Content,
		Model:     result.Model,
		LatencyMs: latency,
	}, nil
}

var _ Generator = (*Client)(nil)
