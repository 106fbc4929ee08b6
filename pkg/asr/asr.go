// Package asr provides the speech-recognition client for the response pipeline.
package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pippinlabs/go-pippin/internal/httpc"
)

// ErrNoBaseURL is returned when the service URL is missing.
var ErrNoBaseURL = errors.New("asr: base URL required")

// ErrEmptyAudio is returned when Recognize is called with no audio.
var ErrEmptyAudio = errors.New("asr: empty audio")

// Recognizer converts captured audio into a transcript.
type Recognizer interface {
	// Recognize transcribes raw audio bytes. locale is a hint like "en-US".
	Recognize(ctx context.Context, audio []byte, locale string) (string, error)
}

// Client is the HTTP-backed recognizer.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIKey sets the API key.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) { c.apiKey = key }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.http = httpc.NewClient(timeout) }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a recognition client for the given service URL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, ErrNoBaseURL
	}
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    httpc.Client,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "asr.client")
	return c, nil
}

// Recognize transcribes raw audio bytes.
func (c *Client) Recognize(ctx context.Context, audio []byte, locale string) (string, error) {
	if len(audio) == 0 {
		return "", ErrEmptyAudio
	}
	start := time.Now()

	url := fmt.Sprintf("%s/recognize?locale=%s", c.baseURL, locale)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("asr: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("asr: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("asr: status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Transcript string `json:"transcript"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("asr: decode response: %w", err)
	}

	c.logger.Debug("recognized utterance",
		"bytes", len(audio),
		"chars", len(result.Transcript),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return result.Transcript, nil
}

// Mock implements Recognizer for testing.
type Mock struct {
	// RecognizeFunc is called when Recognize is invoked.
	// If nil, returns a fixed transcript.
	RecognizeFunc func(ctx context.Context, audio []byte, locale string) (string, error)
}

// Recognize calls RecognizeFunc or returns a fixed transcript.
func (m *Mock) Recognize(ctx context.Context, audio []byte, locale string) (string, error) {
	if m.RecognizeFunc != nil {
		return m.RecognizeFunc(ctx, audio, locale)
	}
	return "hello pippin", nil
}

var (
	_ Recognizer = (*Client)(nil)
	_ Recognizer = (*Mock)(nil)
)
