// Package safety provides the content-safety collaborator client.
// The word/phrase rules themselves live in the external checker service.
package safety

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

	"github.com/pippinlabs/go-pippin/internal/httpc"
)

// ErrNoBaseURL is returned when the service URL is missing.
var ErrNoBaseURL = errors.New("safety: base URL required")

// Decision is the checker's verdict on a piece of text.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Checker decides whether text is appropriate for a given age and category.
type Checker interface {
	Check(ctx context.Context, text string, age int, category string) (Decision, error)
}

// Client is the HTTP-backed checker.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a safety client for the given service URL.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, ErrNoBaseURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    httpc.NewClient(timeout),
	}, nil
}

// Check submits text for review.
func (c *Client) Check(ctx context.Context, text string, age int, category string) (Decision, error) {
	payload := map[string]interface{}{
		"text":     text,
		"age":      age,
		"category": category,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Decision{}, fmt.Errorf("safety: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/check", bytes.NewReader(body))
	if err != nil {
		return Decision{}, fmt.Errorf("safety: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Decision{}, fmt.Errorf("safety: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return Decision{}, fmt.Errorf("safety: status %d: %s", resp.StatusCode, string(respBody))
	}

	var decision Decision
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		return Decision{}, fmt.Errorf("safety: decode response: %w", err)
	}
	return decision, nil
}

// Mock implements Checker for testing.
type Mock struct {
	// CheckFunc is called when Check is invoked. If nil, everything is allowed.
	CheckFunc func(ctx context.Context, text string, age int, category string) (Decision, error)
}

// Check calls CheckFunc or allows everything.
func (m *Mock) Check(ctx context.Context, text string, age int, category string) (Decision, error) {
	if m.CheckFunc != nil {
		return m.CheckFunc(ctx, text, age, category)
	}
	return Decision{Allowed: true}, nil
}

// Deny returns a mock that blocks everything with the given reason.
func Deny(reason string) *Mock {
	return &Mock{
		CheckFunc: func(ctx context.Context, text string, age int, category string) (Decision, error) {
			return Decision{Allowed: false, Reason: reason}, nil
		},
	}
}

var (
	_ Checker = (*Client)(nil)
	_ Checker = (*Mock)(nil)
)
