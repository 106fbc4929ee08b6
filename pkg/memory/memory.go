// Package memory provides the conversation-memory collaborator client.
//
// The pipeline only reads from memory: it prefetches a recent-preferences
// summary for the user while speech recognition is still running. Writes
// happen elsewhere.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pippinlabs/go-pippin/internal/httpc"
)

// ErrNoBaseURL is returned when the service URL is missing.
var ErrNoBaseURL = errors.New("memory: base URL required")

// Store provides read access to a user's conversation memory.
type Store interface {
	// RecentPreferences returns a short free-text summary of the user's
	// recent preferences, suitable for inclusion in a generation prompt.
	// An empty string means no memory is available.
	RecentPreferences(ctx context.Context, userID string) (string, error)
}

// Client is the HTTP-backed store.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a memory client for the given service URL.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, ErrNoBaseURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    httpc.NewClient(timeout),
	}, nil
}

// RecentPreferences fetches the preference summary for a user.
func (c *Client) RecentPreferences(ctx context.Context, userID string) (string, error) {
	reqURL := fmt.Sprintf("%s/users/%s/preferences", c.baseURL, url.PathEscape(userID))
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("memory: create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("memory: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("memory: status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Summary string `json:"summary"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("memory: decode response: %w", err)
	}
	return result.Summary, nil
}

var _ Store = (*Client)(nil)
