package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pippinlabs/go-pippin/internal/httpc"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io/v1"
	providerHTTP   = "elevenlabs"

	outputSampleRate = 24000
)

// HTTP implements Provider against the ElevenLabs synthesis API.
//
// Retries are intentionally not handled here: the dispatch queue owns the
// backoff schedule, so a rate-limit response surfaces as an *APIError.
type HTTP struct {
	config  *Config
	client  *http.Client
	logger  *slog.Logger
	baseURL string

	// Pre-warmed streaming connections keyed by voice ID.
	warmMu sync.Mutex
	warm   map[string]*websocket.Conn
}

// NewHTTP creates a new HTTP-backed synthesis provider.
func NewHTTP(opts ...Option) (*HTTP, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &HTTP{
		config:  cfg,
		client:  httpc.NewClient(cfg.Timeout),
		logger:  cfg.Logger.With("component", "tts.http"),
		baseURL: strings.TrimSuffix(baseURL, "/"),
		warm:    make(map[string]*websocket.Conn),
	}, nil
}

// Synthesize converts text to audio, returning the complete audio buffer.
func (h *HTTP) Synthesize(ctx context.Context, text string, profile VoiceProfile) (*AudioResult, error) {
	start := time.Now()

	voice := profile.VoiceID
	if voice == "" {
		voice = h.config.DefaultVoice.VoiceID
	}
	if voice == "" {
		return nil, ErrNoVoiceID
	}

	payload := map[string]interface{}{
		"text": text,
		"voice_settings": map[string]interface{}{
			"stability":        profile.Stability,
			"similarity_boost": profile.SimilarityBoost,
			"speed":            profile.Speed,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(providerHTTP, fmt.Errorf("marshal payload: %w", err))
	}

	url := fmt.Sprintf("%s/text-to-speech/%s", h.baseURL, voice)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(providerHTTP, fmt.Errorf("create request: %w", err))
	}
	h.setHeaders(req)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, WrapError(providerHTTP, fmt.Errorf("synthesis request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, h.parseError(resp)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(providerHTTP, fmt.Errorf("read response: %w", err))
	}

	latency := time.Since(start).Milliseconds()
	h.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency,
		"voice", voice,
	)

	return &AudioResult{
		Audio:      audio,
		SampleRate: outputSampleRate,
		CharCount:  len(text),
		LatencyMs:  latency,
		Duration:   estimateDuration(len(audio)),
	}, nil
}

// Prewarm opens the streaming websocket for the profile's voice so the first
// chunk of a long reply does not pay the connection setup cost.
func (h *HTTP) Prewarm(ctx context.Context, profile VoiceProfile) error {
	voice := profile.VoiceID
	if voice == "" {
		voice = h.config.DefaultVoice.VoiceID
	}
	if voice == "" {
		return ErrNoVoiceID
	}

	h.warmMu.Lock()
	_, exists := h.warm[voice]
	h.warmMu.Unlock()
	if exists {
		return nil
	}

	wsURL := strings.Replace(h.baseURL, "https://", "wss://", 1)
	url := fmt.Sprintf("%s/text-to-speech/%s/stream-input?output_format=pcm_24000", wsURL, voice)

	headers := http.Header{}
	headers.Set("xi-api-key", h.config.APIKey)

	dialer := websocket.Dialer{HandshakeTimeout: h.config.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, url, headers)
	if err != nil {
		if resp != nil {
			return WrapError(providerHTTP, fmt.Errorf("prewarm dial (status %d): %w", resp.StatusCode, err))
		}
		return WrapError(providerHTTP, fmt.Errorf("prewarm dial: %w", err))
	}

	h.warmMu.Lock()
	if _, exists := h.warm[voice]; exists {
		// Lost the race with a concurrent Prewarm for the same voice.
		h.warmMu.Unlock()
		conn.Close()
		return nil
	}
	h.warm[voice] = conn
	h.warmMu.Unlock()

	h.logger.Debug("prewarmed synthesis connection", "voice", voice)
	return nil
}

// Health checks API connectivity and API key validity.
func (h *HTTP) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", h.baseURL+"/user", nil)
	if err != nil {
		return WrapError(providerHTTP, err)
	}
	req.Header.Set("xi-api-key", h.config.APIKey)

	resp, err := h.client.Do(req)
	if err != nil {
		return WrapError(providerHTTP, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return h.parseError(resp)
	}
	return nil
}

// Close releases resources held by the provider.
func (h *HTTP) Close() error {
	h.warmMu.Lock()
	for voice, conn := range h.warm {
		conn.Close()
		delete(h.warm, voice)
	}
	h.warmMu.Unlock()

	h.client.CloseIdleConnections()
	return nil
}

// setHeaders sets required HTTP headers.
func (h *HTTP) setHeaders(req *http.Request) {
	req.Header.Set("xi-api-key", h.config.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/pcm")
}

// parseError reads and parses an error response.
func (h *HTTP) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Detail struct {
			Message string `json:"message"`
		} `json:"detail"`
	}

	message := string(body)
	if json.Unmarshal(body, &errResp) == nil && errResp.Detail.Message != "" {
		message = errResp.Detail.Message
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Provider:   providerHTTP,
	}
}

// estimateDuration estimates audio duration from byte count (PCM16 mono).
func estimateDuration(byteCount int) time.Duration {
	samples := byteCount / 2
	seconds := float64(samples) / float64(outputSampleRate)
	return time.Duration(seconds * float64(time.Second))
}

// Verify HTTP implements Provider at compile time.
var _ Provider = (*HTTP)(nil)
