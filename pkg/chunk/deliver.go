package chunk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pippinlabs/go-pippin/pkg/dispatch"
	"github.com/pippinlabs/go-pippin/pkg/tts"
)

// ErrEmptyText is returned when there is nothing to deliver.
var ErrEmptyText = errors.New("chunk: empty text")

// Engine splits long replies and drives their synthesis through the
// dispatch queue.
type Engine struct {
	queue *dispatch.Queue
	cfg   *Config
}

// NewEngine creates a delivery engine on top of the given queue.
func NewEngine(queue *dispatch.Queue, opts ...Option) *Engine {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	return &Engine{queue: queue, cfg: cfg}
}

// Delivery is one in-progress chunked reply. Chunks settle out of order;
// consumers read them back in ordinal order via Next.
type Delivery struct {
	chunks []*Chunk
	next   int
}

// Chunks returns the ordered chunk list.
func (d *Delivery) Chunks() []*Chunk {
	return d.chunks
}

// Next blocks until the next chunk in ordinal order settles and returns it.
// Returns ErrDelivered once every chunk has been consumed. Discarded and
// failed chunks are returned too so the caller can see their status.
func (d *Delivery) Next(ctx context.Context) (*Chunk, error) {
	if d.next >= len(d.chunks) {
		return nil, ErrDelivered
	}
	c := d.chunks[d.next]
	select {
	case <-c.Done():
		d.next++
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Deliver splits text and synthesizes it progressively.
//
// Chunk 0 is generated synchronously before Deliver returns, bounding
// first-audio latency. Chunks 1..n fan out as background dispatches tied to
// ctx; cancel ctx (barge-in) and every unsettled chunk is discarded. A chunk
// whose synthesis fails permanently is replaced by a short neutral filler so
// the reply keeps its shape instead of aborting.
func (e *Engine) Deliver(ctx context.Context, sessionID, text string, profile tts.VoiceProfile) (*Delivery, error) {
	chunks := Split(text, e.cfg.MaxChunkSize, e.cfg.MinChunkSize)
	if len(chunks) == 0 {
		return nil, ErrEmptyText
	}

	e.cfg.Logger.Debug("delivering chunked reply",
		"session", sessionID,
		"chunks", len(chunks),
		"chars", len(text),
	)

	// First chunk synchronously: this is what the listener hears first.
	e.synthesizeChunk(ctx, sessionID, chunks[0], profile)

	for _, c := range chunks[1:] {
		go func(c *Chunk) {
			// Cooperative cancellation: check before submitting any work.
			if ctx.Err() != nil {
				c.settle(StatusDiscarded, nil, "")
				return
			}
			e.synthesizeChunk(ctx, sessionID, c, profile)
		}(c)
	}

	return &Delivery{chunks: chunks}, nil
}

// Single synthesizes text as one unsplit chunk, synchronously. Used for
// replies short enough that progressive delivery buys nothing.
func (e *Engine) Single(ctx context.Context, sessionID, text string, profile tts.VoiceProfile) (*Delivery, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ErrEmptyText
	}
	c := newChunk(0, trimmed, len(strings.Fields(trimmed)))
	e.synthesizeChunk(ctx, sessionID, c, profile)
	return &Delivery{chunks: []*Chunk{c}}, nil
}

// synthesizeChunk dispatches one chunk and settles it. A result that lands
// after ctx was cancelled is discarded, never published.
func (e *Engine) synthesizeChunk(ctx context.Context, sessionID string, c *Chunk, profile tts.VoiceProfile) {
	result, err := e.queue.Dispatch(ctx, dispatch.Request{
		Text:        c.Text,
		Profile:     profile,
		SessionID:   sessionID,
		DedupKey:    DedupKey(sessionID, c.Ordinal, c.Text),
		SubmittedAt: time.Now(),
	}, e.cfg.MaxRetries)

	// Check the cancellation signal before publishing: a generation that
	// finished after an interrupt must not become deliverable.
	if ctx.Err() != nil {
		c.settle(StatusDiscarded, nil, "")
		return
	}

	if err == nil {
		c.settle(StatusReady, result, "")
		return
	}

	e.cfg.Logger.Warn("chunk synthesis failed, substituting filler",
		"session", sessionID,
		"ordinal", c.Ordinal,
		"error", err,
	)

	// One filler attempt, no retries. Keeps the ordinal occupied so the
	// reply stays continuous.
	filler, ferr := e.queue.Dispatch(ctx, dispatch.Request{
		Text:        e.cfg.FillerText,
		Profile:     profile,
		SessionID:   sessionID,
		DedupKey:    DedupKey(sessionID, c.Ordinal, e.cfg.FillerText),
		SubmittedAt: time.Now(),
	}, 0)

	if ctx.Err() != nil {
		c.settle(StatusDiscarded, nil, "")
		return
	}
	if ferr != nil {
		c.settle(StatusFailed, nil, "")
		return
	}
	c.settle(StatusReady, filler, e.cfg.FillerText)
}

// DedupKey derives the duplicate-suppression key for one chunk request.
func DedupKey(sessionID string, ordinal int, text string) string {
	sum := sha256.Sum256([]byte(text))
	// 16 bytes => 32 hex chars; enough to avoid collisions in practice.
	return fmt.Sprintf("%s:%d:%s", sessionID, ordinal, hex.EncodeToString(sum[:16]))
}
