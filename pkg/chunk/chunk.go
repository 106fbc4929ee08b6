// Package chunk provides sentence-aware chunking and progressive delivery of
// long replies.
//
// Long text is split on sentence boundaries into ordered chunks. The first
// chunk is synthesized synchronously so the listener hears audio quickly; the
// rest fan out through the dispatch queue and are reassembled in ordinal
// order regardless of completion order.
package chunk

import (
	"errors"
	"sync"

	"github.com/pippinlabs/go-pippin/pkg/tts"
)

// Status is the lifecycle state of one chunk.
type Status int

const (
	// StatusPending means synthesis has not completed yet.
	StatusPending Status = iota

	// StatusReady means audio is available for playback.
	StatusReady

	// StatusFailed means synthesis failed permanently, even for the filler.
	StatusFailed

	// StatusDiscarded means the run was interrupted before this chunk could
	// be delivered; its audio must never be played.
	StatusDiscarded
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	case StatusDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// ErrDelivered is returned by Next once every chunk has been consumed.
var ErrDelivered = errors.New("chunk: delivery complete")

// Chunk is a bounded, sentence-aligned slice of a reply.
type Chunk struct {
	// Ordinal is the chunk's position in the reply, starting at 0.
	// Playback order is ordinal order.
	Ordinal int

	// Text is the chunk's text. May be replaced by filler text if the
	// original synthesis failed permanently.
	Text string

	// WordCount is the number of words in Text.
	WordCount int

	mu     sync.Mutex
	status Status
	audio  *tts.AudioResult

	// done is closed once the chunk settles (ready, failed, or discarded).
	done chan struct{}
}

func newChunk(ordinal int, text string, words int) *Chunk {
	return &Chunk{
		Ordinal:   ordinal,
		Text:      text,
		WordCount: words,
		done:      make(chan struct{}),
	}
}

// Status returns the chunk's current state.
func (c *Chunk) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Audio returns the synthesized audio, or nil if the chunk is not Ready.
func (c *Chunk) Audio() *tts.AudioResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusReady {
		return nil
	}
	return c.audio
}

// settle records the chunk's final state. The first settle wins; a chunk that
// was discarded stays discarded even if its synthesis completes afterward.
func (c *Chunk) settle(status Status, audio *tts.AudioResult, text string) bool {
	c.mu.Lock()
	if c.status != StatusPending {
		c.mu.Unlock()
		return false
	}
	c.status = status
	c.audio = audio
	if text != "" {
		c.Text = text
	}
	c.mu.Unlock()
	close(c.done)
	return true
}

// Done returns a channel closed when the chunk settles.
func (c *Chunk) Done() <-chan struct{} {
	return c.done
}
