package chunk_test

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pippinlabs/go-pippin/pkg/chunk"
	"github.com/pippinlabs/go-pippin/pkg/dispatch"
	"github.com/pippinlabs/go-pippin/pkg/tts"
)

// story returns a ~1200 character text with regular sentence boundaries.
func story() string {
	sentence := "Once upon a time a small fox explored the quiet forest near the river. "
	return strings.Repeat(sentence, 17)
}

func newEngine(provider tts.Provider, opts ...chunk.Option) *chunk.Engine {
	queue := dispatch.New(provider,
		dispatch.WithMaxConcurrent(3),
		dispatch.WithRateLimit(100, time.Minute),
	)
	return chunk.NewEngine(queue, opts...)
}

func TestDeliverFirstChunkBeforeRest(t *testing.T) {
	// Background chunks are slow; chunk 0 must still return promptly.
	var calls int32
	mock := &tts.Mock{
		SynthesizeFunc: func(ctx context.Context, text string, profile tts.VoiceProfile) (*tts.AudioResult, error) {
			if atomic.AddInt32(&calls, 1) > 1 {
				select {
				case <-time.After(80 * time.Millisecond):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			return &tts.AudioResult{Audio: []byte(text)}, nil
		},
	}
	engine := newEngine(mock, chunk.WithChunkSize(300, 60))

	delivery, err := engine.Deliver(context.Background(), "s1", story(), tts.DefaultVoiceProfile())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	chunks := delivery.Chunks()
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks for a 1200-char story, got %d", len(chunks))
	}
	if chunks[0].Status() != chunk.StatusReady {
		t.Errorf("chunk 0 should be ready on return, got %v", chunks[0].Status())
	}
	// The later chunks are still in flight at this point.
	pending := 0
	for _, c := range chunks[1:] {
		if c.Status() == chunk.StatusPending {
			pending++
		}
	}
	if pending == 0 {
		t.Error("expected background chunks to still be pending right after Deliver returned")
	}
}

func TestDeliverOrdinalOrder(t *testing.T) {
	// Even chunks complete fast, odd chunks slowly: completion order is
	// scrambled but Next must yield ordinal order.
	mock := &tts.Mock{
		SynthesizeFunc: func(ctx context.Context, text string, profile tts.VoiceProfile) (*tts.AudioResult, error) {
			if len(text)%2 == 1 {
				time.Sleep(20 * time.Millisecond)
			}
			return &tts.AudioResult{Audio: []byte(text)}, nil
		},
	}
	engine := newEngine(mock, chunk.WithChunkSize(120, 30))

	delivery, err := engine.Deliver(context.Background(), "s1", story(), tts.DefaultVoiceProfile())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	want := 0
	for {
		c, err := delivery.Next(ctx)
		if err == chunk.ErrDelivered {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.Ordinal != want {
			t.Fatalf("out of order: got ordinal %d, want %d", c.Ordinal, want)
		}
		if c.Status() != chunk.StatusReady {
			t.Errorf("chunk %d not ready: %v", c.Ordinal, c.Status())
		}
		want++
	}
	if want != len(delivery.Chunks()) {
		t.Errorf("consumed %d chunks, want %d", want, len(delivery.Chunks()))
	}
}

func TestDeliverDiscardsAfterCancel(t *testing.T) {
	release := make(chan struct{})
	mock := &tts.Mock{
		SynthesizeFunc: func(ctx context.Context, text string, profile tts.VoiceProfile) (*tts.AudioResult, error) {
			select {
			case <-release:
				return &tts.AudioResult{Audio: []byte(text)}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
	engine := newEngine(mock, chunk.WithChunkSize(120, 30))

	ctx, cancel := context.WithCancel(context.Background())
	close(release) // Chunk 0 completes immediately.

	delivery, err := engine.Deliver(ctx, "s1", story(), tts.DefaultVoiceProfile())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Barge-in: cancel while background chunks are generating.
	cancel()

	deadline := time.After(2 * time.Second)
	for _, c := range delivery.Chunks()[1:] {
		select {
		case <-c.Done():
		case <-deadline:
			t.Fatal("chunks did not settle after cancel")
		}
		if s := c.Status(); s != chunk.StatusDiscarded && s != chunk.StatusReady {
			t.Errorf("chunk %d: unexpected status %v", c.Ordinal, s)
		}
		if s := c.Status(); s == chunk.StatusDiscarded && c.Audio() != nil {
			t.Errorf("discarded chunk %d still exposes audio", c.Ordinal)
		}
	}
}

func TestDeliverLateCompletionIsDiscarded(t *testing.T) {
	// The generation completes only after the interrupt; its result must be
	// discarded, not published.
	started := make(chan struct{}, 8)
	finish := make(chan struct{})
	mock := &tts.Mock{
		SynthesizeFunc: func(ctx context.Context, text string, profile tts.VoiceProfile) (*tts.AudioResult, error) {
			select {
			case started <- struct{}{}:
			default:
			}
			<-finish // Deliberately ignores ctx: simulates an uncancellable call.
			return &tts.AudioResult{Audio: []byte(text)}, nil
		},
	}

	text := "First sentence of the tale. Second sentence of the tale. Third sentence of the tale."
	ctx, cancel := context.WithCancel(context.Background())

	engine := newEngine(mock, chunk.WithChunkSize(40, 10))
	done := make(chan *chunk.Delivery, 1)
	go func() {
		d, err := engine.Deliver(ctx, "s1", text, tts.DefaultVoiceProfile())
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		done <- d
	}()

	<-started // Chunk 0 synthesis is in flight.
	cancel()  // Interrupt fires first...
	close(finish)

	delivery := <-done
	first := delivery.Chunks()[0]
	<-first.Done()
	if first.Status() != chunk.StatusDiscarded {
		t.Errorf("late completion should be discarded, got %v", first.Status())
	}
	if first.Audio() != nil {
		t.Error("discarded chunk must not expose audio")
	}
}

func TestDeliverFillerOnPermanentFailure(t *testing.T) {
	var calls int32
	mock := &tts.Mock{
		SynthesizeFunc: func(ctx context.Context, text string, profile tts.VoiceProfile) (*tts.AudioResult, error) {
			// Fail the real chunk text permanently; succeed for filler.
			if atomic.AddInt32(&calls, 1) <= 2 {
				return nil, &tts.APIError{StatusCode: 400, Message: "rejected", Provider: "mock"}
			}
			return &tts.AudioResult{Audio: []byte(text)}, nil
		},
	}
	engine := newEngine(mock, chunk.WithFillerText("Let me think."))

	delivery, err := engine.Deliver(context.Background(), "s1", "Only one short sentence here.", tts.DefaultVoiceProfile())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c := delivery.Chunks()[0]
	if c.Status() != chunk.StatusReady {
		t.Fatalf("expected filler-backed ready chunk, got %v", c.Status())
	}
	if c.Text != "Let me think." {
		t.Errorf("expected filler text, got %q", c.Text)
	}
	if string(c.Audio().Audio) != "Let me think." {
		t.Error("expected filler audio")
	}
}

func TestDedupKeyStable(t *testing.T) {
	a := chunk.DedupKey("s1", 2, "hello")
	b := chunk.DedupKey("s1", 2, "hello")
	if a != b {
		t.Error("identical inputs must produce identical keys")
	}
	if a == chunk.DedupKey("s1", 3, "hello") {
		t.Error("different ordinals must produce different keys")
	}
	if a == chunk.DedupKey("s2", 2, "hello") {
		t.Error("different sessions must produce different keys")
	}
}
