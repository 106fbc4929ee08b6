package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pippinlabs/go-pippin/pkg/asr"
	"github.com/pippinlabs/go-pippin/pkg/chunk"
	"github.com/pippinlabs/go-pippin/pkg/dispatch"
	"github.com/pippinlabs/go-pippin/pkg/llm"
	"github.com/pippinlabs/go-pippin/pkg/memory"
	"github.com/pippinlabs/go-pippin/pkg/pipeline"
	"github.com/pippinlabs/go-pippin/pkg/safety"
	"github.com/pippinlabs/go-pippin/pkg/session"
	"github.com/pippinlabs/go-pippin/pkg/tts"
)

// longReply returns a ~2000 character, 340 word story.
func longReply() string {
	sentence := "The little fox trotted along the mossy path and waved at every friendly bird. "
	return strings.TrimSpace(strings.Repeat(sentence, 25))
}

// recorder collects published events for assertions.
type recorder struct {
	mu     sync.Mutex
	events []pipeline.Event
}

func (r *recorder) Publish(e pipeline.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *recorder) has(eventType string) bool {
	for _, t := range r.types() {
		if t == eventType {
			return true
		}
	}
	return false
}

type fixture struct {
	deps pipeline.Deps
	tts  *tts.Mock
}

func newFixture() *fixture {
	synth := tts.NewMock()
	return &fixture{
		deps: pipeline.Deps{
			Recognizer: &asr.Mock{},
			Generator:  &llm.Mock{GenerateFunc: generateLong},
			Checker:    &safety.Mock{},
			Store:      memory.NewStub(),
			Synth:      synth,
			Queue: dispatch.New(synth,
				dispatch.WithMaxConcurrent(3),
				dispatch.WithRateLimit(100, time.Minute),
			),
		},
		tts: synth,
	}
}

func generateLong(ctx context.Context, req *llm.Request) (*llm.Result, error) {
	return &llm.Result{Text: longReply(), Model: "mock"}, nil
}

func newCoordinator(t *testing.T, f *fixture, opts ...pipeline.Option) *pipeline.Coordinator {
	t.Helper()
	c, err := pipeline.New(f.deps, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

// waitForState polls until the session reaches the wanted state.
func waitForState(t *testing.T, c *pipeline.Coordinator, sessionID string, want session.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := c.Sessions().Get(sessionID); s != nil && s.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	if s := c.Sessions().Get(sessionID); s != nil {
		t.Fatalf("session never reached %v, stuck at %v", want, s.State())
	}
	t.Fatalf("session never created")
}

func TestProcessUtteranceHappyPath(t *testing.T) {
	f := newFixture()
	events := &recorder{}
	c := newCoordinator(t, f, pipeline.WithEvents(events))

	resp, err := c.ProcessUtterance(context.Background(), "s1", []byte("audio"), tts.DefaultVoiceProfile())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Admission != session.Proceed {
		t.Errorf("expected Proceed, got %v", resp.Admission)
	}
	if resp.Transcript != "hello pippin" {
		t.Errorf("unexpected transcript %q", resp.Transcript)
	}
	if resp.Fallback {
		t.Error("happy path must not be a fallback")
	}
	if len(resp.Chunks()) < 2 {
		t.Fatalf("a 2000-char reply should be chunked, got %d chunks", len(resp.Chunks()))
	}
	if resp.Chunks()[0].Status() != chunk.StatusReady {
		t.Errorf("chunk 0 should be ready on return, got %v", resp.Chunks()[0].Status())
	}
	if resp.Timings.Total == 0 || resp.Timings.Recognize == 0 {
		t.Error("expected stage timings recorded")
	}

	waitForState(t, c, "s1", session.StateIdle)
	if !events.has(pipeline.EventSpeaking) || !events.has(pipeline.EventCompleted) {
		t.Errorf("missing lifecycle events, got %v", events.types())
	}
}

func TestProcessUtteranceShortReplySingleChunk(t *testing.T) {
	f := newFixture()
	// Generator returns a short answer; the continuation pads it but it
	// stays under the chunk threshold.
	f.deps.Generator = &llm.Mock{
		GenerateFunc: func(ctx context.Context, req *llm.Request) (*llm.Result, error) {
			return &llm.Result{Text: "Foxes say yip!", Model: "mock"}, nil
		},
	}
	c := newCoordinator(t, f)

	resp, err := c.ProcessUtterance(context.Background(), "s1", []byte("audio"), tts.DefaultVoiceProfile())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(resp.Chunks()); got != 1 {
		t.Fatalf("short reply should be a single chunk, got %d", got)
	}
	if resp.Chunks()[0].Status() != chunk.StatusReady {
		t.Errorf("chunk not ready: %v", resp.Chunks()[0].Status())
	}
	waitForState(t, c, "s1", session.StateIdle)
}

func TestProcessUtteranceContinuesShortGeneration(t *testing.T) {
	f := newFixture()
	var continued bool
	f.deps.Generator = &llm.Mock{
		GenerateFunc: func(ctx context.Context, req *llm.Request) (*llm.Result, error) {
			return &llm.Result{Text: "A very short story.", Model: "mock"}, nil
		},
		ContinueFunc: func(ctx context.Context, req *llm.Request, prior string) (string, error) {
			continued = true
			return "It grew a little longer.", nil
		},
	}
	c := newCoordinator(t, f)

	resp, err := c.ProcessUtterance(context.Background(), "s1", []byte("audio"), tts.DefaultVoiceProfile())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !continued {
		t.Error("expected a continuation call for a reply under the minimum length")
	}
	if !strings.Contains(resp.Text, "It grew a little longer.") {
		t.Errorf("continuation not appended: %q", resp.Text)
	}
}

func TestProcessUtteranceRecognitionFallback(t *testing.T) {
	f := newFixture()
	f.deps.Recognizer = &asr.Mock{
		RecognizeFunc: func(ctx context.Context, audio []byte, locale string) (string, error) {
			return "", errors.New("asr down")
		},
	}
	c := newCoordinator(t, f)

	resp, err := c.ProcessUtterance(context.Background(), "s1", []byte("audio"), tts.DefaultVoiceProfile())
	if err != nil {
		t.Fatalf("service failure must not surface as error: %v", err)
	}
	if !resp.Fallback {
		t.Error("expected fallback response")
	}
	if resp.Transcript != "" {
		t.Errorf("expected empty transcript, got %q", resp.Transcript)
	}
	// The apology is still spoken.
	if len(resp.Chunks()) != 1 || resp.Chunks()[0].Status() != chunk.StatusReady {
		t.Error("expected a spoken fallback chunk")
	}
	waitForState(t, c, "s1", session.StateIdle)
}

func TestProcessUtteranceSafetyRedirect(t *testing.T) {
	f := newFixture()
	f.deps.Checker = safety.Deny("blocked topic")
	c := newCoordinator(t, f)

	resp, err := c.ProcessUtterance(context.Background(), "s1", []byte("audio"), tts.DefaultVoiceProfile())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Fallback {
		t.Error("redirect should be marked as fallback")
	}
	if !strings.Contains(resp.Text, "something else") {
		t.Errorf("expected redirect text, got %q", resp.Text)
	}
}

func TestProcessUtteranceGenerationFallback(t *testing.T) {
	f := newFixture()
	f.deps.Generator = &llm.Mock{
		GenerateFunc: func(ctx context.Context, req *llm.Request) (*llm.Result, error) {
			return nil, errors.New("llm down")
		},
	}
	c := newCoordinator(t, f)

	resp, err := c.ProcessUtterance(context.Background(), "s1", []byte("audio"), tts.DefaultVoiceProfile())
	if err != nil {
		t.Fatalf("service failure must not surface as error: %v", err)
	}
	if !resp.Fallback {
		t.Error("expected fallback response")
	}
	waitForState(t, c, "s1", session.StateIdle)
}

func TestProcessUtteranceAdmissionSoftMessages(t *testing.T) {
	f := newFixture()
	c := newCoordinator(t, f, pipeline.WithAdmission(session.AdmissionConfig{
		MaxPerHour:   1,
		LockDuration: time.Minute,
	}))

	ctx := context.Background()
	profile := tts.DefaultVoiceProfile()

	if resp, _ := c.ProcessUtterance(ctx, "s1", []byte("a"), profile); resp.Admission != session.Proceed {
		t.Fatalf("first utterance should proceed, got %v", resp.Admission)
	}
	waitForState(t, c, "s1", session.StateIdle)

	resp, err := c.ProcessUtterance(ctx, "s1", []byte("a"), profile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Admission != session.RateLimited {
		t.Fatalf("expected RateLimited, got %v", resp.Admission)
	}
	if resp.Delivery != nil {
		t.Error("rate-limited reply should not be synthesized")
	}
	if resp.Text == "" {
		t.Error("expected a soft message")
	}

	resp, _ = c.ProcessUtterance(ctx, "s1", []byte("a"), profile)
	if resp.Admission != session.MicLocked {
		t.Fatalf("expected MicLocked during the lock, got %v", resp.Admission)
	}
}

func TestInterruptDiscardsBackgroundChunks(t *testing.T) {
	// A barge-in fires while background chunks are generating: undelivered
	// chunks are discarded and the session comes back idle.
	release := make(chan struct{})
	var calls int32
	var mu sync.Mutex
	synth := &tts.Mock{
		SynthesizeFunc: func(ctx context.Context, text string, profile tts.VoiceProfile) (*tts.AudioResult, error) {
			mu.Lock()
			calls++
			first := calls == 1
			mu.Unlock()
			if first {
				return &tts.AudioResult{Audio: []byte(text)}, nil
			}
			select {
			case <-release:
				return &tts.AudioResult{Audio: []byte(text)}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
	f := newFixture()
	f.deps.Synth = synth
	f.deps.Queue = dispatch.New(synth,
		dispatch.WithMaxConcurrent(5),
		dispatch.WithRateLimit(100, time.Minute),
	)
	events := &recorder{}
	c := newCoordinator(t, f, pipeline.WithEvents(events))

	resp, err := c.ProcessUtterance(context.Background(), "s1", []byte("audio"), tts.DefaultVoiceProfile())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Chunks()) < 3 {
		t.Fatalf("need several background chunks for this test, got %d", len(resp.Chunks()))
	}

	if !c.Interrupt("s1") {
		t.Fatal("expected interrupt to take effect while speaking")
	}
	close(release)

	deadline := time.After(2 * time.Second)
	for _, ch := range resp.Chunks()[1:] {
		select {
		case <-ch.Done():
		case <-deadline:
			t.Fatal("chunks did not settle after interrupt")
		}
		if ch.Status() == chunk.StatusReady {
			t.Errorf("chunk %d delivered after interrupt", ch.Ordinal)
		}
	}

	waitForState(t, c, "s1", session.StateIdle)
	if !events.has(pipeline.EventInterrupted) {
		t.Errorf("missing interrupted event, got %v", events.types())
	}
	if events.has(pipeline.EventCompleted) {
		t.Error("an interrupted run must not publish completion")
	}
}

func TestInterruptWithoutSpeakingIsNoop(t *testing.T) {
	f := newFixture()
	c := newCoordinator(t, f)

	if c.Interrupt("ghost") {
		t.Error("interrupting an unknown session should be a no-op")
	}
}

func TestEndSessionRemoves(t *testing.T) {
	f := newFixture()
	c := newCoordinator(t, f)

	if _, err := c.ProcessUtterance(context.Background(), "s1", []byte("audio"), tts.DefaultVoiceProfile()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.EndSession("s1")
	if c.Sessions().Get("s1") != nil {
		t.Error("expected session removed")
	}
}

func TestProcessUtteranceEmptyAudio(t *testing.T) {
	f := newFixture()
	c := newCoordinator(t, f)

	if _, err := c.ProcessUtterance(context.Background(), "s1", nil, tts.DefaultVoiceProfile()); !errors.Is(err, pipeline.ErrEmptyAudio) {
		t.Fatalf("expected ErrEmptyAudio, got %v", err)
	}
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	if _, err := pipeline.New(pipeline.Deps{}); !errors.Is(err, pipeline.ErrMissingDependency) {
		t.Fatalf("expected ErrMissingDependency, got %v", err)
	}
}
