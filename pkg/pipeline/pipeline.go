// Package pipeline sequences one utterance through recognition, safety,
// generation, shaping, and synthesis, overlapping independent stages to hide
// latency.
//
// Every stage is guarded by a timeout from the active latency profile and
// degrades to a bounded fallback instead of blocking or surfacing a raw
// error. The caller always receives a well-formed Response.
package pipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pippinlabs/go-pippin/pkg/asr"
	"github.com/pippinlabs/go-pippin/pkg/chunk"
	"github.com/pippinlabs/go-pippin/pkg/dispatch"
	"github.com/pippinlabs/go-pippin/pkg/llm"
	"github.com/pippinlabs/go-pippin/pkg/memory"
	"github.com/pippinlabs/go-pippin/pkg/safety"
	"github.com/pippinlabs/go-pippin/pkg/session"
	"github.com/pippinlabs/go-pippin/pkg/tts"
)

// Errors returned for caller misuse; service failures never surface as errors.
var (
	ErrMissingDependency = errors.New("pipeline: missing dependency")
	ErrEmptyAudio        = errors.New("pipeline: empty audio")
)

// Deps are the collaborators a coordinator drives.
type Deps struct {
	Recognizer asr.Recognizer
	Generator  llm.Generator
	Checker    safety.Checker
	Store      memory.Store
	Synth      tts.Provider
	Queue      *dispatch.Queue
}

func (d Deps) validate() error {
	if d.Recognizer == nil || d.Generator == nil || d.Checker == nil ||
		d.Store == nil || d.Synth == nil || d.Queue == nil {
		return ErrMissingDependency
	}
	return nil
}

// Coordinator drives the response pipeline for every session.
type Coordinator struct {
	cfg *Config
	set Settings

	deps   Deps
	engine *chunk.Engine

	registry   *session.Registry
	interrupts *session.Manager
	admission  *session.Admission
	metrics    *Collector
}

// New creates a coordinator over the given collaborators.
func New(deps Deps, opts ...Option) (*Coordinator, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	set := cfg.Profile.Settings()

	return &Coordinator{
		cfg:  cfg,
		set:  set,
		deps: deps,
		engine: chunk.NewEngine(deps.Queue,
			chunk.WithChunkSize(set.MaxChunkSize, set.MinChunkSize),
			chunk.WithMaxRetries(set.MaxRetries),
			chunk.WithLogger(cfg.Logger),
		),
		registry:   session.NewRegistry(),
		interrupts: session.NewManager(cfg.Logger),
		admission:  session.NewAdmission(cfg.Admission, cfg.Logger),
		metrics:    NewCollector(),
	}, nil
}

// Response is the outcome of one utterance.
type Response struct {
	// RunID identifies this pipeline run.
	RunID string

	// SessionID is the session the run belongs to.
	SessionID string

	// Admission is the admission verdict. Anything but Proceed means the
	// utterance was answered with a soft message instead of a full reply.
	Admission session.Decision

	// Transcript is the recognized utterance. Empty on admission denial or
	// recognition failure.
	Transcript string

	// Text is the reply text (or the canned text on a degraded path).
	Text string

	// Delivery holds the reply's chunks in ordinal order, chunk 0 already
	// settled. Nil when nothing was synthesized.
	Delivery *chunk.Delivery

	// Fallback reports that a degraded path produced this response.
	Fallback bool

	// Timings are this run's per-stage durations.
	Timings Timings
}

// Chunks returns the delivery's chunk list, or nil.
func (r *Response) Chunks() []*chunk.Chunk {
	if r.Delivery == nil {
		return nil
	}
	return r.Delivery.Chunks()
}

// Sessions exposes the coordinator's session registry.
func (c *Coordinator) Sessions() *session.Registry {
	return c.registry
}

// Metrics returns average stage timings over recent runs.
func (c *Coordinator) Metrics() Timings {
	return c.metrics.Average()
}

// ProcessUtterance turns one captured utterance into a spoken reply.
//
// Chunk 0 of the delivery is settled when this returns; longer replies keep
// generating in the background, readable in ordinal order via
// Response.Delivery. Service failures degrade to canned replies and never
// surface as errors.
func (c *Coordinator) ProcessUtterance(ctx context.Context, sessionID string, audio []byte, profile tts.VoiceProfile) (resp *Response, err error) {
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	s := c.registry.GetOrCreate(sessionID)
	t := startTimer()
	resp = &Response{
		RunID:     uuid.NewString(),
		SessionID: sessionID,
		Admission: session.Proceed,
	}

	// Unexpected failures become a single generic reply; the session always
	// comes back idle.
	defer func() {
		if r := recover(); r != nil {
			c.cfg.Logger.Error("pipeline run panicked",
				"session", sessionID, "run", resp.RunID, "panic", r)
			c.interrupts.Clear(s)
			resp.Text = c.cfg.FallbackText
			resp.Fallback = true
			resp.Delivery = nil
			resp.Timings.Total = t.sinceStart()
			err = nil
		}
	}()

	switch d := c.admission.Check(s); d {
	case session.MicLocked:
		resp.Admission = d
		resp.Text = c.cfg.MicLockedText
		resp.Timings.Total = t.sinceStart()
		return resp, nil
	case session.RateLimited:
		resp.Admission = d
		resp.Text = c.cfg.RateLimitedText
		resp.Timings.Total = t.sinceStart()
		return resp, nil
	case session.BreakSuggested:
		// The nudge is spoken in place of a reply.
		resp.Admission = d
		return c.speak(ctx, t, s, resp, c.cfg.BreakText, profile, true)
	}

	// Memory prefetch only needs the session id, so it starts before
	// recognition finishes.
	var contextSummary string
	g := new(errgroup.Group)
	g.Go(func() error {
		done := t.stage(&resp.Timings.Memory)
		defer done()
		mctx, cancel := context.WithTimeout(ctx, c.set.MemoryTimeout)
		defer cancel()
		summary, merr := c.deps.Store.RecentPreferences(mctx, sessionID)
		if merr != nil {
			c.cfg.Logger.Debug("memory prefetch failed, continuing without context",
				"session", sessionID, "error", merr)
			return nil
		}
		contextSummary = summary
		return nil
	})

	transcript, rerr := c.recognize(ctx, t, resp, audio)
	if rerr != nil || transcript == "" {
		_ = g.Wait()
		c.cfg.Logger.Warn("recognition failed", "session", sessionID, "error", rerr)
		return c.speak(ctx, t, s, resp, c.cfg.UnheardText, profile, true)
	}
	resp.Transcript = transcript

	allowed := true
	g.Go(func() error {
		done := t.stage(&resp.Timings.Safety)
		defer done()
		sctx, cancel := context.WithTimeout(ctx, c.set.SafetyTimeout)
		defer cancel()
		decision, serr := c.deps.Checker.Check(sctx, transcript, c.cfg.ChildAge, c.cfg.Category)
		if serr != nil {
			// Checker outage must not mute the companion; the generator's
			// own instructions remain the backstop.
			c.cfg.Logger.Warn("safety check failed, proceeding",
				"session", sessionID, "error", serr)
			return nil
		}
		if !decision.Allowed {
			c.cfg.Logger.Info("utterance redirected",
				"session", sessionID, "reason", decision.Reason)
			allowed = false
		}
		return nil
	})
	_ = g.Wait()

	if !allowed {
		return c.speak(ctx, t, s, resp, c.cfg.RedirectText, profile, true)
	}

	text, gerr := c.generate(ctx, t, resp, transcript, contextSummary, profile)
	if gerr != nil {
		c.cfg.Logger.Warn("generation failed", "session", sessionID, "error", gerr)
		return c.speak(ctx, t, s, resp, c.cfg.FallbackText, profile, true)
	}

	return c.speak(ctx, t, s, resp, text, profile, false)
}

// recognize runs speech recognition under its stage timeout.
func (c *Coordinator) recognize(ctx context.Context, t *timer, resp *Response, audio []byte) (string, error) {
	done := t.stage(&resp.Timings.Recognize)
	defer done()
	rctx, cancel := context.WithTimeout(ctx, c.set.RecognizeTimeout)
	defer cancel()
	return c.deps.Recognizer.Recognize(rctx, audio, c.cfg.Locale)
}

// generate produces the reply text, pre-warming the synthesis connection in
// parallel since pre-warming only needs the voice profile. A reply under the
// minimum length gets one continuation call.
func (c *Coordinator) generate(ctx context.Context, t *timer, resp *Response, transcript, contextSummary string, profile tts.VoiceProfile) (string, error) {
	done := t.stage(&resp.Timings.Generate)
	defer done()

	go func() {
		pctx, cancel := context.WithTimeout(ctx, c.set.PrewarmTimeout)
		defer cancel()
		if perr := c.deps.Synth.Prewarm(pctx, profile); perr != nil {
			c.cfg.Logger.Debug("synthesis prewarm failed", "error", perr)
		}
	}()

	gctx, cancel := context.WithTimeout(ctx, c.set.GenerateTimeout)
	defer cancel()

	req := &llm.Request{
		System:    c.cfg.SystemPrompt,
		Utterance: transcript,
		Context:   contextSummary,
	}
	result, err := c.deps.Generator.Generate(gctx, req)
	if err != nil {
		return "", err
	}

	text := c.cfg.Shaper(result.Text)
	if c.set.MinWords > 0 && len(strings.Fields(text)) < c.set.MinWords {
		more, cerr := c.deps.Generator.Continue(gctx, req, text)
		if cerr != nil {
			c.cfg.Logger.Debug("continuation failed, keeping short reply", "error", cerr)
			return text, nil
		}
		text = c.cfg.Shaper(text + " " + more)
	}
	return text, nil
}

// speak synthesizes text and hands the delivery to the caller, transitioning
// the session through the speaking state machine.
func (c *Coordinator) speak(ctx context.Context, t *timer, s *session.Session, resp *Response, text string, profile tts.VoiceProfile, fallback bool) (*Response, error) {
	resp.Text = text
	resp.Fallback = fallback

	runCtx, cancel := context.WithCancel(ctx)

	// Speaking is entered before synthesis starts so a barge-in during
	// chunk 0 already finds a cancellable run.
	gen := c.interrupts.BeginSpeaking(s)
	taskID := s.Track(cancel)
	c.publish(EventSpeaking, s.ID, resp.RunID, 0, "")

	var delivery *chunk.Delivery
	var err error
	if len(text) > c.set.ChunkThreshold {
		delivery, err = c.engine.Deliver(runCtx, s.ID, text, profile)
	} else {
		delivery, err = c.engine.Single(runCtx, s.ID, text, profile)
	}
	if err != nil {
		// Nothing to speak; return the text-only response.
		s.Untrack(taskID)
		cancel()
		c.interrupts.Finish(s, gen)
		resp.Timings.Total = t.sinceStart()
		return resp, nil
	}

	resp.Delivery = delivery
	resp.Timings.FirstAudio = t.sinceStart()

	go c.watchCompletion(s, delivery, resp.RunID, taskID, gen, cancel)

	if fallback {
		c.publish(EventFallback, s.ID, resp.RunID, 0, "")
	}
	resp.Timings.Total = t.sinceStart()
	c.metrics.Record(resp.Timings)
	c.cfg.Logger.Info("utterance processed",
		"session", s.ID,
		"run", resp.RunID,
		"chunks", len(delivery.Chunks()),
		"fallback", fallback,
		"latency", resp.Timings.FormatLatency(),
	)
	return resp, nil
}

// watchCompletion waits for every chunk to settle, publishes readiness in
// ordinal order, and closes out the speaking sequence. A sequence superseded
// by a newer run is left alone: Complete and Finish are generation-scoped.
func (c *Coordinator) watchCompletion(s *session.Session, d *chunk.Delivery, runID, taskID string, gen uint64, cancel context.CancelFunc) {
	for _, ch := range d.Chunks() {
		<-ch.Done()
		if ch.Status() == chunk.StatusReady {
			c.publish(EventChunkReady, s.ID, runID, ch.Ordinal, "")
		}
	}
	s.Untrack(taskID)
	cancel()

	interrupted := s.InterruptRequested()
	c.interrupts.Complete(s, gen)
	c.interrupts.Finish(s, gen)
	if !interrupted {
		c.publish(EventCompleted, s.ID, runID, 0, "")
	}
}

// Interrupt handles a barge-in: the current reply is cancelled and its
// undelivered chunks are discarded. Returns false if the session does not
// exist or is not speaking.
func (c *Coordinator) Interrupt(sessionID string) bool {
	s := c.registry.Get(sessionID)
	if s == nil {
		return false
	}
	if !c.interrupts.RequestInterrupt(s) {
		return false
	}
	c.publish(EventInterrupted, sessionID, "", 0, "")
	return true
}

// EndSession removes the session, cancelling any in-flight work.
func (c *Coordinator) EndSession(sessionID string) {
	c.registry.Remove(sessionID)
	c.publish(EventSessionEnd, sessionID, "", 0, "")
}
