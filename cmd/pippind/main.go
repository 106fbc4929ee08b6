// pippind: the Pippin voice-companion response pipeline daemon.
// Wires the external service clients into the coordinator and serves the
// pipeline over HTTP and websocket.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pippinlabs/go-pippin/internal/config"
	"github.com/pippinlabs/go-pippin/internal/log"
	"github.com/pippinlabs/go-pippin/pkg/asr"
	"github.com/pippinlabs/go-pippin/pkg/dispatch"
	"github.com/pippinlabs/go-pippin/pkg/hub"
	"github.com/pippinlabs/go-pippin/pkg/llm"
	"github.com/pippinlabs/go-pippin/pkg/memory"
	"github.com/pippinlabs/go-pippin/pkg/pipeline"
	"github.com/pippinlabs/go-pippin/pkg/safety"
	"github.com/pippinlabs/go-pippin/pkg/session"
	"github.com/pippinlabs/go-pippin/pkg/tts"
	"github.com/pippinlabs/go-pippin/pkg/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "pippind:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log.Init(cfg.LogLevel)
	logger := log.L()

	profile, err := pipeline.ParseProfile(cfg.Profile)
	if err != nil {
		return err
	}

	recognizer, err := asr.NewClient(cfg.ASRBaseURL,
		asr.WithAPIKey(cfg.ASRKey),
		asr.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("asr client: %w", err)
	}

	generator := llm.NewClient(
		llm.WithBaseURL(cfg.LLMBaseURL),
		llm.WithAPIKey(cfg.LLMKey),
		llm.WithModel(cfg.LLMModel),
		llm.WithLogger(logger),
	)

	synth, err := tts.NewHTTP(
		tts.WithBaseURL(cfg.TTSBaseURL),
		tts.WithAPIKey(cfg.TTSKey),
		tts.WithDefaultVoice(tts.VoiceProfile{VoiceID: cfg.TTSVoiceID, Speed: 1.0, Stability: 0.5, SimilarityBoost: 0.75}),
		tts.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("tts client: %w", err)
	}
	defer synth.Close()

	checker, err := safety.NewClient(cfg.SafetyURL, 5*time.Second)
	if err != nil {
		return fmt.Errorf("safety client: %w", err)
	}

	store, err := memory.NewClient(cfg.MemoryURL, 5*time.Second)
	if err != nil {
		return fmt.Errorf("memory client: %w", err)
	}

	queue := dispatch.New(synth,
		dispatch.WithMaxConcurrent(cfg.MaxConcurrentSynth),
		dispatch.WithRateLimit(cfg.SynthPerMinute, time.Minute),
		dispatch.WithLogger(logger),
	)

	events := hub.New("pipeline", logger)

	admission := session.DefaultAdmissionConfig()
	admission.MaxPerHour = cfg.InteractionsPerHour

	coord, err := pipeline.New(pipeline.Deps{
		Recognizer: recognizer,
		Generator:  generator,
		Checker:    checker,
		Store:      store,
		Synth:      synth,
		Queue:      queue,
	},
		pipeline.WithProfile(profile),
		pipeline.WithAdmission(admission),
		pipeline.WithEvents(events),
		pipeline.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("coordinator: %w", err)
	}

	server := web.NewServer(cfg.Port, coord, events, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	logger.Info("pippind started", "port", cfg.Port, "profile", profile.String())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case s := <-sig:
		logger.Info("shutting down", "signal", s.String())
		return server.Shutdown()
	}
}
