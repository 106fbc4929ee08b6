// Package llm provides the text-generation client for the response pipeline.
//
// The client speaks the OpenAI-compatible chat completions API, so it works
// against OpenAI, Ollama, vLLM, Together, Groq, and similar services.
package llm

import (
	"context"
	"errors"
)

// Sentinel errors.
var (
	// ErrNoChoices is returned when the API responds without any completion.
	ErrNoChoices = errors.New("llm: no choices returned")
)

// Generator produces reply text for an utterance.
type Generator interface {
	// Generate produces a reply given system instructions, the utterance,
	// and conversational context.
	Generate(ctx context.Context, req *Request) (*Result, error)

	// Continue asks the model to extend a reply that came back too short.
	// prior is the text generated so far; the returned text is the extension
	// only, not a restatement.
	Continue(ctx context.Context, req *Request, prior string) (string, error)
}

// Request holds the inputs for one generation call.
type Request struct {
	// System is the style/system instruction block (built by the prompt
	// layer, which is external to this pipeline).
	System string

	// Utterance is the user's transcribed speech.
	Utterance string

	// Context is the recent-preferences summary from the memory collaborator.
	Context string

	// MaxTokens caps the response length. Zero means the client default.
	MaxTokens int
}

// Result is the outcome of one generation call.
type Result struct {
	// Text is the generated reply.
	Text string

	// Model is the model that served the request.
	Model string

	// LatencyMs is the request round-trip time in milliseconds.
	LatencyMs int64
}
