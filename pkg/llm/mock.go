package llm

import "context"

// Mock implements Generator for testing.
type Mock struct {
	// GenerateFunc is called when Generate is invoked.
	// If nil, echoes the utterance back as a reply.
	GenerateFunc func(ctx context.Context, req *Request) (*Result, error)

	// ContinueFunc is called when Continue is invoked.
	// If nil, returns a fixed continuation.
	ContinueFunc func(ctx context.Context, req *Request, prior string) (string, error)
}

// Generate calls GenerateFunc or echoes the utterance.
func (m *Mock) Generate(ctx context.Context, req *Request) (*Result, error) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return &Result{Text: "You said: " + req.Utterance, Model: "mock"}, nil
}

// Continue calls ContinueFunc or returns a fixed continuation.
func (m *Mock) Continue(ctx context.Context, req *Request, prior string) (string, error) {
	if m.ContinueFunc != nil {
		return m.ContinueFunc(ctx, req, prior)
	}
	return "And that was the end of the story.", nil
}

var _ Generator = (*Mock)(nil)
