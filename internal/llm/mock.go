package llm

import (
	"context"
	"strings"
	"time"
)

// MockResponse is what the mock generator answers to JSON formatted prompts.
// It satisfies both the triage and the analysis response shapes.
const MockResponse = `{"signal":"partial","confidence":0.5,"analysis_text":"[mock analysis]","score":5}`

type mockGenerator struct{}

func NewMockGenerator() Generator { return &mockGenerator{} }

func (m *mockGenerator) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}
	content := "[mock completion for " + strings.TrimSpace(req.Prompt) + "]"
	if req.Format == FormatJSON {
		content = MockResponse
	}
	return consumer(Chunk{
		SessionID: req.SessionID,
		Content:   content,
		Partial:   false,
		Latency:   20 * time.Millisecond,
		TraceID:   req.TraceID,
	})
}
