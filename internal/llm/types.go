package llm

import (
	"context"
	"strings"
	"time"

	"github.com/loqalabs/loqa-interview/internal/config"
)

// FormatJSON asks the backend to constrain output to a JSON document.
const FormatJSON = "json"

// Request describes a language model prompt.
type Request struct {
	SessionID   string
	Prompt      string
	System      string
	Model       string
	Format      string
	MaxTokens   int
	Temperature float64
	TraceID     string
}

// Chunk represents model output. Non-streaming backends emit a single final chunk.
type Chunk struct {
	SessionID        string
	Content          string
	Partial          bool
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
	TraceID          string
}

// Generator defines a pluggable LLM backend.
type Generator interface {
	Generate(ctx context.Context, req Request, consumer func(Chunk) error) error
}

// OptionsFromConfig builds request defaults for model from config.
func OptionsFromConfig(cfg config.LLMConfig, model string) Request {
	return Request{Model: model, MaxTokens: cfg.MaxTokens, Temperature: cfg.Temperature}
}

// Collect runs req to completion and returns the concatenated content.
func Collect(ctx context.Context, g Generator, req Request) (string, error) {
	var b strings.Builder
	err := g.Generate(ctx, req, func(c Chunk) error {
		b.WriteString(c.Content)
		return nil
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}
