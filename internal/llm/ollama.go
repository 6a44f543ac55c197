package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

type ollamaGenerator struct {
	client       *api.Client
	defaultModel string
}

// NewOllamaGenerator talks to an Ollama server at endpoint (scheme://host:port).
// Requests are sent with stream=false so each call yields one final chunk.
func NewOllamaGenerator(endpoint, defaultModel string, httpClient *http.Client) (Generator, error) {
	base, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse ollama endpoint: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("ollama endpoint %q must include scheme and host", endpoint)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ollamaGenerator{client: api.NewClient(base, httpClient), defaultModel: defaultModel}, nil
}

func (g *ollamaGenerator) modelFor(req Request) string {
	if req.Model != "" {
		return req.Model
	}
	if g.defaultModel != "" {
		return g.defaultModel
	}
	return "llama3.2:latest"
}

func (g *ollamaGenerator) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	stream := false
	genReq := &api.GenerateRequest{
		Model:   g.modelFor(req),
		Prompt:  req.Prompt,
		System:  req.System,
		Stream:  &stream,
		Options: map[string]any{},
	}
	if req.Format != "" {
		format, err := json.Marshal(req.Format)
		if err != nil {
			return err
		}
		genReq.Format = format
	}
	if req.Temperature != 0 {
		genReq.Options["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		genReq.Options["num_predict"] = req.MaxTokens
	}

	start := time.Now()
	return g.client.Generate(ctx, genReq, func(resp api.GenerateResponse) error {
		return consumer(Chunk{
			SessionID:        req.SessionID,
			Content:          resp.Response,
			Partial:          !resp.Done,
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			Latency:          time.Since(start),
			TraceID:          req.TraceID,
		})
	})
}
