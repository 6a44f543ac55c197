package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/loqalabs/loqa-interview/internal/config"
)

// New builds the generator selected by cfg.Mode.
func New(cfg config.LLMConfig) (Generator, error) {
	if !cfg.Enabled {
		return disabledGenerator{}, nil
	}
	switch cfg.Mode {
	case "mock":
		return NewMockGenerator(), nil
	case "ollama":
		return NewOllamaGenerator(cfg.Endpoint, cfg.TriageModel, &http.Client{})
	case "exec":
		return NewExecGenerator(cfg.Command)
	default:
		return nil, fmt.Errorf("unsupported llm mode %q", cfg.Mode)
	}
}

// ErrDisabled is returned by every call when llm.enabled is false.
var ErrDisabled = errors.New("llm disabled")

type disabledGenerator struct{}

func (disabledGenerator) Generate(context.Context, Request, func(Chunk) error) error {
	return ErrDisabled
}
