package tts

import (
	"context"
	"fmt"

	"github.com/loqalabs/loqa-interview/internal/config"
)

// SynthRequest contains parameters to synthesize speech.
type SynthRequest struct {
	SessionID string
	Text      string
	Voice     string
}

// SynthChunk contains PCM data, or a fragment of an encoded WAV file when the
// engine produces containers itself.
type SynthChunk struct {
	SessionID  string
	Sequence   int
	SampleRate int
	Channels   int
	PCM        []byte
	Final      bool
}

// Synthesizer is the contract for producing audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error)
}

// New builds the synthesizer selected by cfg.Mode. A disabled TTS yields nil,
// which a Speaker treats as "no audio available".
func New(cfg config.TTSConfig) (Synthesizer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Mode {
	case "mock":
		return NewMockSynth(cfg.SampleRate, cfg.Channels), nil
	case "exec":
		return NewExecSynth(cfg.Command, cfg.SampleRate, cfg.Channels)
	default:
		return nil, fmt.Errorf("unsupported tts mode %q", cfg.Mode)
	}
}
