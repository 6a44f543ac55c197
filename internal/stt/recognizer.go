package stt

import (
	"context"
	"fmt"
	"strings"

	"github.com/loqalabs/loqa-interview/internal/config"
)

// ErrorMarker is the text some recognizers emit instead of failing.
const ErrorMarker = "[Transcription Error]"

// TranscriptResult captures recognizer output.
type TranscriptResult struct {
	Text       string
	Confidence float64
}

// Usable reports whether the result carries an answer worth evaluating.
func (r TranscriptResult) Usable() bool {
	text := strings.TrimSpace(r.Text)
	return text != "" && text != ErrorMarker
}

// Recognizer abstracts STT backends.
type Recognizer interface {
	Transcribe(ctx context.Context, audio []byte, sampleRate int, channels int, final bool) (TranscriptResult, error)
}

// New builds the recognizer selected by cfg.Mode.
func New(cfg config.STTConfig) (Recognizer, error) {
	if !cfg.Enabled {
		return NewMockRecognizer(), nil
	}
	switch cfg.Mode {
	case "mock":
		return NewMockRecognizer(), nil
	case "exec":
		return NewExecRecognizer(cfg)
	default:
		return nil, fmt.Errorf("unsupported stt mode %q", cfg.Mode)
	}
}
