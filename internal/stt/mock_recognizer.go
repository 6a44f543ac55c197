package stt

import (
	"context"
	"fmt"
)

type mockRecognizer struct{}

func NewMockRecognizer() Recognizer {
	return &mockRecognizer{}
}

func (m *mockRecognizer) Transcribe(_ context.Context, audio []byte, _ int, _ int, final bool) (TranscriptResult, error) {
	if len(audio) == 0 {
		return TranscriptResult{}, nil
	}
	mode := "partial"
	if final {
		mode = "final"
	}
	return TranscriptResult{
		Text:       fmt.Sprintf("[%s transcript length=%d]", mode, len(audio)),
		Confidence: 0,
	}, nil
}
