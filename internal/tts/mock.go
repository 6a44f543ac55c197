package tts

import (
	"context"
	"time"
)

type mockSynth struct {
	sampleRate int
	channels   int
}

// NewMockSynth emits silence: 10ms of audio per character of text.
func NewMockSynth(sampleRate, channels int) Synthesizer {
	return &mockSynth{sampleRate: sampleRate, channels: channels}
}

func (m *mockSynth) Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error) {
	chunks := make(chan SynthChunk, 1)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		select {
		case <-ctx.Done():
			errs <- ctx.Err()
			return
		case <-time.After(5 * time.Millisecond):
		}
		samples := len(req.Text) * m.sampleRate / 100
		chunks <- SynthChunk{
			SessionID:  req.SessionID,
			Sequence:   0,
			SampleRate: m.sampleRate,
			Channels:   m.channels,
			PCM:        make([]byte, samples*m.channels*2),
			Final:      true,
		}
	}()
	return chunks, errs
}
