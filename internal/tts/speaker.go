package tts

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrNoAudio is returned when synthesis completes without producing samples.
var ErrNoAudio = errors.New("tts produced no audio")

// Speaker turns text into one complete WAV container ready to send to a
// client.
type Speaker struct {
	synth      Synthesizer
	voice      string
	sampleRate int
	channels   int
	timeout    time.Duration
	log        *slog.Logger
}

// NewSpeaker wraps synth. A nil synth makes Speak return empty audio.
func NewSpeaker(synth Synthesizer, voice string, sampleRate, channels int, timeout time.Duration, log *slog.Logger) *Speaker {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if sampleRate <= 0 {
		sampleRate = 22050
	}
	if channels <= 0 {
		channels = 1
	}
	return &Speaker{
		synth:      synth,
		voice:      voice,
		sampleRate: sampleRate,
		channels:   channels,
		timeout:    timeout,
		log:        log.With(slog.String("component", "tts-speaker")),
	}
}

// Speak synthesizes text. Blank text, or a speaker with no backend, yields
// empty bytes and no error.
func (s *Speaker) Speak(ctx context.Context, sessionID, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" || s.synth == nil {
		return nil, nil
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	started := time.Now()
	chunks, errs := s.synth.Synthesize(ctx, SynthRequest{SessionID: sessionID, Text: text, Voice: s.voice})

	var payload bytes.Buffer
	rate, channels := s.sampleRate, s.channels
	for chunk := range chunks {
		if chunk.SampleRate > 0 {
			rate = chunk.SampleRate
		}
		if chunk.Channels > 0 {
			channels = chunk.Channels
		}
		payload.Write(chunk.PCM)
	}
	if err := <-errs; err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	if payload.Len() == 0 {
		return nil, ErrNoAudio
	}

	var out []byte
	var err error
	if isWAV(payload.Bytes()) {
		out, err = RepairWAV(payload.Bytes())
	} else {
		out, err = EncodeWAV(payload.Bytes(), rate, channels)
	}
	if err != nil {
		return nil, err
	}
	s.log.Debug("speech synthesized",
		slog.String("session_id", sessionID),
		slog.Int("bytes", len(out)),
		slog.Duration("latency", time.Since(started)),
	)
	return out, nil
}

// EncodeWAV wraps 16-bit little-endian PCM in a WAV container.
func EncodeWAV(pcm []byte, sampleRate, channels int) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("pcm payload not aligned")
	}
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:   samples,
	}

	ws := &memWriteSeeker{}
	enc := wav.NewEncoder(ws, sampleRate, 16, channels, 1)
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}
	return ws.buf, nil
}

// RepairWAV rebuilds a WAV whose RIFF or data chunk sizes disagree with the
// bytes actually present. Everything after the data chunk header is treated
// as sample data.
func RepairWAV(b []byte) ([]byte, error) {
	dec := wav.NewDecoder(bytes.NewReader(b))
	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		return nil, fmt.Errorf("read wav header: %w", err)
	}
	if dec.WavAudioFormat != 1 || dec.BitDepth != 16 {
		return nil, fmt.Errorf("unsupported wav encoding format=%d bits=%d", dec.WavAudioFormat, dec.BitDepth)
	}
	pcm, err := wavData(b)
	if err != nil {
		return nil, err
	}
	frame := int(dec.NumChans) * 2
	if frame > 0 {
		pcm = pcm[:len(pcm)-len(pcm)%frame]
	}
	return EncodeWAV(pcm, int(dec.SampleRate), int(dec.NumChans))
}

func wavData(b []byte) ([]byte, error) {
	off := 12
	for off+8 <= len(b) {
		id := string(b[off : off+4])
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		if id == "data" {
			return b[off+8:], nil
		}
		off += 8 + size + size%2
	}
	return nil, fmt.Errorf("wav data chunk not found")
}

func isWAV(b []byte) bool {
	return len(b) >= 12 && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WAVE"
}

type memWriteSeeker struct {
	buf []byte
	pos int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.buf) {
		if end > cap(m.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, m.buf)
			m.buf = grown
		} else {
			m.buf = m.buf[:end]
		}
	}
	copy(m.buf[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(m.pos) + offset
	case io.SeekEnd:
		next = int64(len(m.buf)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("negative seek position")
	}
	m.pos = int(next)
	return next, nil
}
