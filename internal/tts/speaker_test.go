package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-interview/internal/config"
)

type stubSynth struct {
	chunks []SynthChunk
	err    error
}

func (s stubSynth) Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error) {
	out := make(chan SynthChunk, len(s.chunks))
	errs := make(chan error, 1)
	for _, c := range s.chunks {
		out <- c
	}
	close(out)
	if s.err != nil {
		errs <- s.err
	}
	close(errs)
	return out, errs
}

func decode(t *testing.T, b []byte) *wav.Decoder {
	t.Helper()
	dec := wav.NewDecoder(bytes.NewReader(b))
	require.True(t, dec.IsValidFile())
	return dec
}

func TestSpeakProducesWAV(t *testing.T) {
	sp := NewSpeaker(NewMockSynth(16000, 1), "", 16000, 1, time.Second, nil)
	out, err := sp.Speak(context.Background(), "s1", "Hello there")
	require.NoError(t, err)
	require.True(t, len(out) > 44)
	assert.Equal(t, "RIFF", string(out[0:4]))
	assert.Equal(t, "WAVE", string(out[8:12]))

	dec := decode(t, out)
	assert.Equal(t, uint32(16000), dec.SampleRate)
	assert.Equal(t, uint16(1), dec.NumChans)
}

func TestSpeakEmptyText(t *testing.T) {
	sp := NewSpeaker(NewMockSynth(16000, 1), "", 16000, 1, time.Second, nil)
	out, err := sp.Speak(context.Background(), "s1", "   ")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSpeakWithoutBackend(t *testing.T) {
	out, err := NewSpeaker(nil, "", 0, 0, 0, nil).Speak(context.Background(), "s1", "hi")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSpeakPropagatesFailure(t *testing.T) {
	sp := NewSpeaker(stubSynth{err: errors.New("engine down")}, "", 16000, 1, time.Second, nil)
	_, err := sp.Speak(context.Background(), "s1", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine down")
}

func TestSpeakNoAudio(t *testing.T) {
	sp := NewSpeaker(stubSynth{}, "", 16000, 1, time.Second, nil)
	_, err := sp.Speak(context.Background(), "s1", "hi")
	assert.ErrorIs(t, err, ErrNoAudio)
}

func TestRepairWAVFixesDataSize(t *testing.T) {
	pcm := make([]byte, 20)
	for i := range pcm {
		pcm[i] = byte(i)
	}
	good, err := EncodeWAV(pcm, 22050, 1)
	require.NoError(t, err)

	bad := append([]byte(nil), good...)
	dataAt := bytes.Index(bad, []byte("data"))
	require.True(t, dataAt > 0)
	binary.LittleEndian.PutUint32(bad[dataAt+4:], uint32(len(pcm)-2))
	binary.LittleEndian.PutUint32(bad[4:], 0xFFFFFFFF)

	sp := NewSpeaker(stubSynth{chunks: []SynthChunk{{PCM: bad, Final: true}}}, "", 22050, 1, time.Second, nil)
	out, err := sp.Speak(context.Background(), "s1", "hi")
	require.NoError(t, err)

	assert.Equal(t, uint32(len(out)-8), binary.LittleEndian.Uint32(out[4:]))
	dataAt = bytes.Index(out, []byte("data"))
	assert.Equal(t, uint32(len(pcm)), binary.LittleEndian.Uint32(out[dataAt+4:]))

	dec := decode(t, out)
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Len(t, buf.Data, 10)
}

func TestRepairWAVRejectsGarbage(t *testing.T) {
	_, err := RepairWAV([]byte("RIFF\x00\x00\x00\x00WAVEjunk"))
	assert.Error(t, err)
}

func TestEncodeWAVRejectsOddPayload(t *testing.T) {
	_, err := EncodeWAV([]byte{1, 2, 3}, 16000, 1)
	assert.Error(t, err)
}

func TestExecSynth(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "tts.sh")
	// "AAAA" decodes to three zero bytes; the second line pads to four.
	content := "#!/bin/sh\ncat >/dev/null\necho '{\"pcm_base64\":\"AAAA\",\"final\":false}'\necho '{\"pcm_base64\":\"AA==\",\"final\":true}'\n"
	require.NoError(t, os.WriteFile(script, []byte(content), 0o755))

	synth, err := NewExecSynth(script, 16000, 1)
	require.NoError(t, err)
	out, err := NewSpeaker(synth, "", 16000, 1, 5*time.Second, nil).Speak(context.Background(), "s1", "hi")
	require.NoError(t, err)
	dec := decode(t, out)
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Len(t, buf.Data, 2)
}

func TestExecSynthForwardsWholeWAV(t *testing.T) {
	file, err := EncodeWAV(make([]byte, 8), 16000, 1)
	require.NoError(t, err)
	script := filepath.Join(t.TempDir(), "tts.sh")
	content := "#!/bin/sh\ncat >/dev/null\nprintf '%s\\n' '{\"wav_base64\":\"" + base64.StdEncoding.EncodeToString(file) + "\",\"final\":true}'\n"
	require.NoError(t, os.WriteFile(script, []byte(content), 0o755))

	synth, err := NewExecSynth(script, 16000, 1)
	require.NoError(t, err)
	out, err := NewSpeaker(synth, "", 16000, 1, 5*time.Second, nil).Speak(context.Background(), "s1", "hi")
	require.NoError(t, err)
	buf, err := decode(t, out).FullPCMBuffer()
	require.NoError(t, err)
	assert.Len(t, buf.Data, 4)
}

func TestExecSynthReportsEngineFailure(t *testing.T) {
	script := filepath.Join(t.TempDir(), "tts.sh")
	content := "#!/bin/sh\ncat >/dev/null\necho 'voice model missing' >&2\nexit 2\n"
	require.NoError(t, os.WriteFile(script, []byte(content), 0o755))

	synth, err := NewExecSynth(script, 16000, 1)
	require.NoError(t, err)
	_, err = NewSpeaker(synth, "", 16000, 1, 5*time.Second, nil).Speak(context.Background(), "s1", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "voice model missing")
}

func TestNewFactory(t *testing.T) {
	s, err := New(config.TTSConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = New(config.TTSConfig{Enabled: true, Mode: "mock", SampleRate: 16000, Channels: 1})
	require.NoError(t, err)
	assert.NotNil(t, s)

	_, err = New(config.TTSConfig{Enabled: true, Mode: "cloud"})
	assert.Error(t, err)

	_, err = New(config.TTSConfig{Enabled: true, Mode: "exec", Command: ""})
	assert.Error(t, err)
}
