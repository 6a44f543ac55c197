package stt

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/go-audio/wav"
	"github.com/loqalabs/loqa-interview/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsable(t *testing.T) {
	assert.True(t, TranscriptResult{Text: "a list is mutable"}.Usable())
	assert.False(t, TranscriptResult{Text: "   "}.Usable())
	assert.False(t, TranscriptResult{Text: ErrorMarker}.Usable())
}

func TestMockRecognizer(t *testing.T) {
	rec := NewMockRecognizer()
	res, err := rec.Transcribe(context.Background(), nil, 16000, 1, true)
	require.NoError(t, err)
	assert.False(t, res.Usable())

	res, err = rec.Transcribe(context.Background(), []byte{1, 2, 3, 4}, 16000, 1, true)
	require.NoError(t, err)
	assert.Equal(t, "[final transcript length=4]", res.Text)
}

func TestIsContainer(t *testing.T) {
	assert.True(t, isContainer([]byte("RIFF\x00\x00\x00\x00WAVEfmt ")))
	assert.True(t, isContainer([]byte("OggS\x00")))
	assert.True(t, isContainer([]byte{0x1a, 0x45, 0xdf, 0xa3, 0x01}))
	assert.False(t, isContainer([]byte{0, 0, 0, 0}))
}

func TestWritePCMToWav(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	pcm := make([]byte, 20)
	require.NoError(t, writePCMToWav(f, pcm, 16000, 1))
	require.NoError(t, f.Close())

	f, err = os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	dec := wav.NewDecoder(f)
	assert.True(t, dec.IsValidFile())
	assert.Equal(t, uint32(16000), dec.SampleRate)

	odd, err := os.Create(filepath.Join(t.TempDir(), "odd.wav"))
	require.NoError(t, err)
	defer odd.Close()
	assert.Error(t, writePCMToWav(odd, []byte{1}, 16000, 1))
}

func TestExecRecognizer(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	script := filepath.Join(t.TempDir(), "stt.sh")
	body := "#!/bin/sh\necho '{\"text\":\"a tuple is immutable\",\"confidence\":0.9}'\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))

	rec, err := New(config.STTConfig{Enabled: true, Mode: "exec", Command: script, SampleRate: 16000, Channels: 1})
	require.NoError(t, err)

	res, err := rec.Transcribe(context.Background(), make([]byte, 32), 16000, 1, true)
	require.NoError(t, err)
	assert.Equal(t, "a tuple is immutable", res.Text)
	assert.InDelta(t, 0.9, res.Confidence, 1e-9)
}

func TestExecRecognizerFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	script := filepath.Join(t.TempDir(), "stt.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho boom >&2\nexit 3\n"), 0o755))

	rec, err := NewExecRecognizer(config.STTConfig{Command: script})
	require.NoError(t, err)
	_, err = rec.Transcribe(context.Background(), make([]byte, 32), 16000, 1, true)
	assert.Error(t, err)
}
