package tts

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"
)

const maxVoiceStderr = 512

// commandVoice speaks interview prompts through a local engine such as a
// piper wrapper. Each prompt runs its own process.
type commandVoice struct {
	argv       []string
	sampleRate int
	channels   int
}

type voiceRequest struct {
	SessionID  string `json:"session_id,omitempty"`
	Text       string `json:"text"`
	Voice      string `json:"voice,omitempty"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// voiceChunk is one stdout line. Engines that write a whole WAV file may put
// it in wav_base64; the speaker repairs its header.
type voiceChunk struct {
	PCMBase64 string `json:"pcm_base64"`
	WAVBase64 string `json:"wav_base64"`
	Final     bool   `json:"final"`
}

// NewExecSynth runs command once per prompt: a JSON request on stdin and one
// JSON chunk per stdout line.
func NewExecSynth(command string, sampleRate, channels int) (Synthesizer, error) {
	argv, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse voice command: %w", err)
	}
	if len(argv) == 0 {
		return nil, errors.New("voice command empty")
	}
	return &commandVoice{argv: argv, sampleRate: sampleRate, channels: channels}, nil
}

func (v *commandVoice) Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error) {
	chunks := make(chan SynthChunk)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		if err := v.run(ctx, req, chunks); err != nil {
			errs <- err
		}
	}()
	return chunks, errs
}

func (v *commandVoice) run(ctx context.Context, req SynthRequest, out chan<- SynthChunk) error {
	input, err := json.Marshal(voiceRequest{
		SessionID:  req.SessionID,
		Text:       req.Text,
		Voice:      req.Voice,
		SampleRate: v.sampleRate,
		Channels:   v.channels,
	})
	if err != nil {
		return err
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, v.argv[0], v.argv[1:]...)
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start voice command %s: %w", v.argv[0], err)
	}

	if err := v.stream(ctx, req.SessionID, stdout, out); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return err
	}
	waitErr := cmd.Wait()
	if waitErr != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > maxVoiceStderr {
			msg = msg[len(msg)-maxVoiceStderr:]
		}
		if msg != "" {
			return fmt.Errorf("voice command %s failed: %w: %s", v.argv[0], waitErr, msg)
		}
		return fmt.Errorf("voice command %s failed: %w", v.argv[0], waitErr)
	}
	return nil
}

func (v *commandVoice) stream(ctx context.Context, sessionID string, stdout io.Reader, out chan<- SynthChunk) error {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 16<<20)
	seq := 0
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var c voiceChunk
		if err := json.Unmarshal(line, &c); err != nil {
			return fmt.Errorf("decode voice chunk %d: %w", seq, err)
		}
		encoded := c.PCMBase64
		if c.WAVBase64 != "" {
			encoded = c.WAVBase64
		}
		audio, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return fmt.Errorf("decode voice chunk %d audio: %w", seq, err)
		}
		select {
		case out <- SynthChunk{
			SessionID:  sessionID,
			Sequence:   seq,
			SampleRate: v.sampleRate,
			Channels:   v.channels,
			PCM:        audio,
			Final:      c.Final,
		}:
		case <-ctx.Done():
			return ctx.Err()
		}
		seq++
	}
	return scanner.Err()
}
