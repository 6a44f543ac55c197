package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
)

// maxJudgeStderr bounds how much of a failing command's stderr is quoted in
// the returned error.
const maxJudgeStderr = 512

// commandJudge evaluates answers by running a local program, one process
// per request. Calls from different sessions run side by side.
type commandJudge struct {
	argv []string
}

type judgeRequest struct {
	SessionID   string  `json:"session_id,omitempty"`
	TraceID     string  `json:"trace_id,omitempty"`
	Model       string  `json:"model,omitempty"`
	System      string  `json:"system,omitempty"`
	Prompt      string  `json:"prompt"`
	Format      string  `json:"format,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature"`
}

// judgeReply accepts both {"content": ...} and the Ollama generate shape
// {"response": ...}, so a wrapper around `ollama run` can forward its output.
type judgeReply struct {
	Content          string `json:"content"`
	Response         string `json:"response"`
	PromptTokens     int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
	PromptEvalCount  int    `json:"prompt_eval_count,omitempty"`
	EvalCount        int    `json:"eval_count,omitempty"`
}

func (r judgeReply) text() string {
	if r.Content != "" {
		return r.Content
	}
	return r.Response
}

// NewExecGenerator runs command for every triage or analysis request. The
// request goes to stdin as JSON and stdout must hold one JSON reply.
func NewExecGenerator(command string) (Generator, error) {
	argv, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse judge command: %w", err)
	}
	if len(argv) == 0 {
		return nil, errors.New("judge command empty")
	}
	return &commandJudge{argv: argv}, nil
}

func (g *commandJudge) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	input, err := json.Marshal(judgeRequest{
		SessionID:   req.SessionID,
		TraceID:     req.TraceID,
		Model:       req.Model,
		System:      req.System,
		Prompt:      req.Prompt,
		Format:      req.Format,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return err
	}

	start := time.Now()
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, g.argv[0], g.argv[1:]...)
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := tail(stderr.String(), maxJudgeStderr); msg != "" {
			return fmt.Errorf("judge command %s failed: %w: %s", g.argv[0], err, msg)
		}
		return fmt.Errorf("judge command %s failed: %w", g.argv[0], err)
	}

	var reply judgeReply
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &reply); err != nil {
		return fmt.Errorf("decode judge reply: %w", err)
	}

	promptTokens, completionTokens := reply.PromptTokens, reply.CompletionTokens
	if promptTokens == 0 {
		promptTokens = reply.PromptEvalCount
	}
	if completionTokens == 0 {
		completionTokens = reply.EvalCount
	}
	return consumer(Chunk{
		SessionID:        req.SessionID,
		Content:          reply.text(),
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		Latency:          time.Since(start),
		TraceID:          req.TraceID,
	})
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return s
}
