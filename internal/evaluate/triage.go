// Package evaluate scores candidate answers: a fast triage that steers the
// interview and a slower deep analysis that runs off the conversational path.
package evaluate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/loqalabs/loqa-interview/internal/config"
	"github.com/loqalabs/loqa-interview/internal/llm"
	"github.com/loqalabs/loqa-interview/internal/session"
)

// Result is the triage outcome stored on each turn.
type Result = session.TriageResult

const triageTemplate = `You are an AI technical interviewer. A candidate was asked the following question:
'%s'
The candidate responded:
'%s'
Analyze the response. Is it correct, incorrect, or partially correct?
Respond ONLY with a JSON object with two keys: 'signal' (string: "correct", "incorrect", or "partial") and 'confidence' (float: 0.0 to 1.0).`

// Triager classifies an answer as correct, partial or incorrect.
type Triager struct {
	gen     llm.Generator
	base    llm.Request
	timeout time.Duration
	log     *slog.Logger
}

func NewTriager(gen llm.Generator, cfg config.LLMConfig, log *slog.Logger) *Triager {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	base := llm.OptionsFromConfig(cfg, cfg.TriageModel)
	base.Format = llm.FormatJSON
	return &Triager{
		gen:     gen,
		base:    base,
		timeout: time.Duration(cfg.TriageTimeoutMS) * time.Millisecond,
		log:     log.With(slog.String("component", "triage")),
	}
}

type triageReply struct {
	Signal     *string  `json:"signal"`
	Confidence *float64 `json:"confidence"`
}

// Triage never fails: every backend or parsing problem yields the error
// signal with zero confidence.
func (t *Triager) Triage(ctx context.Context, sessionID, question, answer string) Result {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	req := t.base
	req.SessionID = sessionID
	req.Prompt = fmt.Sprintf(triageTemplate, question, answer)

	started := time.Now()
	raw, err := llm.Collect(ctx, t.gen, req)
	if err != nil {
		t.log.Warn("triage request failed", slog.String("session_id", sessionID), slogError(err))
		return session.ErrorResult()
	}
	res, err := parseTriage(raw)
	if err != nil {
		t.log.Warn("triage reply unusable", slog.String("session_id", sessionID), slogError(err))
		return session.ErrorResult()
	}
	t.log.Debug("triage complete",
		slog.String("session_id", sessionID),
		slog.String("signal", string(res.Signal)),
		slog.Float64("confidence", res.Confidence),
		slog.Duration("latency", time.Since(started)),
	)
	return res
}

func parseTriage(raw string) (Result, error) {
	var reply triageReply
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &reply); err != nil {
		return session.ErrorResult(), fmt.Errorf("decode triage json: %w", err)
	}
	if reply.Signal == nil {
		return session.ErrorResult(), fmt.Errorf("triage reply missing signal")
	}
	sig := session.ParseSignal(strings.TrimSpace(*reply.Signal))
	if sig == session.SignalError {
		return session.ErrorResult(), fmt.Errorf("unknown triage signal %q", *reply.Signal)
	}
	conf := 0.0
	if reply.Confidence != nil {
		conf = clamp(*reply.Confidence)
	}
	return Result{Signal: sig, Confidence: conf}, nil
}

func clamp(v float64) float64 {
	switch {
	case v != v:
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func slogError(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}
