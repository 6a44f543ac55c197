package evaluate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/loqalabs/loqa-interview/internal/config"
	"github.com/loqalabs/loqa-interview/internal/llm"
	"github.com/loqalabs/loqa-interview/internal/session"
)

var (
	// ErrQueueFull is returned by Submit when every worker is busy and the
	// backlog is at capacity. The job is dropped.
	ErrQueueFull = errors.New("analysis queue full")
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("analyzer closed")
)

const analysisTemplate = `You are an expert AI technical evaluator. Your task is to provide a detailed analysis
of a candidate's answer during an interview.

Interview Context (History): %s
Question Asked: '%s'
Candidate's Answer: '%s'

Provide a detailed analysis covering:
1.  **Correctness**: How accurate was the answer?
2.  **Completeness**: Did the answer cover all key aspects?
3.  **Clarity**: Was the explanation clear and concise?
4.  **Confidence**: How confident did the candidate seem?
5.  **Score**: A numerical score from 1 to 10 for this specific answer.

Respond ONLY with a JSON object containing keys: "analysis_text", "score".`

// Job is one answered turn queued for deep analysis. History is a snapshot
// taken when the job was created.
type Job struct {
	SessionID string
	NodeID    string
	Question  string
	Answer    string
	History   []session.Turn
	TraceID   string
}

// Analysis is the outcome of a deep evaluation.
type Analysis struct {
	SessionID string        `json:"session_id"`
	NodeID    string        `json:"node_id"`
	Question  string        `json:"question"`
	Answer    string        `json:"answer"`
	Text      string        `json:"analysis_text"`
	Score     int           `json:"score"`
	Latency   time.Duration `json:"latency"`
	TraceID   string        `json:"trace_id,omitempty"`
}

// Sink receives completed analyses.
type Sink interface {
	RecordAnalysis(ctx context.Context, a Analysis) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, a Analysis) error

func (f SinkFunc) RecordAnalysis(ctx context.Context, a Analysis) error { return f(ctx, a) }

// Analyzer runs deep analyses on a fixed pool of workers.
type Analyzer struct {
	gen     llm.Generator
	base    llm.Request
	timeout time.Duration
	sinks   []Sink
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	jobs   chan Job
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewAnalyzer starts workers goroutines reading from a queue of the given
// size. Results go to every sink in order.
func NewAnalyzer(parent context.Context, gen llm.Generator, llmCfg config.LLMConfig, workers, queue int, log *slog.Logger, sinks ...Sink) *Analyzer {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if workers <= 0 {
		workers = 1
	}
	if queue < 0 {
		queue = 0
	}
	base := llm.OptionsFromConfig(llmCfg, llmCfg.AnalysisModel)
	base.Format = llm.FormatJSON
	ctx, cancel := context.WithCancel(parent)
	a := &Analyzer{
		gen:     gen,
		base:    base,
		timeout: time.Duration(llmCfg.AnalysisTimeoutMS) * time.Millisecond,
		sinks:   sinks,
		log:     log.With(slog.String("component", "deep-analysis")),
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(chan Job, queue),
	}
	for i := 0; i < workers; i++ {
		a.wg.Add(1)
		go a.worker()
	}
	return a
}

// Submit enqueues job without blocking.
func (a *Analyzer) Submit(job Job) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.jobs <- job:
		return nil
	default:
		a.log.Warn("analysis dropped, queue full",
			slog.String("session_id", job.SessionID),
			slog.String("node_id", job.NodeID),
		)
		return ErrQueueFull
	}
}

// Close stops accepting jobs and waits for queued work to finish or for ctx
// to expire, after which in-flight calls are cancelled.
func (a *Analyzer) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.jobs)
	}
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		a.cancel()
		return nil
	case <-ctx.Done():
		a.cancel()
		<-done
		return ctx.Err()
	}
}

func (a *Analyzer) worker() {
	defer a.wg.Done()
	for job := range a.jobs {
		a.run(job)
	}
}

func (a *Analyzer) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("analysis panicked", slog.String("session_id", job.SessionID), slog.Any("panic", r))
		}
	}()

	res, err := a.Analyze(a.ctx, job)
	if err != nil {
		a.log.Warn("analysis failed",
			slog.String("session_id", job.SessionID),
			slog.String("node_id", job.NodeID),
			slogError(err),
		)
		return
	}
	a.log.Info("analysis complete",
		slog.String("session_id", job.SessionID),
		slog.String("node_id", job.NodeID),
		slog.Int("score", res.Score),
		slog.Duration("latency", res.Latency),
	)
	for _, sink := range a.sinks {
		if err := sink.RecordAnalysis(a.ctx, res); err != nil {
			a.log.Warn("analysis sink failed", slog.String("session_id", job.SessionID), slogError(err))
		}
	}
}

// Analyze runs a single job synchronously.
func (a *Analyzer) Analyze(ctx context.Context, job Job) (Analysis, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	req := a.base
	req.SessionID = job.SessionID
	req.TraceID = job.TraceID
	req.Prompt = fmt.Sprintf(analysisTemplate, formatHistory(job.History), job.Question, job.Answer)

	started := time.Now()
	raw, err := llm.Collect(ctx, a.gen, req)
	if err != nil {
		return Analysis{}, err
	}
	text, score, err := parseAnalysis(raw)
	if err != nil {
		return Analysis{}, err
	}
	return Analysis{
		SessionID: job.SessionID,
		NodeID:    job.NodeID,
		Question:  job.Question,
		Answer:    job.Answer,
		Text:      text,
		Score:     score,
		Latency:   time.Since(started),
		TraceID:   job.TraceID,
	}, nil
}

type analysisReply struct {
	AnalysisText string          `json:"analysis_text"`
	Score        json.RawMessage `json:"score"`
}

func parseAnalysis(raw string) (string, int, error) {
	var reply analysisReply
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &reply); err != nil {
		return "", 0, fmt.Errorf("decode analysis json: %w", err)
	}
	if strings.TrimSpace(reply.AnalysisText) == "" {
		return "", 0, fmt.Errorf("analysis reply missing analysis_text")
	}
	return reply.AnalysisText, parseScore(reply.Score), nil
}

// parseScore accepts numbers or numeric strings; anything outside 1..10 is 0.
func parseScore(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
		if _, err := fmt.Sscanf(strings.TrimSpace(s), "%g", &f); err != nil {
			return 0
		}
	}
	score := int(math.Round(f))
	if score < 1 || score > 10 {
		return 0
	}
	return score
}

func formatHistory(turns []session.Turn) string {
	if len(turns) == 0 {
		return "[]"
	}
	data, err := json.Marshal(turns)
	if err != nil {
		return "[]"
	}
	return string(data)
}
