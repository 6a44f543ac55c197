// Package interview drives one spoken interview per candidate connection.
package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/loqalabs/loqa-interview/internal/config"
	"github.com/loqalabs/loqa-interview/internal/evaluate"
	"github.com/loqalabs/loqa-interview/internal/graph"
	"github.com/loqalabs/loqa-interview/internal/protocol"
	"github.com/loqalabs/loqa-interview/internal/session"
	"github.com/loqalabs/loqa-interview/internal/stt"
)

const instrumentation = "github.com/loqalabs/loqa-interview/interview"

// End reasons reported in events and metrics.
const (
	ReasonCompleted    = "completed"
	ReasonDisconnected = "disconnected"
	ReasonFault        = "fault"
	ReasonRejected     = "rejected"
)

// Reprompt reasons.
const (
	repromptEmpty = "empty_transcript"
	repromptError = "transcription_error"
)

// Triager is the fast evaluator used to steer the graph.
type Triager interface {
	Triage(ctx context.Context, sessionID, question, answer string) session.TriageResult
}

// Analyzer accepts detached deep-analysis jobs. Submit must not block.
type Analyzer interface {
	Submit(job evaluate.Job) error
}

// Speaker renders text to a complete audio payload.
type Speaker interface {
	Speak(ctx context.Context, sessionID, text string) ([]byte, error)
}

// Options wires an Orchestrator.
type Options struct {
	Graph      *graph.Graph
	Store      *session.Store
	Recognizer stt.Recognizer
	Triager    Triager
	Analyzer   Analyzer
	Speaker    Speaker
	Events     Events
	Logger     *slog.Logger

	STT          config.STTConfig
	RepromptText string
}

// Orchestrator runs the interview state machine. One Orchestrator serves
// every connection; per-connection state lives on the stack of Run and in
// the session store.
type Orchestrator struct {
	graph      *graph.Graph
	store      *session.Store
	recognizer stt.Recognizer
	triager    Triager
	analyzer   Analyzer
	speaker    Speaker
	events     Events
	log        *slog.Logger

	sampleRate   int
	channels     int
	sttTimeout   time.Duration
	repromptText string

	tracer    trace.Tracer
	turns     metric.Int64Counter
	reprompts metric.Int64Counter
	ended     metric.Int64Counter
	latency   metric.Float64Histogram
}

func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Graph == nil:
		return nil, errors.New("interview: graph required")
	case opts.Store == nil:
		return nil, errors.New("interview: session store required")
	case opts.Recognizer == nil:
		return nil, errors.New("interview: recognizer required")
	case opts.Triager == nil:
		return nil, errors.New("interview: triager required")
	case opts.Speaker == nil:
		return nil, errors.New("interview: speaker required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Events == nil {
		opts.Events = nopEvents{}
	}
	if opts.RepromptText == "" {
		opts.RepromptText = config.DefaultRepromptText
	}

	o := &Orchestrator{
		graph:        opts.Graph,
		store:        opts.Store,
		recognizer:   opts.Recognizer,
		triager:      opts.Triager,
		analyzer:     opts.Analyzer,
		speaker:      opts.Speaker,
		events:       opts.Events,
		log:          opts.Logger.With(slog.String("component", "orchestrator")),
		sampleRate:   opts.STT.SampleRate,
		channels:     opts.STT.Channels,
		sttTimeout:   time.Duration(opts.STT.TimeoutMS) * time.Millisecond,
		repromptText: opts.RepromptText,
		tracer:       otel.Tracer(instrumentation),
	}

	meter := otel.Meter(instrumentation)
	var err error
	if o.turns, err = meter.Int64Counter("interview.turns", metric.WithDescription("Answered turns by triage signal")); err != nil {
		return nil, err
	}
	if o.reprompts, err = meter.Int64Counter("interview.reprompts", metric.WithDescription("Answers that had to be repeated")); err != nil {
		return nil, err
	}
	if o.ended, err = meter.Int64Counter("interview.sessions.ended", metric.WithDescription("Finished connections by reason")); err != nil {
		return nil, err
	}
	if o.latency, err = meter.Float64Histogram("interview.turn.duration", metric.WithUnit("s"), metric.WithDescription("Time from answer received to next prompt sent")); err != nil {
		return nil, err
	}
	return o, nil
}

// Run conducts the interview for sessionID over conn until the terminal
// node is reached, the candidate disconnects or something fails. Whatever
// the exit path, the session is released from the store exactly once and
// conn is closed. Disconnects are not errors. A second connection for a
// session that is still live is closed with session.ErrSessionInUse.
func (o *Orchestrator) Run(ctx context.Context, sessionID string, conn Conn) (err error) {
	traceID := uuid.NewString()
	log := o.log.With(slog.String("session_id", sessionID), slog.String("trace_id", traceID))

	st, resumed, err := o.store.Attach(sessionID)
	if err != nil {
		return o.reject(ctx, sessionID, conn, log, err)
	}
	reason := ReasonFault

	defer func() {
		if r := recover(); r != nil {
			log.Error("interview panicked", slog.Any("panic", r))
			reason = ReasonFault
			err = fmt.Errorf("interview panicked: %v", r)
		}
		o.store.Release(sessionID, st)
		_ = conn.Close()

		bg := context.WithoutCancel(ctx)
		o.ended.Add(bg, 1, metric.WithAttributes(attribute.String("reason", reason)))
		if evErr := o.events.SessionEnded(bg, protocol.SessionEnded{
			SessionID: sessionID,
			Reason:    reason,
			NodeID:    st.CurrentNodeID(),
			Turns:     st.Turns(),
			TraceID:   traceID,
			Timestamp: time.Now().UTC(),
		}); evErr != nil {
			log.Warn("session ended event failed", slogError(evErr))
		}
		log.Info("interview ended", slog.String("reason", reason), slog.Int("turns", st.Turns()))
	}()

	log.Info("interview started", slog.String("node_id", st.CurrentNodeID()), slog.Bool("resumed", resumed))
	if evErr := o.events.SessionStarted(ctx, protocol.SessionStarted{
		SessionID: sessionID,
		NodeID:    st.CurrentNodeID(),
		Resumed:   resumed,
		TraceID:   traceID,
		Timestamp: time.Now().UTC(),
	}); evErr != nil {
		log.Warn("session started event failed", slogError(evErr))
	}

	err = o.loop(ctx, st, conn, log, traceID)
	switch {
	case err == nil:
		reason = ReasonCompleted
	case errors.Is(err, ErrDisconnected), ctx.Err() != nil:
		reason = ReasonDisconnected
		err = nil
	default:
		log.Error("interview failed", slogError(err))
	}
	return err
}

// reject turns away a connection whose session is held by another one. The
// live session is left untouched.
func (o *Orchestrator) reject(ctx context.Context, sessionID string, conn Conn, log *slog.Logger, cause error) error {
	log.Warn("connection rejected", slogError(cause))
	if err := conn.SendNotice(ctx, protocol.Notice{
		Type:      protocol.NoticeSessionInUse,
		SessionID: sessionID,
		Text:      "This interview is already open in another window.",
	}); err != nil {
		log.Debug("session in use notice failed", slogError(err))
	}
	_ = conn.Close()
	o.ended.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(attribute.String("reason", ReasonRejected)))
	return fmt.Errorf("attach session %s: %w", sessionID, cause)
}

func (o *Orchestrator) loop(ctx context.Context, st *session.State, conn Conn, log *slog.Logger, traceID string) error {
	m := &machine{state: Synthesizing, trace: func(from, to State) {
		log.Debug("state change", slog.String("from", from.String()), slog.String("to", to.String()))
	}}

	node, err := o.graph.Node(st.CurrentNodeID())
	if err != nil {
		log.Warn("session points at unknown node, ending", slog.String("node_id", st.CurrentNodeID()))
		node, err = o.graph.Node(o.graph.Terminal())
		if err != nil {
			return err
		}
		st.SetCurrentNodeID(node.ID)
	}

	if err := o.prompt(ctx, st.ID(), conn, node.Prompt, log); err != nil {
		return err
	}
	if o.graph.IsTerminal(node.ID) {
		return o.finish(ctx, st.ID(), conn, m)
	}
	if err := m.to(AwaitAnswer); err != nil {
		return err
	}

	for {
		audio, err := conn.Receive(ctx)
		if err != nil {
			return err
		}
		received := time.Now()
		if err := m.to(Transcribing); err != nil {
			return err
		}

		answer, reason := o.transcribe(ctx, st.ID(), audio, log)
		if reason != "" {
			o.reprompts.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
			if evErr := o.events.TurnReprompt(ctx, protocol.TurnReprompt{
				SessionID: st.ID(),
				NodeID:    node.ID,
				Reason:    reason,
				TraceID:   traceID,
				Timestamp: time.Now().UTC(),
			}); evErr != nil {
				log.Warn("reprompt event failed", slogError(evErr))
			}
			if err := m.to(Synthesizing); err != nil {
				return err
			}
			if err := o.prompt(ctx, st.ID(), conn, o.repromptText, log); err != nil {
				return err
			}
			if err := m.to(AwaitAnswer); err != nil {
				return err
			}
			continue
		}

		if err := m.to(Triaging); err != nil {
			return err
		}
		result := o.triage(ctx, st.ID(), node.Prompt, answer)
		o.dispatchAnalysis(st, node, answer, traceID, log)

		if err := m.to(Selecting); err != nil {
			return err
		}
		next := SelectNext(o.graph, st, result)
		st.AppendTurn(session.Turn{
			NodeID:   node.ID,
			Question: node.Prompt,
			Answer:   answer,
			Triage:   result,
			At:       time.Now().UTC(),
		})
		o.turns.Add(ctx, 1, metric.WithAttributes(attribute.String("signal", string(result.Signal))))
		log.Info("turn completed",
			slog.String("node_id", node.ID),
			slog.String("signal", string(result.Signal)),
			slog.Float64("confidence", result.Confidence),
			slog.String("next_node_id", next.ID),
		)
		if evErr := o.events.TurnCompleted(ctx, protocol.TurnCompleted{
			SessionID:  st.ID(),
			Turn:       st.Turns(),
			NodeID:     node.ID,
			Question:   node.Prompt,
			Answer:     answer,
			Signal:     string(result.Signal),
			Confidence: result.Confidence,
			NextNodeID: next.ID,
			TraceID:    traceID,
			Timestamp:  time.Now().UTC(),
		}); evErr != nil {
			log.Warn("turn event failed", slogError(evErr))
		}

		if err := m.to(Synthesizing); err != nil {
			return err
		}
		if err := o.prompt(ctx, st.ID(), conn, next.Prompt, log); err != nil {
			return err
		}
		o.latency.Record(ctx, time.Since(received).Seconds())
		node = next
		if o.graph.IsTerminal(node.ID) {
			return o.finish(ctx, st.ID(), conn, m)
		}
		if err := m.to(AwaitAnswer); err != nil {
			return err
		}
	}
}

// finish tells the candidate the interview is over. The notice is best
// effort; the candidate may already be gone.
func (o *Orchestrator) finish(ctx context.Context, sessionID string, conn Conn, m *machine) error {
	_ = conn.SendNotice(ctx, protocol.Notice{Type: protocol.NoticeInterviewEnded, SessionID: sessionID})
	return m.to(Ended)
}

// transcribe returns the answer text, or a non-empty reprompt reason when
// the audio could not be understood.
func (o *Orchestrator) transcribe(ctx context.Context, sessionID string, audio []byte, log *slog.Logger) (string, string) {
	ctx, span := o.tracer.Start(ctx, "interview.transcribe", trace.WithAttributes(
		attribute.String("session_id", sessionID),
		attribute.Int("audio_bytes", len(audio)),
	))
	defer span.End()
	if o.sttTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.sttTimeout)
		defer cancel()
	}

	res, err := o.recognizer.Transcribe(ctx, audio, o.sampleRate, o.channels, true)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transcription failed")
		log.Warn("transcription failed", slogError(err))
		return "", repromptError
	}
	if res.Text == stt.ErrorMarker {
		span.SetStatus(codes.Error, "transcription marker")
		return "", repromptError
	}
	if !res.Usable() {
		return "", repromptEmpty
	}
	return res.Text, ""
}

func (o *Orchestrator) triage(ctx context.Context, sessionID, question, answer string) session.TriageResult {
	ctx, span := o.tracer.Start(ctx, "interview.triage", trace.WithAttributes(attribute.String("session_id", sessionID)))
	defer span.End()
	res := o.triager.Triage(ctx, sessionID, question, answer)
	span.SetAttributes(
		attribute.String("signal", string(res.Signal)),
		attribute.Float64("confidence", res.Confidence),
	)
	return res
}

// dispatchAnalysis hands the turn to the deep analyzer together with the
// history recorded before this turn.
func (o *Orchestrator) dispatchAnalysis(st *session.State, node graph.Node, answer, traceID string, log *slog.Logger) {
	if o.analyzer == nil {
		return
	}
	err := o.analyzer.Submit(evaluate.Job{
		SessionID: st.ID(),
		NodeID:    node.ID,
		Question:  node.Prompt,
		Answer:    answer,
		History:   st.History(),
		TraceID:   traceID,
	})
	if err != nil {
		log.Warn("deep analysis not scheduled", slogError(err))
	}
}

// prompt synthesizes text and sends it. Synthesis failures become a notice
// to the candidate; only transport errors are returned.
func (o *Orchestrator) prompt(ctx context.Context, sessionID string, conn Conn, text string, log *slog.Logger) error {
	sctx, span := o.tracer.Start(ctx, "interview.synthesize", trace.WithAttributes(
		attribute.String("session_id", sessionID),
		attribute.Int("text_length", len(text)),
	))
	audio, err := o.speaker.Speak(sctx, sessionID, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "synthesis failed")
	}
	span.End()

	switch {
	case err != nil:
		log.Warn("synthesis failed", slogError(err))
		return conn.SendNotice(ctx, protocol.Notice{Type: protocol.NoticeSynthesisFailed, SessionID: sessionID, Text: text})
	case len(audio) == 0:
		return conn.SendNotice(ctx, protocol.Notice{Type: protocol.NoticePrompt, SessionID: sessionID, Text: text})
	default:
		return conn.SendAudio(ctx, audio)
	}
}

func slogError(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}
