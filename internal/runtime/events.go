package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/loqalabs/loqa-interview/internal/bus"
	"github.com/loqalabs/loqa-interview/internal/evaluate"
	"github.com/loqalabs/loqa-interview/internal/eventstore"
	"github.com/loqalabs/loqa-interview/internal/protocol"
)

// Event types written to the archive.
const (
	eventTurn     = "turn"
	eventReprompt = "reprompt"
	eventAnalysis = "analysis"
	eventEnded    = "ended"
)

// eventSink fans interview lifecycle events out to the bus and the event
// store. Either may be absent.
type eventSink struct {
	bus   *bus.Client
	store *eventstore.Store
	graph string
}

func (s *eventSink) SessionStarted(ctx context.Context, ev protocol.SessionStarted) error {
	return errors.Join(
		s.store.BeginSession(ctx, ev.SessionID, s.graph),
		s.bus.PublishJSON(protocol.SubjectSessionStarted, ev),
	)
}

func (s *eventSink) TurnCompleted(ctx context.Context, ev protocol.TurnCompleted) error {
	return errors.Join(
		s.store.Record(ctx, ev.SessionID, ev.TraceID, eventTurn, ev),
		s.bus.PublishJSON(protocol.SubjectTurnCompleted, ev),
	)
}

func (s *eventSink) TurnReprompt(ctx context.Context, ev protocol.TurnReprompt) error {
	return errors.Join(
		s.store.Record(ctx, ev.SessionID, ev.TraceID, eventReprompt, ev),
		s.bus.PublishJSON(protocol.SubjectTurnReprompt, ev),
	)
}

func (s *eventSink) SessionEnded(ctx context.Context, ev protocol.SessionEnded) error {
	return errors.Join(
		s.store.Record(ctx, ev.SessionID, ev.TraceID, eventEnded, ev),
		s.store.EndSession(ctx, ev.SessionID, ev.Reason, ev.Turns),
		s.bus.PublishJSON(protocol.SubjectSessionEnded, ev),
	)
}

// RecordAnalysis satisfies evaluate.Sink.
func (s *eventSink) RecordAnalysis(ctx context.Context, a evaluate.Analysis) error {
	ev := protocol.AnalysisCompleted{
		SessionID:    a.SessionID,
		NodeID:       a.NodeID,
		Question:     a.Question,
		Answer:       a.Answer,
		AnalysisText: a.Text,
		Score:        a.Score,
		LatencyMS:    a.Latency.Milliseconds(),
		TraceID:      a.TraceID,
		Timestamp:    time.Now().UTC(),
	}
	return errors.Join(
		s.store.Record(ctx, a.SessionID, a.TraceID, eventAnalysis, ev),
		s.bus.PublishJSON(protocol.SubjectAnalysisCompleted, ev),
	)
}
