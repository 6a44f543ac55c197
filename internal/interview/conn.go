package interview

import (
	"context"
	"errors"

	"github.com/loqalabs/loqa-interview/internal/protocol"
)

// ErrDisconnected is returned by a Conn once the candidate has gone away.
var ErrDisconnected = errors.New("candidate disconnected")

// Conn is the orchestrator's view of one candidate connection.
type Conn interface {
	// Receive blocks until the next audio payload arrives.
	Receive(ctx context.Context) ([]byte, error)
	SendAudio(ctx context.Context, audio []byte) error
	SendNotice(ctx context.Context, n protocol.Notice) error
	Close() error
}

// Events receives the lifecycle of every interview. Implementations must be
// safe for concurrent use; failures are logged and otherwise ignored.
type Events interface {
	SessionStarted(ctx context.Context, ev protocol.SessionStarted) error
	TurnCompleted(ctx context.Context, ev protocol.TurnCompleted) error
	TurnReprompt(ctx context.Context, ev protocol.TurnReprompt) error
	SessionEnded(ctx context.Context, ev protocol.SessionEnded) error
}

type nopEvents struct{}

func (nopEvents) SessionStarted(context.Context, protocol.SessionStarted) error { return nil }
func (nopEvents) TurnCompleted(context.Context, protocol.TurnCompleted) error   { return nil }
func (nopEvents) TurnReprompt(context.Context, protocol.TurnReprompt) error     { return nil }
func (nopEvents) SessionEnded(context.Context, protocol.SessionEnded) error     { return nil }
