package eventstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-interview/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openStore(t *testing.T, cfg config.EventStoreConfig) *Store {
	t.Helper()
	es, err := Open(context.Background(), cfg, newLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = es.Close() })
	return es
}

func TestOpenEphemeral(t *testing.T) {
	ctx := context.Background()
	es := openStore(t, config.EventStoreConfig{RetentionMode: "ephemeral"})

	require.NoError(t, es.Ensure())
	require.NoError(t, es.Record(ctx, "s", "", "turn", map[string]int{"n": 1}), "ephemeral record is a no-op")
	events, err := es.ListSessionEvents(ctx, "s", 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestAppendAndQuery(t *testing.T) {
	ctx := context.Background()
	es := openStore(t, config.EventStoreConfig{Path: filepath.Join(t.TempDir(), "events.db"), RetentionMode: "session"})

	sessionID := "session-123"
	require.NoError(t, es.BeginSession(ctx, sessionID, "python-junior"))
	require.NoError(t, es.Record(ctx, sessionID, "trace-1", "turn", map[string]string{"answer": "hello"}))

	events, err := es.ListSessionEvents(ctx, sessionID, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.JSONEq(t, `{"answer":"hello"}`, string(events[0].Payload))
	assert.Equal(t, "trace-1", events[0].TraceID)
	assert.Equal(t, "turn", events[0].Type)
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	es := openStore(t, config.EventStoreConfig{Path: filepath.Join(t.TempDir(), "events.db"), RetentionMode: "persistent"})

	require.NoError(t, es.BeginSession(ctx, "abc", "g"))
	require.NoError(t, es.EndSession(ctx, "abc", "completed", 2))

	got, ok, err := es.GetSession(ctx, "abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, got.Turns)
	assert.Equal(t, "completed", got.EndReason)
	assert.False(t, got.EndedAt.IsZero())

	_, ok, err = es.GetSession(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPruneByDaysAndSessions(t *testing.T) {
	ctx := context.Background()
	es := openStore(t, config.EventStoreConfig{
		Path:          filepath.Join(t.TempDir(), "events.db"),
		RetentionMode: "persistent",
		RetentionDays: 1,
		MaxSessions:   1,
	})

	es.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	require.NoError(t, es.BeginSession(ctx, "old-session", "g"))
	require.NoError(t, es.AppendEvent(ctx, Event{SessionID: "old-session", Type: "note"}))

	es.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	require.NoError(t, es.BeginSession(ctx, "new-session", "g"))
	require.NoError(t, es.Prune(ctx))

	events, err := es.ListSessionEvents(ctx, "old-session", 10)
	require.NoError(t, err)
	assert.Empty(t, events, "old session pruned")

	_, ok, err := es.GetSession(ctx, "new-session")
	require.NoError(t, err)
	assert.True(t, ok, "new session kept")
}
