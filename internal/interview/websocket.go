package interview

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/loqalabs/loqa-interview/internal/protocol"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
	pongTimeout  = 60 * time.Second
)

type frame struct {
	data []byte
	err  error
}

// wsConn adapts a gorilla websocket to Conn. A reader goroutine turns
// incoming binary frames into a channel so Receive can honour ctx. Text
// frames from the candidate are ignored.
type wsConn struct {
	ws     *websocket.Conn
	frames chan frame
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	log       *slog.Logger
}

// NewWebSocketConn starts the reader and keepalive goroutines for ws.
// Messages larger than maxBytes terminate the connection.
func NewWebSocketConn(ws *websocket.Conn, maxBytes int, log *slog.Logger) Conn {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if maxBytes > 0 {
		ws.SetReadLimit(int64(maxBytes))
	}
	c := &wsConn{
		ws:     ws,
		frames: make(chan frame),
		done:   make(chan struct{}),
		log:    log,
	}
	_ = ws.SetReadDeadline(time.Now().Add(pongTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	go c.readLoop()
	go c.pingLoop()
	return c
}

func (c *wsConn) readLoop() {
	defer close(c.frames)
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				c.log.Debug("websocket read ended", slogError(err))
			}
			select {
			case c.frames <- frame{err: ErrDisconnected}:
			case <-c.done:
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongTimeout))
		if kind != websocket.BinaryMessage {
			continue
		}
		select {
		case c.frames <- frame{data: data}:
		case <-c.done:
			return
		}
	}
}

func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *wsConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrDisconnected
	case f, ok := <-c.frames:
		if !ok {
			return nil, ErrDisconnected
		}
		return f.data, f.err
	}
}

func (c *wsConn) SendAudio(ctx context.Context, audio []byte) error {
	return c.write(ctx, websocket.BinaryMessage, audio)
}

func (c *wsConn) SendNotice(ctx context.Context, n protocol.Notice) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	_ = c.ws.SetWriteDeadline(writeDeadline(ctx))
	if err := c.ws.WriteJSON(n); err != nil {
		return disconnected(err)
	}
	return nil
}

func (c *wsConn) write(ctx context.Context, kind int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	_ = c.ws.SetWriteDeadline(writeDeadline(ctx))
	if err := c.ws.WriteMessage(kind, data); err != nil {
		return disconnected(err)
	}
	return nil
}

// Close sends a normal close frame and releases the socket.
func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

func writeDeadline(ctx context.Context) time.Time {
	d := time.Now().Add(writeTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(d) {
		return dl
	}
	return d
}

func disconnected(err error) error {
	return errors.Join(ErrDisconnected, err)
}

// WebSocketHandler upgrades candidate connections and runs an interview on
// each one.
type WebSocketHandler struct {
	orch     *Orchestrator
	upgrader websocket.Upgrader
	maxBytes int
	log      *slog.Logger

	ctx context.Context
	wg  sync.WaitGroup
}

// NewWebSocketHandler serves interviews until ctx is cancelled. Cancelling
// ctx ends every live interview.
func NewWebSocketHandler(ctx context.Context, orch *Orchestrator, maxBytes int, log *slog.Logger) *WebSocketHandler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &WebSocketHandler{
		orch: orch,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32 * 1024,
			WriteBufferSize: 32 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		maxBytes: maxBytes,
		log:      log.With(slog.String("component", "websocket")),
		ctx:      ctx,
	}
}

// Serve handles one upgrade request for sessionID and blocks until that
// interview ends.
func (h *WebSocketHandler) Serve(w http.ResponseWriter, r *http.Request, sessionID string) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		http.Error(w, "session id required", http.StatusBadRequest)
		return
	}
	h.wg.Add(1)
	defer h.wg.Done()
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", slog.String("session_id", sessionID), slogError(err))
		return
	}

	conn := NewWebSocketConn(ws, h.maxBytes, h.log.With(slog.String("session_id", sessionID)))
	_ = h.orch.Run(h.ctx, sessionID, conn)
}

// Wait blocks until every interview started by Serve has returned.
func (h *WebSocketHandler) Wait() {
	h.wg.Wait()
}
