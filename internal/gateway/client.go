package gateway

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/lumenworks/gemgate/internal/sessions"
	"github.com/lumenworks/gemgate/pkg/protocol"
)

const (
	// outBuffer bounds the per-client event queue. A client that falls
	// this far behind applies backpressure: the generation blocks on the
	// next event until the writer drains or the connection drops.
	outBuffer = 64

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	rateBurst = 5
)

// Client is one WebSocket connection. A writer goroutine owns the
// socket for writes; the read loop dispatches inbound frames.
type Client struct {
	id     string
	conn   *websocket.Conn
	server *Server

	out     chan protocol.StreamEvent
	done    chan struct{}
	limiter *rate.Limiter

	mu        sync.Mutex
	sessionID string

	// connCtx is cancelled when the connection drops, taking any
	// active generation with it.
	connCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func newClient(conn *websocket.Conn, s *Server) *Client {
	c := &Client{
		id:     uuid.NewString(),
		conn:   conn,
		server: s,
		out:    make(chan protocol.StreamEvent, outBuffer),
		done:   make(chan struct{}),
	}
	c.sessionID = c.id
	if rpm := s.cfg.Snapshot().Gateway.RateLimitRPM; rpm > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rateBurst)
	}
	return c
}

// run blocks until the connection drops. Disconnecting cancels any
// generation still running for this client.
func (c *Client) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.connCtx = ctx
	c.cancel = cancel
	defer cancel()

	go c.writeLoop()
	c.readLoop()

	// close releases senders blocked on the full out buffer; the wait
	// must come after or a backpressured generation deadlocks teardown.
	c.close()
	c.wg.Wait()
}

func (c *Client) close() {
	if c.cancel != nil {
		c.cancel()
	}
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	c.conn.Close()
}

func (c *Client) session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Client) setSession(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = id
}

// send queues an event for the writer, blocking while the buffer is
// full. Every event a live connection was promised gets delivered; a
// dropped connection closes done, which releases any blocked sender.
func (c *Client) send(ev protocol.StreamEvent) {
	select {
	case c.out <- ev:
	case <-c.done:
	}
}

// writeLoop owns all socket writes. Closing the connection on exit
// makes the read loop fail fast, so a dead writer tears the client down
// instead of leaving senders blocked until the pong deadline.
func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case ev := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) readLoop() {
	maxChars := c.server.cfg.Snapshot().Gateway.MaxMessageChars
	// UTF-8 plus JSON framing overhead.
	c.conn.SetReadLimit(int64(maxChars)*4 + 4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var frame protocol.InboundFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("client read error", "client", c.id, "error", err)
			}
			return
		}
		c.dispatch(frame)
	}
}

func (c *Client) dispatch(frame protocol.InboundFrame) {
	switch frame.Kind {
	case protocol.KindSend:
		c.handleSend(frame)
	case protocol.KindCancel:
		c.handleCancel()
	case protocol.KindReset:
		c.handleReset()
	case protocol.KindResume:
		c.handleResume(frame)
	default:
		c.send(protocol.ErrorEvent("unknown frame kind: " + frame.Kind))
	}
}

func (c *Client) handleSend(frame protocol.InboundFrame) {
	text := strings.TrimSpace(frame.Text)
	if text == "" {
		c.send(protocol.ErrorEvent("empty message"))
		return
	}
	if max := c.server.cfg.Snapshot().Gateway.MaxMessageChars; max > 0 && len(frame.Text) > max {
		c.send(protocol.ErrorEvent("message too long"))
		return
	}
	if c.limiter != nil && !c.limiter.Allow() {
		c.send(protocol.ErrorEvent("rate limited"))
		return
	}
	c.startGeneration(text, frame.CharacterState)
}

// startGeneration begins a run for the current session, or queues the
// message when one is already active.
func (c *Client) startGeneration(text, characterState string) {
	sid := c.session()
	genCtx, cancel := context.WithCancel(c.connCtx)

	if !c.server.sessions.StartGeneration(sid, cancel) {
		cancel()
		pos := c.server.sessions.Enqueue(sid, sessions.QueuedMessage{
			Text:           text,
			CharacterState: characterState,
			EnqueuedAt:     time.Now(),
		})
		c.send(protocol.Queued(pos))
		return
	}

	c.wg.Add(1)
	go c.generate(genCtx, sid, text, characterState)
}

func (c *Client) generate(ctx context.Context, sid, text, characterState string) {
	defer c.wg.Done()

	err := c.server.engine.Generate(ctx, sid, text, characterState, c.send)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			c.send(protocol.ErrorEvent("cancelled"))
		} else {
			slog.Error("generation failed", "session", sid, "error", err)
			c.send(protocol.ErrorEvent(err.Error()))
		}
	}
	c.server.sessions.EndGeneration(sid)

	// One at a time, FIFO. The next run gets a fresh context off the
	// connection, not the finished generation's.
	if qm, ok := c.server.sessions.DequeueNext(sid); ok && c.connCtx.Err() == nil {
		c.startGeneration(qm.Text, qm.CharacterState)
	}
}

// handleCancel trips the active generation; the run goroutine emits
// the cancelled error. Cancelling an idle session is a no-op.
func (c *Client) handleCancel() {
	if !c.server.sessions.Cancel(c.session()) {
		slog.Debug("cancel with no active generation", "client", c.id)
	}
}

func (c *Client) handleReset() {
	sid := c.session()
	c.server.sessions.Cancel(sid)
	c.server.sessions.Reset(sid)
}

func (c *Client) handleResume(frame protocol.InboundFrame) {
	if frame.SessionID == "" {
		c.send(protocol.ErrorEvent("resume requires sessionId"))
		return
	}
	c.setSession(frame.SessionID)
	history := c.server.sessions.History(frame.SessionID)
	c.send(protocol.SessionResumed(history))
	slog.Info("session resumed", "client", c.id, "session", frame.SessionID, "messages", len(history))
}
