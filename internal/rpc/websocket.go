package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// connState is the per-connection state machine implies:
// a request arriving outside stateOpen fails with a typed error naming the
// current state, and closing rejects every still-in-flight request with
// "Connection closed".
type connState int32

const (
	stateConnecting connState = iota
	stateOpen
	stateClosing
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateOpen:
		return "open"
	case stateClosing:
		return "closing"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// wsConn is the subset of *websocket.Conn the Connection state machine
// depends on, narrowed so the machine can be exercised against a fake in
// tests without opening a real socket.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Connection wraps one WebSocket connection's lifecycle and dispatches
// every frame it reads through the shared method table, the pipelined
// batch transport.
type Connection struct {
	ID    string
	conn  wsConn
	svc   *Service
	guard *Guard
	log   zerolog.Logger

	mu      sync.Mutex
	writeMu sync.Mutex
	state   connState
	pending map[string]struct{}
}

// NewConnection wraps conn in stateConnecting; the caller must call
// MarkOpen once the handshake is complete and the connection is ready to
// accept frames.
func NewConnection(id string, conn wsConn, svc *Service, log zerolog.Logger) *Connection {
	return &Connection{
		ID:      id,
		conn:    conn,
		svc:     svc,
		guard:   NewGuard(),
		log:     log,
		state:   stateConnecting,
		pending: make(map[string]struct{}),
	}
}

// MarkOpen transitions the connection to stateOpen, allowing frames to be
// dispatched.
func (c *Connection) MarkOpen() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateConnecting {
		c.state = stateOpen
	}
}

func (c *Connection) currentState() connState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Serve reads frames until the socket closes or ctx is cancelled,
// dispatching each frame in its own goroutine so independent frames make
// progress without blocking each other. The sub-requests within one frame
// run one after another.
func (c *Connection) Serve(ctx context.Context) error {
	defer c.Close()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, body, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}

		var frame BatchFrame
		if decodeErr := c.guard.Decode(bytes.NewReader(body), &frame); decodeErr != nil {
			c.writeFrame(BatchFrameResponse{Responses: []SubResponse{
				{Error: AsError(decodeErr)},
			}})
			continue
		}
		if frame.ID == "" {
			frame.ID = uuid.NewString()
		}

		if st := c.currentState(); st != stateOpen {
			c.writeFrame(BatchFrameResponse{ID: frame.ID, Responses: []SubResponse{
				{Error: NewError(CodeConflict, "connection is %s, not open", st)},
			}})
			continue
		}

		c.mu.Lock()
		c.pending[frame.ID] = struct{}{}
		c.mu.Unlock()

		wg.Add(1)
		go func(f BatchFrame) {
			defer wg.Done()
			defer func() {
				c.mu.Lock()
				delete(c.pending, f.ID)
				c.mu.Unlock()
			}()

			resp := ExecuteBatch(ctx, c.svc, f)

			if c.currentState() == stateClosed {
				// Close already rejected this frame's id with "Connection
				// closed"; don't also deliver a stale real response.
				return
			}
			c.writeFrame(resp)
		}(frame)
	}
}

// Close transitions to stateClosing, rejects every request still in
// flight with "Connection closed", then closes the
// underlying socket.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = stateClosing
	pendingIDs := make([]string, 0, len(c.pending))
	for id := range c.pending {
		pendingIDs = append(pendingIDs, id)
	}
	c.mu.Unlock()

	for _, id := range pendingIDs {
		c.writeFrame(BatchFrameResponse{ID: id, Responses: []SubResponse{
			{ID: id, Error: NewError(CodeRPCError, "Connection closed")},
		}})
	}

	c.mu.Lock()
	c.state = stateClosed
	c.mu.Unlock()

	return c.conn.Close()
}

func (c *Connection) writeFrame(resp BatchFrameResponse) {
	body, err := json.Marshal(resp)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to marshal batch frame response")
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, body); err != nil {
		c.log.Debug().Err(err).Str("connection", c.ID).Msg("write failed, connection likely gone")
	}
}

// upgrader is shared across all WebSocket upgrades; origin checking is
// left to whatever reverse proxy/auth layer sits in front of this
// service, trusting the network boundary rather than re-checking origin
// here.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// WebSocketHandler upgrades an HTTP request to a WebSocket and serves it
// until the client disconnects or the server shuts down.
func WebSocketHandler(svc *Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}
		c := NewConnection(uuid.NewString(), conn, svc, log)
		c.MarkOpen()
		if err := c.Serve(r.Context()); err != nil {
			log.Debug().Err(err).Str("connection", c.ID).Msg("websocket connection closed")
		}
	}
}
