// Package realtime maintains the client's websocket link to the server and
// fans incoming events out to subscribers. The link is best effort: sync
// correctness never depends on it, events only make convergence faster.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sethvargo/go-retry"

	"github.com/KossiPascal/atlas-kanban/internal/common"
	"github.com/KossiPascal/atlas-kanban/internal/logging"
)

// State is the connection lifecycle phase.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Message is the wire frame: an event name like "tasks:updated" plus an
// arbitrary JSON body.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Handler receives the data of one event occurrence.
type Handler func(data json.RawMessage)

// Channel is a reconnecting websocket client. Subscriptions survive
// reconnects; messages emitted while disconnected are dropped.
type Channel struct {
	url   string
	creds interface {
		AccessToken(ctx context.Context) (string, error)
	}
	log logging.Logger

	mu       sync.RWMutex
	state    State
	conn     *websocket.Conn
	handlers map[string][]Handler

	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a Channel for the given websocket URL. creds supplies the
// bearer token sent on dial.
func New(wsURL string, creds interface {
	AccessToken(ctx context.Context) (string, error)
}, log logging.Logger) *Channel {
	return &Channel{
		url:      wsURL,
		creds:    creds,
		log:      log,
		handlers: make(map[string][]Handler),
	}
}

// State returns the current connection phase.
func (c *Channel) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// On registers a handler for an event name. Handlers run on the read loop
// goroutine and must not block.
func (c *Channel) On(event string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = append(c.handlers[event], h)
}

// Connect starts the connection loop. It returns immediately; the loop dials,
// reads until failure, and redials with capped exponential backoff until
// Disconnect or ctx cancellation.
func (c *Channel) Connect(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		cancel()
		return
	}
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.run(ctx)
}

func (c *Channel) run(ctx context.Context) {
	defer close(c.done)
	defer c.setState(StateDisconnected)

	for ctx.Err() == nil {
		// One retry.Do per session: a successful dial that later drops
		// returns nil, ending this schedule, and the next iteration dials
		// again from the one-second base.
		backoff := retry.WithCappedDuration(30*time.Second, retry.NewExponential(time.Second))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			if err := c.connectOnce(ctx); err != nil {
				c.log.Debug(ctx, "websocket reconnect pending", "error", err)
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil && ctx.Err() == nil {
			c.log.Warn(ctx, "websocket loop ended", "error", err)
		}
	}
}

// connectOnce dials, then reads frames until the connection drops. A nil-ish
// session (dial ok, later drop) returns nil so the retry schedule resets.
func (c *Channel) connectOnce(ctx context.Context) error {
	c.setState(StateConnecting)

	token, err := c.creds.AccessToken(ctx)
	if err != nil {
		return err
	}
	header := http.Header{}
	if token != "" {
		header.Set(common.AuthHeaderName, common.BearerPrefix+token)
	}

	conn, _, err := websocket.Dial(ctx, c.url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("%w: %s", common.ErrUnavailable, err)
	}
	conn.SetReadLimit(1 << 20)

	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	c.mu.Unlock()
	c.log.Info(ctx, "websocket connected", "url", c.url)

	err = c.readLoop(ctx, conn)

	c.mu.Lock()
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if ctx.Err() != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "client shutdown")
		return nil
	}
	c.log.Warn(ctx, "websocket disconnected", "error", err)
	return nil
}

func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Debug(ctx, "dropping malformed frame", "error", err)
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Channel) dispatch(msg Message) {
	c.mu.RLock()
	handlers := append([]Handler(nil), c.handlers[msg.Event]...)
	// "table:*" subscribers see every event of that table.
	if i := strings.IndexByte(msg.Event, ':'); i > 0 {
		handlers = append(handlers, c.handlers[msg.Event[:i]+":*"]...)
	}
	c.mu.RUnlock()

	for _, h := range handlers {
		h(msg.Data)
	}
}

// Emit sends an event frame to the server. While disconnected it returns
// common.ErrUnavailable; callers treat that as a dropped hint, not a failure.
func (c *Channel) Emit(ctx context.Context, event string, data any) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return common.ErrUnavailable
	}

	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode event data: %w", err)
	}
	frame, err := json.Marshal(Message{Event: event, Data: body})
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
		return fmt.Errorf("%w: %s", common.ErrUnavailable, err)
	}
	return nil
}

// Disconnect stops the connection loop and closes the link. Safe to call
// more than once.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.cancel = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
