// ABOUTME: Reconnecting websocket client for the platform's live event socket.
// ABOUTME: Handles heartbeat, exponential reconnect backoff, and typed frame dispatch.

package duplex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// DefaultHeartbeatInterval is how often a liveness probe is sent while open.
	DefaultHeartbeatInterval = 30 * time.Second
	// DefaultReconnectBase is the delay before the first reconnect attempt.
	DefaultReconnectBase = time.Second
	// DefaultReconnectMax caps the reconnect delay.
	DefaultReconnectMax = 30 * time.Second

	defaultTokenParam = "token"
	writeTimeout      = 10 * time.Second
	handshakeTimeout  = 10 * time.Second
)

// Frame types the channel itself produces or consumes.
const (
	// EventOpen is dispatched locally when a socket opens.
	EventOpen = "open"
	// EventConnected is the platform's own confirmation frame. The channel never
	// produces it, so handlers run once per confirmation.
	EventConnected = "connected"
	// EventDisconnected is dispatched locally when a socket session ends.
	EventDisconnected = "disconnected"
	// EventPing is the outbound liveness probe.
	EventPing = "ping"
	// EventPong is the platform's answer to a probe.
	EventPong = "pong"
)

// State is the connection state of a Channel.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Frame is one wire message: {"type": ..., "data": ...}.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Decode unmarshals the frame's data into v.
func (f Frame) Decode(v any) error {
	if len(f.Data) == 0 {
		return errors.New("frame has no data")
	}
	return json.Unmarshal(f.Data, v)
}

type outboundFrame struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Config holds the settings for a Channel.
type Config struct {
	// URL is the websocket endpoint, e.g. "wss://platform.example/ws".
	URL string
	// Token is added to the URL query under TokenParam.
	Token      string
	TokenParam string

	HeartbeatInterval time.Duration
	ReconnectBase     time.Duration
	ReconnectMax      time.Duration

	// Dialer overrides the default websocket dialer.
	Dialer *websocket.Dialer
}

// Channel is a single logical socket connection with automatic recovery.
// Create one per integration and pass it by handle; it is safe for concurrent use.
type Channel struct {
	cfg      Config
	logger   *slog.Logger
	handlers *registry
	state    atomic.Int32

	mu       sync.Mutex
	conn     *websocket.Conn
	cancel   context.CancelFunc
	done     chan struct{}
	attempts int

	// writeMu serializes writes; gorilla allows one concurrent writer.
	writeMu sync.Mutex

	// onSchedule observes every scheduled reconnect.
	onSchedule func(attempt int, delay time.Duration)
}

// New creates a Channel. Zero durations fall back to the package defaults.
func New(cfg Config, logger *slog.Logger) *Channel {
	if cfg.TokenParam == "" {
		cfg.TokenParam = defaultTokenParam
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.ReconnectBase <= 0 {
		cfg.ReconnectBase = DefaultReconnectBase
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = DefaultReconnectMax
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Channel{
		cfg:      cfg,
		logger:   logger.With("component", "duplex"),
		handlers: newRegistry(),
	}
}

// State returns the current connection state.
func (c *Channel) State() State {
	return State(c.state.Load())
}

func (c *Channel) setState(s State) {
	c.state.Store(int32(s))
}

// On registers handler for frames of eventType and returns a function that
// removes exactly that registration.
func (c *Channel) On(eventType string, handler Handler) func() {
	return c.handlers.add(eventType, handler)
}

// Connect starts the connection loop in the background and returns immediately.
// Results are delivered through the "open" and "disconnected" events.
// Calling Connect on a running channel does nothing.
func (c *Channel) Connect(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.attempts = 0
	c.setState(StateConnecting)

	go c.run(ctx, c.done)
}

// Disconnect stops the heartbeat, cancels any pending reconnect, and closes the
// socket. It blocks until the connection loop has exited, so it must not be
// called from inside a Handler.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	c.logger.Info("disconnected")
}

// Send writes one frame if the socket is open. When it is not, the frame is
// dropped and Send reports false; delivery is best effort.
func (c *Channel) Send(eventType string, data any) bool {
	payload, err := json.Marshal(outboundFrame{Type: eventType, Data: data})
	if err != nil {
		c.logger.Warn("failed to encode frame", "event_type", eventType, "error", err)
		return false
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		c.logger.Debug("socket not open, dropping frame", "event_type", eventType)
		return false
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.logger.Warn("failed to write frame", "event_type", eventType, "error", err)
		return false
	}
	return true
}

// run owns the reconnect loop. Exactly one run goroutine exists per Connect, so
// reconnect waits never overlap.
func (c *Channel) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer c.setState(StateDisconnected)

	for {
		c.session(ctx)
		if ctx.Err() != nil {
			return
		}

		attempt, delay := c.nextDelay()
		c.setState(StateReconnecting)
		if c.onSchedule != nil {
			c.onSchedule(attempt, delay)
		}
		c.logger.Info("reconnect scheduled", "attempt", attempt, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		c.setState(StateConnecting)
	}
}

// nextDelay returns the delay for the current attempt and advances the counter.
func (c *Channel) nextDelay() (int, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	attempt := c.attempts
	c.attempts++
	return attempt, Backoff(attempt, c.cfg.ReconnectBase, c.cfg.ReconnectMax)
}

// session dials once and serves the socket until it closes.
func (c *Channel) session(ctx context.Context) {
	target, err := c.dialURL()
	if err != nil {
		c.logger.Error("invalid socket url", "error", err)
		return
	}

	conn, _, err := c.cfg.Dialer.DialContext(ctx, target, nil)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("socket dial failed", "error", err)
		}
		return
	}

	c.mu.Lock()
	c.conn = conn
	c.attempts = 0
	c.mu.Unlock()
	c.setState(StateConnected)
	c.logger.Info("socket connected", "url", c.cfg.URL)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.heartbeat(ctx, conn, stop)
	}()

	c.Send(EventPing, nil)
	c.dispatch(Frame{Type: EventOpen})

	c.readLoop(ctx, conn)

	close(stop)
	wg.Wait()

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close()

	c.dispatch(Frame{Type: EventDisconnected})
}

// heartbeat sends periodic probes and closes the socket when ctx ends, which
// unblocks the read loop.
func (c *Channel) heartbeat(ctx context.Context, conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			c.closeConn(conn)
			return
		case <-ticker.C:
			c.Send(EventPing, nil)
		}
	}
}

func (c *Channel) closeConn(conn *websocket.Conn) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = conn.Close()
}

func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.logger.Warn("socket read error", "error", err)
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Debug("dropping malformed frame", "size", len(data))
			continue
		}
		c.dispatch(frame)
	}
}

func (c *Channel) dispatch(frame Frame) {
	for _, h := range c.handlers.snapshot(frame.Type) {
		h(frame)
	}
}

func (c *Channel) dialURL() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", err
	}
	if c.cfg.Token != "" {
		q := u.Query()
		q.Set(c.cfg.TokenParam, c.cfg.Token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
