// Package client implements a playback viewer client with automatic
// reconnection. Dropped connections are retried with exponential backoff; a
// deliberate supersession close is retried after a short fixed settle delay
// instead, since the server is handing the slot over rather than failing.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/pysuper/titan/internal/protocol"
)

// State is the connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosing
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
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

const (
	defaultMaxAttempts = 5
	defaultBackoffBase = time.Second
	defaultBackoffMax  = 30 * time.Second
	defaultSettleDelay = 500 * time.Millisecond
	dialTimeout        = 10 * time.Second
)

// Callbacks are invoked from the read loop; they must not block.
type Callbacks struct {
	OnConnected    func()
	OnDisconnected func(err error)
	OnFrame        func(index, total int, raw []byte)
	OnStatus       func(status string, currentFrame int)
}

// Options configures a viewer client.
type Options struct {
	URL   string
	Token string

	// AutoPlay issues play_video when the server announces a ready target.
	AutoPlay bool

	Reconnect   bool
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	SettleDelay time.Duration

	Clock     clockwork.Clock
	Dialer    *websocket.Dialer
	Callbacks Callbacks
}

// Client maintains one logical viewer connection across reconnects.
type Client struct {
	opts   Options
	clock  clockwork.Clock
	dialer *websocket.Dialer
	logger *slog.Logger

	state   atomic.Int32
	closing atomic.Bool

	mu   sync.Mutex
	conn *websocket.Conn
}

// New creates a client; Run starts it.
func New(opts Options) *Client {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = defaultBackoffBase
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = defaultBackoffMax
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = defaultSettleDelay
	}

	return &Client{
		opts:   opts,
		clock:  opts.Clock,
		dialer: opts.Dialer,
		logger: slog.Default().With("component", "viewer_client"),
	}
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Run connects and keeps the connection alive until the context is
// cancelled, Close is called, or the retry budget is exhausted.
func (c *Client) Run(ctx context.Context) error {
	attempt := 0
	for {
		if attempt == 0 {
			c.setState(StateConnecting)
		} else {
			c.setState(StateReconnecting)
		}

		connected, err := c.runOnce(ctx)
		c.setState(StateDisconnected)
		if cb := c.opts.Callbacks.OnDisconnected; cb != nil && connected {
			cb(err)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if c.closing.Load() {
			return nil
		}
		if !c.opts.Reconnect {
			return err
		}
		if connected {
			attempt = 0
		}

		var delay time.Duration
		if isSuperseded(err) {
			// The server handed our slot to a newer connection; no
			// exponential backoff, just let the handover settle.
			c.logger.Info("Connection superseded, reconnecting after settle delay")
			delay = c.opts.SettleDelay
		} else {
			attempt++
			if attempt > c.opts.MaxAttempts {
				return fmt.Errorf("reconnect attempts exhausted after %d tries: %w", c.opts.MaxAttempts, err)
			}
			delay = backoffDelay(c.opts.BackoffBase, c.opts.BackoffMax, attempt)
			c.logger.Info("Reconnecting", "attempt", attempt, "delay", delay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.clock.After(delay):
		}
	}
}

// runOnce performs one dial-read-until-error cycle. connected reports
// whether the dial succeeded, which resets the retry budget.
func (c *Client) runOnce(ctx context.Context) (bool, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	conn, resp, err := c.dialer.DialContext(dialCtx, c.opts.URL, nil)
	cancel()
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return false, err
	}

	c.setConn(conn)
	defer func() {
		c.setConn(nil)
		_ = conn.Close()
	}()

	c.setState(StateConnected)
	if cb := c.opts.Callbacks.OnConnected; cb != nil {
		cb()
	}

	if c.opts.Token != "" {
		if err := c.Send(map[string]string{"type": "auth", "token": c.opts.Token}); err != nil {
			return true, err
		}
	}

	// Unblock the read loop when the context goes away.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-watchDone:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		c.handle(data)
	}
}

func (c *Client) handle(data []byte) {
	var env struct {
		Type         string `json:"type"`
		Status       string `json:"status"`
		Message      string `json:"message"`
		FrameIndex   int    `json:"frame_index"`
		TotalFrames  int    `json:"total_frames"`
		CurrentFrame int    `json:"current_frame"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn("Dropping unparseable server message", "error", err)
		return
	}

	switch env.Type {
	case "ping":
		_ = c.Send(map[string]string{"type": "pong"})
	case "pong":
	case "frame_data":
		if cb := c.opts.Callbacks.OnFrame; cb != nil {
			cb(env.FrameIndex, env.TotalFrames, data)
		}
	case "status_change":
		if cb := c.opts.Callbacks.OnStatus; cb != nil {
			cb(env.Status, env.CurrentFrame)
		}
		if env.Status == "ready" && c.opts.AutoPlay {
			_ = c.SendControl("play_video", 0)
		}
	case "auth_failed":
		c.logger.Warn("Authentication rejected", "message", env.Message)
	case "connection_closed":
		c.logger.Info("Server announced connection close", "reason", env.Message)
	}
}

// Send marshals and writes one message. Writes are serialized, since pong
// replies race with caller-issued commands.
func (c *Client) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// SendControl issues a playback control command.
func (c *Client) SendControl(action string, fps int) error {
	msg := map[string]any{"action": action}
	if fps > 0 {
		msg["fps"] = fps
	}
	return c.Send(msg)
}

// SetTarget points the server at a new playback target.
func (c *Client) SetTarget(videoPath string) error {
	return c.Send(map[string]any{"action": "set_video_path", "video_path": videoPath})
}

// Close stops the client; a running Run returns nil.
func (c *Client) Close() {
	c.closing.Store(true)
	c.setState(StateClosing)
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.mu.Unlock()
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

// backoffDelay grows the base delay by half per attempt, capped at max.
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	d := float64(base)
	for i := 1; i < attempt; i++ {
		d *= 1.5
		if d >= float64(max) {
			return max
		}
	}
	if d > float64(max) {
		return max
	}
	return time.Duration(d)
}

func isSuperseded(err error) bool {
	return websocket.IsCloseError(err, protocol.CloseSuperseded)
}
