package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	apperrors "github.com/pysuper/titan/internal/errors"
	"github.com/pysuper/titan/internal/logging"
	"github.com/pysuper/titan/internal/protocol"
)

const inboundQueueSize = 256

// Options configures a new session.
type Options struct {
	Clock             clockwork.Clock
	Loader            TargetLoader
	DefaultFPS        int
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	// AuthToken is the shared secret. When empty, any token longer than
	// ten characters is accepted.
	AuthToken string
}

// Session binds one websocket connection to its playback controller,
// inbound pipeline, and heartbeat monitor.
type Session struct {
	id     uuid.UUID
	writer *connWriter
	clock  clockwork.Clock
	logger *slog.Logger

	registry *Registry
	router   *Router
	ctrl     *controller
	opts     Options

	queue chan *protocol.Inbound

	authenticated atomic.Bool
	userMu        sync.Mutex
	userData      map[string]string

	connectedAt      time.Time
	lastActivity     atomic.Int64
	messagesReceived atomic.Int64
	bytesReceived    atomic.Int64

	// evicted marks a session removed by the registry itself; its Close
	// must not call back into the registry.
	evicted atomic.Bool

	ctx       context.Context
	cancel    context.CancelFunc
	tasks     sync.WaitGroup
	closeOnce sync.Once
	closed    chan struct{}
}

// New creates a session for an accepted connection. registry and router may
// be nil in tests.
func New(conn Conn, registry *Registry, router *Router, opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.DefaultFPS <= 0 {
		opts.DefaultFPS = 5
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:          uuid.New(),
		writer:      newConnWriter(conn),
		clock:       opts.Clock,
		registry:    registry,
		router:      router,
		opts:        opts,
		queue:       make(chan *protocol.Inbound, inboundQueueSize),
		connectedAt: opts.Clock.Now(),
		ctx:         ctx,
		cancel:      cancel,
		closed:      make(chan struct{}),
	}
	s.logger = logging.WithSession(s.id.String())
	s.lastActivity.Store(s.connectedAt.UnixNano())

	s.ctrl = newController(ctx, opts.Clock, opts.Loader, opts.DefaultFPS, s.logger, s.send, s.syncStatus)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Start launches the pipeline consumer and heartbeat monitor and greets the
// client.
func (s *Session) Start() {
	s.tasks.Add(2)
	go func() {
		defer s.tasks.Done()
		s.consume()
	}()
	go func() {
		defer s.tasks.Done()
		s.monitorLiveness()
	}()

	_ = s.send(protocol.Welcome{
		Type:       "connection_established",
		ClientID:   s.id.String(),
		ServerTime: s.clock.Now(),
		Message:    "connection established",
	})
	s.logger.Info("Session started")
}

// Receive accounts for and enqueues one raw inbound frame. Malformed JSON
// is answered with an error response without dropping the connection.
func (s *Session) Receive(data []byte) {
	s.Touch()
	s.messagesReceived.Add(1)
	s.bytesReceived.Add(int64(len(data)))

	in, err := protocol.Decode(data, s.clock.Now())
	if err != nil {
		s.logger.Warn("Dropping malformed message", "error", err)
		_ = s.send(protocol.Response{Status: "error", Message: "invalid message format"})
		return
	}

	select {
	case s.queue <- in:
	default:
		s.logger.Warn("Inbound queue full, rejecting message", "kind", in.Kind)
		_ = s.send(protocol.Response{Status: "error", Message: "message queue full"})
	}
}

// Touch records inbound activity for the liveness monitor.
func (s *Session) Touch() {
	s.lastActivity.Store(s.clock.Now().UnixNano())
}

// LastActivity returns the time of the most recent inbound traffic.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// Authenticated reports whether the session has passed the auth gate.
func (s *Session) Authenticated() bool {
	return s.authenticated.Load()
}

// Apply executes a playback command on behalf of the HTTP control plane.
func (s *Session) Apply(cmd protocol.Command, fps int, path string) Result {
	return s.ctrl.Apply(cmd, fps, path)
}

// Playback returns a snapshot of the playback state.
func (s *Session) Playback() Snapshot {
	return s.ctrl.snapshot()
}

// Send marshals and queues an outbound message.
func (s *Session) Send(v any) error {
	return s.send(v)
}

func (s *Session) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperrors.InternalError("marshal outbound message", err)
	}
	return s.writer.send(data)
}

func (s *Session) syncStatus(sc protocol.StatusChange) {
	if s.router != nil {
		s.router.SyncStatus(s, sc)
	}
}

// Close tears the session down: cancel the pacer, pipeline, and heartbeat,
// wait for them, release the registry slot, then close the transport. Must
// not be called from the pipeline or heartbeat goroutine directly; they
// spawn it instead.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.ctrl.shutdown()
		s.tasks.Wait()
		if s.registry != nil && !s.evicted.Load() {
			s.registry.Unregister(s.id)
		}
		s.writer.stop()
		close(s.closed)
		s.logger.Info("Session closed")
	})
	<-s.closed
}

// Closed returns a channel closed once teardown finishes.
func (s *Session) Closed() <-chan struct{} {
	return s.closed
}

// evict closes a session superseded by a newer connection. The registry has
// already removed it, so teardown skips the unregister step. A best-effort
// notice and a distinguishing close code are sent before the transport goes
// down, letting the old client suppress its reconnect backoff.
func (s *Session) evict() {
	s.evicted.Store(true)
	_ = s.send(protocol.ConnectionClosed{
		Type:       "connection_closed",
		Reason:     "superseded by new connection",
		ServerTime: s.clock.Now(),
	})
	s.writer.shutdown(protocol.CloseSuperseded, "superseded")
	s.Close()
}

func (s *Session) setUserData(data map[string]string) {
	s.userMu.Lock()
	s.userData = data
	s.userMu.Unlock()
}

// UserData returns a copy of the auth metadata, nil before authentication.
func (s *Session) UserData() map[string]string {
	s.userMu.Lock()
	defer s.userMu.Unlock()
	if s.userData == nil {
		return nil
	}
	out := make(map[string]string, len(s.userData))
	for k, v := range s.userData {
		out[k] = v
	}
	return out
}
