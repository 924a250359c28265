package session

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func heartbeatSession(t *testing.T, conn *fakeConn, clock clockwork.Clock) *Session {
	t.Helper()
	s := New(conn, nil, nil, Options{
		Clock:             clock,
		AuthToken:         "secret-token",
		HeartbeatInterval: 30 * time.Second,
		HeartbeatTimeout:  60 * time.Second,
	})
	t.Cleanup(s.Close)
	s.Start()
	return s
}

func sessionClosed(s *Session) bool {
	select {
	case <-s.Closed():
		return true
	default:
		return false
	}
}

func TestHeartbeatPingsOnInterval(t *testing.T) {
	conn := &fakeConn{}
	clock := clockwork.NewFakeClock()
	heartbeatSession(t, conn, clock)

	clock.BlockUntil(1)
	clock.Advance(30 * time.Second)

	ping := conn.waitForType(t, "ping")
	assert.NotEmpty(t, ping["time"])
}

func TestHeartbeatTimeoutClosesSilentSession(t *testing.T) {
	conn := &fakeConn{}
	clock := clockwork.NewFakeClock()
	s := heartbeatSession(t, conn, clock)

	// Idle exceeds interval+timeout on the fourth tick.
	for range 3 {
		clock.BlockUntil(1)
		clock.Advance(30 * time.Second)
	}
	assert.False(t, sessionClosed(s))

	clock.BlockUntil(1)
	clock.Advance(30 * time.Second)

	require.Eventually(t, func() bool {
		return sessionClosed(s) && conn.isClosed()
	}, 2*time.Second, 5*time.Millisecond)
}

func TestInboundTrafficDefersTimeout(t *testing.T) {
	conn := &fakeConn{}
	clock := clockwork.NewFakeClock()
	s := heartbeatSession(t, conn, clock)

	for range 2 {
		clock.BlockUntil(1)
		clock.Advance(30 * time.Second)
	}

	// Any inbound message counts as liveness, not just pong replies.
	s.Receive([]byte(`{"type":"event","event_name":"still-here"}`))

	for range 3 {
		clock.BlockUntil(1)
		clock.Advance(30 * time.Second)
	}
	clock.BlockUntil(1)
	assert.False(t, sessionClosed(s))

	clock.Advance(30 * time.Second)
	require.Eventually(t, func() bool {
		return sessionClosed(s)
	}, 2*time.Second, 5*time.Millisecond)
}
