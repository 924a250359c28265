package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startedSession(t *testing.T, conn *fakeConn) *Session {
	t.Helper()
	s := newTestSession(t, conn, clockwork.NewRealClock())
	s.Start()
	return s
}

func authenticate(t *testing.T, s *Session, conn *fakeConn) {
	t.Helper()
	s.Receive([]byte(`{"type":"auth","token":"secret-token"}`))
	conn.waitForType(t, "auth_success")
	require.True(t, s.Authenticated())
}

func TestPingAllowedBeforeAuth(t *testing.T) {
	conn := &fakeConn{}
	s := startedSession(t, conn)

	s.Receive([]byte(`{"type":"ping"}`))
	conn.waitForType(t, "pong")
	assert.False(t, s.Authenticated())
}

func TestControlRejectedBeforeAuth(t *testing.T) {
	conn := &fakeConn{}
	s := startedSession(t, conn)

	s.Receive([]byte(`{"action":"play_video"}`))
	conn.waitForType(t, "auth_required")
	assert.Empty(t, conn.frameIndexes(t))
}

func TestAuthSuccess(t *testing.T) {
	conn := &fakeConn{}
	s := startedSession(t, conn)

	s.Receive([]byte(`{"type":"auth","token":"secret-token"}`))
	result := conn.waitForType(t, "auth_success")

	assert.Equal(t, "success", result["status"])
	assert.True(t, s.Authenticated())

	data := s.UserData()
	require.NotNil(t, data)
	assert.Equal(t, s.ID().String(), data["client_id"])
}

func TestAuthFailure(t *testing.T) {
	conn := &fakeConn{}
	s := startedSession(t, conn)

	s.Receive([]byte(`{"type":"auth","token":"wrong"}`))
	conn.waitForType(t, "auth_failed")
	assert.False(t, s.Authenticated())
	assert.Nil(t, s.UserData())
}

func TestDemoTokenRule(t *testing.T) {
	t.Run("long token accepted", func(t *testing.T) {
		conn := &fakeConn{}
		s := New(conn, nil, nil, Options{Clock: clockwork.NewRealClock()})
		t.Cleanup(s.Close)
		s.Start()

		s.Receive([]byte(`{"type":"auth","token":"0123456789a"}`))
		conn.waitForType(t, "auth_success")
	})

	t.Run("short token rejected", func(t *testing.T) {
		conn := &fakeConn{}
		s := New(conn, nil, nil, Options{Clock: clockwork.NewRealClock()})
		t.Cleanup(s.Close)
		s.Start()

		s.Receive([]byte(`{"type":"auth","token":"short"}`))
		conn.waitForType(t, "auth_failed")
	})
}

func TestControlFlowsThroughPipeline(t *testing.T) {
	conn := &fakeConn{}
	s := startedSession(t, conn)
	authenticate(t, s, conn)
	loadDataset(s, newTestDataset(t, 2))

	s.Receive([]byte(`{"action":"play_video","fps":50}`))

	conn.waitForType(t, "frame_data")
	waitForStatus(t, conn, "completed")
	assert.Equal(t, []int{0, 1}, conn.frameIndexes(t))
}

func TestEventsAckedInOrder(t *testing.T) {
	conn := &fakeConn{}
	s := startedSession(t, conn)
	authenticate(t, s, conn)

	for i := range 3 {
		s.Receive(fmt.Appendf(nil, `{"type":"event","event_name":"e%d"}`, i))
	}

	require.Eventually(t, func() bool {
		return len(conn.ofType(t, "event_processed")) == 3
	}, 2*time.Second, 5*time.Millisecond)

	acks := conn.ofType(t, "event_processed")
	for i, ack := range acks {
		assert.Equal(t, fmt.Sprintf("event e%d processed", i), ack["message"])
	}
}

func TestMalformedJSONAnswered(t *testing.T) {
	conn := &fakeConn{}
	s := startedSession(t, conn)

	s.Receive([]byte(`{not json`))

	require.Eventually(t, func() bool {
		for _, m := range conn.decoded(t) {
			if m["status"] == "error" && m["message"] == "invalid message format" {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	assert.False(t, conn.isClosed())
}

func TestUnknownTypeWarns(t *testing.T) {
	conn := &fakeConn{}
	s := startedSession(t, conn)
	authenticate(t, s, conn)

	s.Receive([]byte(`{"type":"bogus"}`))

	require.Eventually(t, func() bool {
		for _, m := range conn.decoded(t) {
			if m["status"] == "warning" {
				return m["message"] == "unknown message type: bogus"
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}

func TestUnknownCommandRejected(t *testing.T) {
	conn := &fakeConn{}
	s := startedSession(t, conn)
	authenticate(t, s, conn)

	s.Receive([]byte(`{"type":"command","command":"nope"}`))

	require.Eventually(t, func() bool {
		for _, m := range conn.decoded(t) {
			if m["status"] == "error" && m["message"] == "unknown command: nope" {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStatsCommand(t *testing.T) {
	conn := &fakeConn{}
	s := startedSession(t, conn)
	authenticate(t, s, conn)

	s.Receive([]byte(`{"type":"command","command":"stats"}`))

	result := conn.waitForType(t, "stats")
	stats, ok := result["stats"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, s.ID().String(), stats["client_id"])
	assert.Equal(t, true, stats["authenticated"])
}

func TestGetStatusCommand(t *testing.T) {
	conn := &fakeConn{}
	s := startedSession(t, conn)
	authenticate(t, s, conn)
	loadDataset(s, newTestDataset(t, 4))

	s.Receive([]byte(`{"type":"command","command":"get_status"}`))

	result := conn.waitForType(t, "status_update")
	assert.Equal(t, "ready", result["video_status"])
	assert.Equal(t, float64(4), result["total_frames"])
}

func TestClearQueueCommand(t *testing.T) {
	conn := &fakeConn{}
	s := startedSession(t, conn)
	authenticate(t, s, conn)

	s.Receive([]byte(`{"type":"command","command":"clear_queue"}`))

	require.Eventually(t, func() bool {
		for _, m := range conn.decoded(t) {
			if m["message"] == "queue cleared" {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}
