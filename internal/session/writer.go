package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	apperrors "github.com/pysuper/titan/internal/errors"
)

const (
	sendBufferSize = 64
	writeTimeout   = 5 * time.Second
)

// Conn is the transport surface a session writes to. *websocket.Conn
// satisfies it; tests supply fakes.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// connWriter serializes all outbound writes for one connection through a
// single goroutine, so the pacer, pipeline, heartbeat, and router never
// write concurrently. A full buffer or a failed write marks the writer
// dead; callers see the failure on their next send.
type connWriter struct {
	conn   Conn
	sendCh chan []byte
	done   chan struct{}
	exited chan struct{}

	failed    atomic.Bool
	closeOnce sync.Once
}

func newConnWriter(conn Conn) *connWriter {
	w := &connWriter{
		conn:   conn,
		sendCh: make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *connWriter) run() {
	defer close(w.exited)
	for {
		select {
		case <-w.done:
			return
		case data := <-w.sendCh:
			_ = w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				w.failed.Store(true)
				return
			}
		}
	}
}

// send queues data for delivery. It never blocks: when the buffer is full
// the writer is marked failed and a transport error is returned, so a slow
// or dead peer aborts the pacer instead of stalling it.
func (w *connWriter) send(data []byte) error {
	if w.failed.Load() {
		return apperrors.TransportError("connection write failed", nil)
	}
	select {
	case <-w.done:
		return apperrors.TransportError("connection closed", nil)
	default:
	}
	select {
	case w.sendCh <- data:
		return nil
	case <-w.done:
		return apperrors.TransportError("connection closed", nil)
	default:
		w.failed.Store(true)
		return apperrors.TransportError("send buffer full", nil)
	}
}

// stop shuts the writer down and closes the transport.
func (w *connWriter) stop() {
	w.shutdown(0, "")
}

// shutdown flushes queued messages, optionally sends a close frame with the
// given code, and closes the transport.
func (w *connWriter) shutdown(closeCode int, reason string) {
	w.closeOnce.Do(func() {
		close(w.done)
		<-w.exited
		w.flush()
		if closeCode != 0 {
			payload := websocket.FormatCloseMessage(closeCode, reason)
			_ = w.conn.WriteControl(websocket.CloseMessage, payload, time.Now().Add(writeTimeout))
		}
		_ = w.conn.Close()
	})
}

// flush drains whatever was queued before the run loop exited.
func (w *connWriter) flush() {
	for {
		select {
		case data := <-w.sendCh:
			if w.failed.Load() {
				continue
			}
			_ = w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				w.failed.Store(true)
			}
		default:
			return
		}
	}
}
