package session

import (
	"fmt"

	"github.com/pysuper/titan/internal/metrics"
	"github.com/pysuper/titan/internal/protocol"
)

// consume drains the inbound queue in arrival order. A panicking handler is
// recovered, answered with an error response, and the loop keeps going.
func (s *Session) consume() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case in := <-s.queue:
			s.dispatch(in)
		}
	}
}

func (s *Session) dispatch(in *protocol.Inbound) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Message handler panicked", "kind", in.Kind, "panic", r)
			_ = s.send(protocol.Response{Status: "error", Message: "internal error handling message"})
		}
	}()

	metrics.MessagesReceived.WithLabelValues(string(in.Kind)).Inc()

	// Ping and auth are the only messages allowed before authentication.
	switch in.Kind {
	case protocol.KindPing:
		_ = s.send(protocol.NewPong(s.clock.Now()))
		return
	case protocol.KindAuth:
		s.handleAuth(in)
		return
	}

	if !s.authenticated.Load() {
		_ = s.send(protocol.Response{
			Status:  "error",
			Type:    "auth_required",
			Message: "authentication required",
		})
		return
	}

	switch in.Kind {
	case protocol.KindControl:
		s.handleControl(in)
	case protocol.KindMessage:
		s.handleMessage(in)
	case protocol.KindEvent:
		s.handleEvent(in)
	case protocol.KindCommand:
		s.handleCommand(in)
	default:
		s.logger.Warn("Unknown message type", "type", in.RawType)
		_ = s.send(protocol.Response{
			Status:  "warning",
			Message: fmt.Sprintf("unknown message type: %s", in.RawType),
		})
	}
}

func (s *Session) handleAuth(in *protocol.Inbound) {
	if !s.validToken(in.Token) {
		s.logger.Warn("Authentication failed")
		_ = s.send(protocol.AuthResult{
			Status:  "error",
			Type:    "auth_failed",
			Message: "invalid token",
		})
		return
	}

	userData := map[string]string{
		"client_id": s.id.String(),
		"auth_time": s.clock.Now().Format("2006-01-02T15:04:05Z07:00"),
	}
	s.setUserData(userData)
	s.authenticated.Store(true)
	s.logger.Info("Session authenticated")

	_ = s.send(protocol.AuthResult{
		Status:   "success",
		Type:     "auth_success",
		Message:  "authenticated",
		UserData: userData,
	})
}

func (s *Session) validToken(token string) bool {
	if s.opts.AuthToken != "" {
		return token == s.opts.AuthToken
	}
	return len(token) > 10
}

func (s *Session) handleControl(in *protocol.Inbound) {
	res := s.ctrl.Apply(in.Command, in.FPS, in.VideoPath)
	resp := protocol.Response{
		Status:  res.Status,
		Message: res.Message,
		Code:    res.Code,
		Fields:  res.Fields,
	}
	if res.Err != nil {
		resp.Type = string(res.Err.Type)
	}
	_ = s.send(resp)
}

func (s *Session) handleMessage(in *protocol.Inbound) {
	if s.router == nil {
		_ = s.send(protocol.Response{Status: "error", Message: "messaging unavailable"})
		return
	}

	if in.Target == "" || in.Target == "all" {
		count := s.router.Broadcast(s, in.Content, in.ExcludeSelf)
		_ = s.send(protocol.Response{
			Status:  "success",
			Message: "message broadcast",
			Fields:  map[string]any{"recipients_count": count},
		})
		return
	}

	if err := s.router.Unicast(in.Target, in.Content, s); err != nil {
		_ = s.send(protocol.Response{Status: "error", Message: err.Error()})
		return
	}
	_ = s.send(protocol.Response{Status: "success", Message: "message delivered"})
}

func (s *Session) handleEvent(in *protocol.Inbound) {
	s.logger.Debug("Event received", "event", in.EventName)
	_ = s.send(protocol.Response{
		Status:  "received",
		Type:    "event_processed",
		Message: fmt.Sprintf("event %s processed", in.EventName),
	})
}

func (s *Session) handleCommand(in *protocol.Inbound) {
	switch in.Name {
	case "stats":
		_ = s.send(protocol.Response{
			Status:  "success",
			Type:    "stats",
			Message: "session statistics",
			Fields:  map[string]any{"stats": s.Stats()},
		})
	case "get_status":
		snap := s.ctrl.snapshot()
		_ = s.send(protocol.Response{
			Status:  "success",
			Type:    "status_update",
			Message: "playback status",
			Fields: map[string]any{
				"video_status":  string(snap.State),
				"current_frame": snap.CurrentFrame,
				"total_frames":  snap.TotalFrames,
				"video_path":    snap.VideoPath,
			},
		})
	case "clear_queue":
		dropped := s.drainQueue()
		_ = s.send(protocol.Response{
			Status:  "success",
			Message: "queue cleared",
			Fields:  map[string]any{"dropped": dropped},
		})
	default:
		_ = s.send(protocol.Response{
			Status:  "error",
			Message: fmt.Sprintf("unknown command: %s", in.Name),
		})
	}
}

// Stats summarizes the session for the stats command and control plane.
type Stats struct {
	ClientID         string   `json:"client_id"`
	ConnectedAt      string   `json:"connected_at"`
	UptimeSeconds    float64  `json:"uptime_seconds"`
	MessagesReceived int64    `json:"messages_received"`
	BytesReceived    int64    `json:"bytes_received"`
	Authenticated    bool     `json:"authenticated"`
	QueueSize        int      `json:"queue_size"`
	Playback         Snapshot `json:"playback"`
}

// Stats returns a snapshot of the session's counters.
func (s *Session) Stats() Stats {
	now := s.clock.Now()
	return Stats{
		ClientID:         s.id.String(),
		ConnectedAt:      s.connectedAt.Format("2006-01-02T15:04:05Z07:00"),
		UptimeSeconds:    now.Sub(s.connectedAt).Seconds(),
		MessagesReceived: s.messagesReceived.Load(),
		BytesReceived:    s.bytesReceived.Load(),
		Authenticated:    s.authenticated.Load(),
		QueueSize:        len(s.queue),
		Playback:         s.ctrl.snapshot(),
	}
}

func (s *Session) drainQueue() int {
	dropped := 0
	for {
		select {
		case <-s.queue:
			dropped++
		default:
			return dropped
		}
	}
}
