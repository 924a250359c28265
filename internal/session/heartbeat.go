package session

import (
	"github.com/pysuper/titan/internal/metrics"
	"github.com/pysuper/titan/internal/protocol"
)

// monitorLiveness pings the client on every interval tick and closes the
// session once no inbound traffic has been seen for interval+timeout. Any
// inbound message counts as activity, not just pong replies.
func (s *Session) monitorLiveness() {
	if s.opts.HeartbeatInterval <= 0 {
		return
	}

	ticker := s.clock.NewTicker(s.opts.HeartbeatInterval)
	defer ticker.Stop()

	window := s.opts.HeartbeatInterval + s.opts.HeartbeatTimeout

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.Chan():
			idle := s.clock.Now().Sub(s.LastActivity())
			if idle > window {
				s.logger.Warn("Heartbeat timeout, closing session", "idle", idle)
				metrics.HeartbeatTimeouts.Inc()
				// Close waits for this goroutine, so run it elsewhere.
				go s.Close()
				return
			}
			if err := s.send(protocol.NewPing(s.clock.Now())); err != nil {
				s.logger.Debug("Heartbeat ping failed", "error", err)
			}
		}
	}
}
