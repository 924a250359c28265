package session

import (
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	apperrors "github.com/pysuper/titan/internal/errors"
	"github.com/pysuper/titan/internal/metrics"
	"github.com/pysuper/titan/internal/protocol"
)

// Router fans messages out across registered sessions. Delivery is
// best-effort per recipient: a dead channel is skipped, never retried.
type Router struct {
	registry *Registry
	clock    clockwork.Clock
}

// NewRouter creates a router over the given registry.
func NewRouter(registry *Registry, clock clockwork.Clock) *Router {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Router{registry: registry, clock: clock}
}

// Broadcast delivers content to every authenticated session and returns the
// number of successful deliveries. sender may be nil for server-originated
// broadcasts.
func (r *Router) Broadcast(sender *Session, content json.RawMessage, excludeSender bool) int {
	msg := protocol.BroadcastMessage{
		Type:      "broadcast",
		Content:   content,
		Sender:    senderID(sender),
		Timestamp: r.clock.Now(),
	}

	count := 0
	for _, target := range r.registry.All() {
		if !target.Authenticated() {
			continue
		}
		if excludeSender && sender != nil && target.id == sender.id {
			continue
		}
		if err := target.Send(msg); err != nil {
			metrics.BroadcastRecipients.WithLabelValues("failed").Inc()
			slog.Debug("Broadcast delivery failed", "session_id", target.ID(), "error", err)
			continue
		}
		metrics.BroadcastRecipients.WithLabelValues("delivered").Inc()
		count++
	}
	return count
}

// Unicast delivers content to one session by id.
func (r *Router) Unicast(targetID string, content json.RawMessage, sender *Session) error {
	id, err := uuid.Parse(targetID)
	if err != nil {
		return apperrors.ValidationError("invalid target session id")
	}
	target, ok := r.registry.Lookup(id)
	if !ok {
		return apperrors.NotFoundError("target session not connected")
	}

	msg := protocol.PrivateMessage{
		Type:      "private_message",
		Content:   content,
		Sender:    senderID(sender),
		Timestamp: r.clock.Now(),
	}
	if err := target.Send(msg); err != nil {
		return apperrors.TransportError("delivery to target failed", err)
	}
	return nil
}

// SyncStatus pushes a playback status change to every other authenticated
// session, keeping multiple viewers of one target in step.
func (r *Router) SyncStatus(origin *Session, sc protocol.StatusChange) {
	for _, target := range r.registry.All() {
		if target.id == origin.id || !target.Authenticated() {
			continue
		}
		if err := target.Send(sc); err != nil {
			slog.Debug("Status sync failed", "session_id", target.ID(), "error", err)
		}
	}
}

func senderID(s *Session) string {
	if s == nil {
		return "server"
	}
	return s.id.String()
}
