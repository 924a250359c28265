// Package metrics defines the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Session lifecycle metrics
var (
	// ActiveSessions tracks the number of registered viewer sessions.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "playback_active_sessions",
			Help: "Number of registered viewer sessions",
		},
	)

	// SessionsEvicted counts sessions closed because a newer connection took
	// the default slot in single-connection mode.
	SessionsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "playback_sessions_evicted_total",
			Help: "Sessions evicted by a superseding connection",
		},
	)

	// HeartbeatTimeouts counts sessions closed by the liveness monitor.
	HeartbeatTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "playback_heartbeat_timeouts_total",
			Help: "Sessions closed after heartbeat timeout",
		},
	)
)

// Playback metrics
var (
	// FramesEmitted counts frames pushed to viewers.
	FramesEmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "playback_frames_emitted_total",
			Help: "Analysis frames emitted to viewers",
		},
	)

	// PlaybackCommands counts control commands by command and result status.
	PlaybackCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playback_commands_total",
			Help: "Playback control commands by command and status",
		},
		[]string{"command", "status"},
	)
)

// Messaging metrics
var (
	// MessagesReceived counts inbound messages by kind.
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playback_messages_received_total",
			Help: "Inbound messages by kind",
		},
		[]string{"kind"},
	)

	// BroadcastRecipients counts deliveries attempted by the router.
	BroadcastRecipients = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playback_broadcast_recipients_total",
			Help: "Broadcast deliveries by outcome",
		},
		[]string{"outcome"},
	)
)
