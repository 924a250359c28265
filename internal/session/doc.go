// Package session implements the playback session engine: the per-connection
// aggregate binding a transport to a playback state machine, a frame pacer,
// an inbound message pipeline, and a heartbeat monitor, plus the process-wide
// registry and broadcast router coordinating sessions.
//
// Every component is cooperatively cancellable: closing a session cancels the
// pacer, heartbeat, and pipeline, releases the registry slot, and only then
// closes the transport.
package session
