// Package config provides environment-based configuration.
//
// Loads from environment variables with defaults, validates playback and
// heartbeat timing, and exposes the registry connection mode.
package config
