package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ConnectionMode selects the session registry membership policy.
type ConnectionMode string

const (
	// ModeSingle keeps at most one active viewer connection; a new
	// connection evicts the previous holder.
	ModeSingle ConnectionMode = "single"
	// ModeMulti lets any number of viewer connections coexist.
	ModeMulti ConnectionMode = "multi"
)

type Config struct {
	AppEnv    string
	Port      string
	LogLevel  string
	LogFormat string

	// DataDir is the root directory for analysis result files.
	DataDir string

	// DefaultFPS is the frame rate used when a control command carries none.
	DefaultFPS int

	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	ConnectionMode ConnectionMode

	ReconnectMaxAttempts int
	ReconnectBackoffBase time.Duration
	ReconnectBackoffMax  time.Duration

	// AuthToken is the shared secret viewers authenticate with. When empty,
	// any token longer than ten characters is accepted (demo behavior).
	AuthToken string

	// RedisURL enables the shared dataset cache when set.
	RedisURL string
}

func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:    getEnv("APP_ENV", "development"),
		Port:      getEnv("PORT", "9001"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
		DataDir:   getEnv("DATA_DIR", "data"),
		AuthToken: getEnv("AUTH_TOKEN", ""),
		RedisURL:  getEnv("REDIS_URL", ""),
	}

	var err error
	if cfg.DefaultFPS, err = getEnvInt("DEFAULT_FPS", 5); err != nil {
		return nil, err
	}
	if cfg.DefaultFPS <= 0 {
		return nil, fmt.Errorf("DEFAULT_FPS must be positive, got %d", cfg.DefaultFPS)
	}

	if cfg.HeartbeatInterval, err = getEnvDuration("HEARTBEAT_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.HeartbeatTimeout, err = getEnvDuration("HEARTBEAT_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.HeartbeatInterval <= 0 || cfg.HeartbeatTimeout <= 0 {
		return nil, fmt.Errorf("heartbeat interval and timeout must be positive")
	}

	mode := ConnectionMode(getEnv("CONNECTION_MODE", string(ModeSingle)))
	if mode != ModeSingle && mode != ModeMulti {
		return nil, fmt.Errorf("CONNECTION_MODE must be %q or %q, got %q", ModeSingle, ModeMulti, mode)
	}
	cfg.ConnectionMode = mode

	if cfg.ReconnectMaxAttempts, err = getEnvInt("RECONNECT_MAX_ATTEMPTS", 5); err != nil {
		return nil, err
	}
	if cfg.ReconnectBackoffBase, err = getEnvDuration("RECONNECT_BACKOFF_BASE", time.Second); err != nil {
		return nil, err
	}
	if cfg.ReconnectBackoffMax, err = getEnvDuration("RECONNECT_BACKOFF_MAX", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.ReconnectBackoffBase > cfg.ReconnectBackoffMax {
		return nil, fmt.Errorf("RECONNECT_BACKOFF_BASE exceeds RECONNECT_BACKOFF_MAX")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 30s: %w", key, err)
	}
	return d, nil
}
