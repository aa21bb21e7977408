package config

import "time"

// SyncConfig is the root configuration for a syncd instance.
type SyncConfig struct {
	Instance   InstanceConfig   `yaml:"instance"`
	Platform   PlatformConfig   `yaml:"platform"`
	Connection ConnectionConfig `yaml:"connection"`
	Refresh    RefreshConfig    `yaml:"refresh"`
	Journal    JournalConfig    `yaml:"journal"`
	Health     HealthConfig     `yaml:"health"`
}

// InstanceConfig identifies this syncd instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// PlatformConfig holds annotation platform API settings.
type PlatformConfig struct {
	BaseURL    string        `yaml:"base_url"`
	UserID     string        `yaml:"user_id"`
	AuthToken  string        `yaml:"auth_token"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// ConnectionConfig holds WebSocket connection manager settings.
type ConnectionConfig struct {
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	ReconnectDelay       time.Duration `yaml:"reconnect_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	BufferSize           int           `yaml:"buffer_size"`
}

// RefreshConfig holds refresh scheduler settings. The pause/reset booleans
// are pointers so "unset" can default to enabled.
type RefreshConfig struct {
	BaseInterval      time.Duration `yaml:"base_interval"`
	MaxInterval       time.Duration `yaml:"max_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	MaxRetries        int           `yaml:"max_retries"`
	PauseOnHidden     *bool         `yaml:"pause_on_hidden"`
	PauseOnOffline    *bool         `yaml:"pause_on_offline"`
	ResetOnSuccess    *bool         `yaml:"reset_on_success"`
}

// JournalConfig holds the optional task-update journal settings.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	Database      DBConfig      `yaml:"database"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// HealthConfig holds the health endpoint settings.
type HealthConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
