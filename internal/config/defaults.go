package config

import (
	"time"

	"github.com/google/uuid"
)

// Default values for optional configuration fields.
const (
	DefaultAPITimeout           = 30 * time.Second
	DefaultAPIMaxRetries        = 3
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultReconnectDelay       = 3 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultWriteTimeout         = 5 * time.Second
	DefaultBufferSize           = 1000
	DefaultRefreshBaseInterval  = 30 * time.Second
	DefaultRefreshMaxInterval   = 5 * time.Minute
	DefaultBackoffMultiplier    = 2.0
	DefaultRefreshMaxRetries    = 5
	DefaultJournalBatchSize     = 100
	DefaultJournalFlushInterval = 5 * time.Second
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultDBMaxConns           = 4
	DefaultDBMinConns           = 1
	DefaultHealthPort           = 8080
	DefaultHealthPath           = "/health"
)

func (c *SyncConfig) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = uuid.NewString()
	}

	// Platform defaults
	if c.Platform.Timeout == 0 {
		c.Platform.Timeout = DefaultAPITimeout
	}
	if c.Platform.MaxRetries == 0 {
		c.Platform.MaxRetries = DefaultAPIMaxRetries
	}

	// Connection defaults
	if c.Connection.HeartbeatInterval == 0 {
		c.Connection.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Connection.ReconnectDelay == 0 {
		c.Connection.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Connection.MaxReconnectAttempts == 0 {
		c.Connection.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connection.BufferSize == 0 {
		c.Connection.BufferSize = DefaultBufferSize
	}

	// Refresh defaults
	if c.Refresh.BaseInterval == 0 {
		c.Refresh.BaseInterval = DefaultRefreshBaseInterval
	}
	if c.Refresh.MaxInterval == 0 {
		c.Refresh.MaxInterval = DefaultRefreshMaxInterval
	}
	if c.Refresh.BackoffMultiplier == 0 {
		c.Refresh.BackoffMultiplier = DefaultBackoffMultiplier
	}
	if c.Refresh.MaxRetries == 0 {
		c.Refresh.MaxRetries = DefaultRefreshMaxRetries
	}
	c.Refresh.PauseOnHidden = defaultTrue(c.Refresh.PauseOnHidden)
	c.Refresh.PauseOnOffline = defaultTrue(c.Refresh.PauseOnOffline)
	c.Refresh.ResetOnSuccess = defaultTrue(c.Refresh.ResetOnSuccess)

	// Journal defaults
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultJournalBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultJournalFlushInterval
	}
	applyDBDefaults(&c.Journal.Database)

	// Health defaults
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
	if c.Health.Path == "" {
		c.Health.Path = DefaultHealthPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultDBMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultDBMinConns
	}
}

func defaultTrue(v *bool) *bool {
	if v == nil {
		t := true
		return &t
	}
	return v
}
