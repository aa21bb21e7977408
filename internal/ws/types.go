package ws

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/annolab/annosync/internal/task"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrAlreadyClosed = errors.New("already closed")
	ErrBadEndpoint   = errors.New("invalid endpoint url")
)

// State is the connection state of a Manager.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateErroring
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateErroring:
		return "erroring"
	default:
		return "unknown"
	}
}

// Message types on the wire.
const (
	TypeTaskUpdate       = "task_update"
	TypeHeartbeat        = "heartbeat"
	TypeSubscribeTask    = "subscribe_task"
	TypeUnsubscribeTask  = "unsubscribe_task"
	TypeGetSubscriptions = "get_subscriptions"
)

// Envelope is an inbound frame with its type discriminant and raw payload.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"` // Full frame bytes for generic consumers
}

// TaskUpdateMsg is the wire form of a task_update frame.
type TaskUpdateMsg struct {
	Type      string   `json:"type"`
	TaskID    string   `json:"task_id"`
	Status    string   `json:"status"`
	Progress  *float64 `json:"progress,omitempty"`
	Message   string   `json:"message,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

// ToUpdate converts the wire message to the task model.
func (m TaskUpdateMsg) ToUpdate() task.Update {
	return task.Update{
		TaskID:     m.TaskID,
		Status:     m.Status,
		Progress:   m.Progress,
		Message:    m.Message,
		Timestamp:  m.Timestamp,
		Source:     "ws",
		ReceivedAt: time.Now(),
	}
}

// controlMsg is an outbound control frame.
type controlMsg struct {
	Type   string `json:"type"`
	TaskID string `json:"task_id,omitempty"`
}

// Callbacks are the caller-facing hooks fired by a Manager. All fields are
// optional. Callbacks are invoked from the manager's internal goroutines;
// they must not block for long.
type Callbacks struct {
	OnConnect    func()
	OnDisconnect func()
	OnError      func(error)
	OnMessage    func(Envelope)
	OnTaskUpdate func(task.Update)
}

// ClientConfig configures a WebSocket transport client.
type ClientConfig struct {
	URL              string        // Full WebSocket URL
	AuthToken        string        // Bearer token (empty = no auth header)
	HandshakeTimeout time.Duration // Dial timeout
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Message channel buffer size
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	BaseURL              string        // Platform base URL (http, https, ws, or wss scheme)
	UserID               string        // Session identifier appended to the endpoint path
	AuthToken            string        // Bearer token for the handshake
	HeartbeatInterval    time.Duration // Period between heartbeat frames
	ReconnectDelay       time.Duration // Fixed wait before a reconnect attempt
	MaxReconnectAttempts int           // Reconnect ceiling per outage
	HandshakeTimeout     time.Duration // Dial timeout
	WriteTimeout         time.Duration // Write deadline for sends
	BufferSize           int           // Inbound message buffer size
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		HeartbeatInterval:    30 * time.Second,
		ReconnectDelay:       3 * time.Second,
		MaxReconnectAttempts: 5,
		HandshakeTimeout:     10 * time.Second,
		WriteTimeout:         5 * time.Second,
		BufferSize:           1000,
	}
}

func (c *ManagerConfig) applyDefaults() {
	def := DefaultManagerConfig()
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = def.ReconnectDelay
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.BufferSize == 0 {
		c.BufferSize = def.BufferSize
	}
}
