package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"
)

// session is one connection attempt's state. A late timer or goroutine
// holding a stale session is a no-op: every handler first checks the
// session against the manager's current generation.
type session struct {
	gen    uint64
	client Client
	done   chan struct{}
}

// Manager owns a single persistent WebSocket connection and its
// reconnection and heartbeat policy.
type Manager struct {
	cfg    ManagerConfig
	cb     Callbacks
	logger *slog.Logger
	url    string

	// Test seam for the transport constructor.
	newClient func(ClientConfig, *slog.Logger) Client

	mu             sync.Mutex
	state          State
	reconnects     int
	gen            uint64
	cur            *session
	reconnectTimer *time.Timer
	ctx            context.Context
}

// NewManager creates a Manager. Callbacks must be set before Connect and
// not changed afterwards.
func NewManager(cfg ManagerConfig, cb Callbacks, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	endpoint, err := endpointURL(cfg.BaseURL, cfg.UserID)
	if err != nil {
		return nil, err
	}

	return &Manager{
		cfg:       cfg,
		cb:        cb,
		logger:    logger.With("component", "ws"),
		url:       endpoint,
		newClient: NewClient,
		state:     StateDisconnected,
	}, nil
}

// endpointURL derives the WebSocket endpoint from the platform base URL,
// matching the base scheme: http→ws, https→wss.
func endpointURL(base, userID string) (string, error) {
	if base == "" || userID == "" {
		return "", fmt.Errorf("%w: base url and user id are required", ErrBadEndpoint)
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadEndpoint, err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrBadEndpoint, u.Scheme)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/v1/ws/" + url.PathEscape(userID)
	return u.String(), nil
}

// URL returns the derived WebSocket endpoint.
func (m *Manager) URL() string {
	return m.url
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ReconnectAttempts returns the current reconnect counter.
func (m *Manager) ReconnectAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconnects
}

// Connect opens the connection. It is idempotent: a no-op while a
// connection attempt is in flight or established. A dial failure is
// reported via OnError and feeds the standard reconnection policy.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateConnecting || m.state == StateConnected {
		m.mu.Unlock()
		return nil
	}

	m.gen++
	gen := m.gen
	m.stopReconnectTimerLocked()
	m.closeSessionLocked()
	m.state = StateConnecting
	m.ctx = ctx

	cl := m.newClient(ClientConfig{
		URL:              m.url,
		AuthToken:        m.cfg.AuthToken,
		HandshakeTimeout: m.cfg.HandshakeTimeout,
		WriteTimeout:     m.cfg.WriteTimeout,
		BufferSize:       m.cfg.BufferSize,
	}, m.logger)
	m.mu.Unlock()

	err := cl.Connect(ctx)

	m.mu.Lock()
	if m.gen != gen || m.state != StateConnecting {
		// Torn down while dialing.
		m.mu.Unlock()
		cl.Close()
		return nil
	}

	if err != nil {
		m.state = StateDisconnected
		m.scheduleReconnectLocked()
		m.mu.Unlock()

		m.logger.Warn("connect failed", "url", m.url, "error", err)
		m.fireError(err)
		return err
	}

	s := &session{gen: gen, client: cl, done: make(chan struct{})}
	m.cur = s
	m.state = StateConnected
	m.reconnects = 0

	go m.readLoop(s)
	go m.heartbeatLoop(s)
	m.mu.Unlock()

	m.logger.Info("connected", "url", m.url)
	if m.cb.OnConnect != nil {
		m.cb.OnConnect()
	}

	return nil
}

// Disconnect tears the connection down: cancels any pending reconnect,
// stops the heartbeat, and closes the socket. Safe to call repeatedly,
// from any state, and from within a callback. A callback already in
// flight on the reader goroutine may still run after Disconnect returns;
// nothing new fires afterwards.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.gen++
	m.stopReconnectTimerLocked()
	hadConn := m.cur != nil
	m.closeSessionLocked()
	m.state = StateDisconnected
	m.mu.Unlock()

	if hadConn {
		m.logger.Info("disconnected")
		if m.cb.OnDisconnect != nil {
			m.cb.OnDisconnect()
		}
	}
}

// Send marshals v and writes it if currently connected. "Not connected" is
// an expected condition, reported as false rather than an error.
func (m *Manager) Send(v any) bool {
	m.mu.Lock()
	s := m.cur
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected || s == nil {
		return false
	}

	data, err := json.Marshal(v)
	if err != nil {
		m.logger.Warn("marshal outbound message", "error", err)
		return false
	}

	if err := s.client.Send(data); err != nil {
		m.logger.Debug("send failed", "error", err)
		return false
	}
	return true
}

// stopReconnectTimerLocked cancels a pending reconnect. Callers hold mu.
func (m *Manager) stopReconnectTimerLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

// closeSessionLocked shuts down the current session. Callers hold mu.
func (m *Manager) closeSessionLocked() {
	if m.cur == nil {
		return
	}
	close(m.cur.done)
	m.cur.client.Close()
	m.cur = nil
}

// scheduleReconnectLocked arms the fixed-delay reconnect timer unless the
// attempt ceiling is reached. Callers hold mu.
func (m *Manager) scheduleReconnectLocked() {
	if m.reconnects >= m.cfg.MaxReconnectAttempts {
		m.logger.Warn("reconnect attempts exhausted",
			"attempts", m.reconnects,
			"max", m.cfg.MaxReconnectAttempts,
		)
		return
	}

	m.reconnects++
	gen := m.gen
	m.logger.Info("scheduling reconnect",
		"attempt", m.reconnects,
		"delay", m.cfg.ReconnectDelay,
	)
	m.reconnectTimer = time.AfterFunc(m.cfg.ReconnectDelay, func() {
		m.reconnect(gen)
	})
}

// reconnect fires from the reconnect timer.
func (m *Manager) reconnect(gen uint64) {
	m.mu.Lock()
	if m.gen != gen || m.state != StateDisconnected {
		m.mu.Unlock()
		return
	}
	ctx := m.ctx
	m.mu.Unlock()

	m.Connect(ctx)
}

// readLoop consumes frames and errors from one session's transport.
func (m *Manager) readLoop(s *session) {
	for {
		select {
		case <-s.done:
			return

		case err := <-s.client.Errors():
			m.handleError(s, err)

		case data, ok := <-s.client.Messages():
			if !ok {
				// A transport error precedes the close in frame order,
				// but select picks randomly when both channels are
				// ready. Drain the error first so it is surfaced before
				// the disconnect.
				select {
				case err := <-s.client.Errors():
					m.handleError(s, err)
				default:
				}
				m.handleClose(s)
				return
			}
			m.dispatch(data)
		}
	}
}

// heartbeatLoop sends periodic liveness frames so intermediary proxies do
// not drop the idle connection.
func (m *Manager) heartbeatLoop(s *session) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	data, _ := json.Marshal(controlMsg{Type: TypeHeartbeat})

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.client.Send(data); err != nil {
				m.logger.Debug("heartbeat send failed", "error", err)
			}
		}
	}
}

// handleError surfaces a transport error. The error itself does not close
// the connection; the subsequent close drives the reconnect path.
func (m *Manager) handleError(s *session, err error) {
	m.mu.Lock()
	if m.cur != s || m.gen != s.gen {
		m.mu.Unlock()
		return
	}
	m.state = StateErroring
	m.mu.Unlock()

	m.logger.Warn("connection error", "error", err)
	m.fireError(err)
}

// handleClose handles an unexpected closure of the current session.
func (m *Manager) handleClose(s *session) {
	m.mu.Lock()
	if m.cur != s || m.gen != s.gen {
		m.mu.Unlock()
		return
	}

	m.gen++
	m.closeSessionLocked()
	m.state = StateDisconnected
	m.scheduleReconnectLocked()
	m.mu.Unlock()

	m.logger.Warn("connection closed unexpectedly")
	if m.cb.OnDisconnect != nil {
		m.cb.OnDisconnect()
	}
}

// dispatch parses an inbound frame and routes it to callbacks. Malformed
// frames are dropped and logged, never propagated.
func (m *Manager) dispatch(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		m.logger.Warn("dropping malformed frame", "error", err)
		return
	}
	if env.Type == "" {
		m.logger.Warn("dropping frame without type discriminant")
		return
	}
	env.Raw = data

	if env.Type == TypeTaskUpdate {
		var tu TaskUpdateMsg
		if err := json.Unmarshal(data, &tu); err != nil {
			m.logger.Warn("dropping malformed task_update", "error", err)
			return
		}
		if m.cb.OnTaskUpdate != nil {
			m.cb.OnTaskUpdate(tu.ToUpdate())
		}
	}

	if m.cb.OnMessage != nil {
		m.cb.OnMessage(env)
	}
}

func (m *Manager) fireError(err error) {
	if m.cb.OnError != nil {
		m.cb.OnError(err)
	}
}
