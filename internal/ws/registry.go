package ws

import (
	"log/slog"
	"sort"
	"sync"
)

// Sender is the send capability the Registry multiplexes control messages
// over. Satisfied by *Manager.
type Sender interface {
	Send(v any) bool
	State() State
}

// Registry tracks which tasks the caller currently cares about. The set is
// the source of truth for intent: it survives disconnects, and the wire
// messages are a side effect. Wire Replay to the manager's OnConnect hook
// so every (re)connection re-announces the retained set.
type Registry struct {
	conn   Sender
	logger *slog.Logger

	mu  sync.Mutex
	set map[string]struct{}
}

// NewRegistry creates a Registry bound to a connection's send capability.
func NewRegistry(conn Sender, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		conn:   conn,
		logger: logger.With("component", "subs"),
		set:    make(map[string]struct{}),
	}
}

// Subscribe records interest in a task and, if connected, announces it.
// Idempotent: re-subscribing an already tracked task re-sends the control
// message but does not duplicate the entry.
func (r *Registry) Subscribe(taskID string) {
	r.mu.Lock()
	r.set[taskID] = struct{}{}
	r.mu.Unlock()

	if r.conn.State() == StateConnected {
		if !r.conn.Send(controlMsg{Type: TypeSubscribeTask, TaskID: taskID}) {
			r.logger.Debug("subscribe deferred until reconnect", "task_id", taskID)
		}
	} else {
		r.logger.Debug("subscribe retained while disconnected", "task_id", taskID)
	}
}

// Unsubscribe removes interest in a task and, if connected, announces the
// removal. While disconnected the removal alone suffices: the task simply
// will not be replayed.
func (r *Registry) Unsubscribe(taskID string) {
	r.mu.Lock()
	delete(r.set, taskID)
	r.mu.Unlock()

	if r.conn.State() == StateConnected {
		r.conn.Send(controlMsg{Type: TypeUnsubscribeTask, TaskID: taskID})
	}
}

// Replay re-sends a subscribe_task message for every retained task. Call
// from the connection manager's OnConnect hook.
func (r *Registry) Replay() {
	ids := r.Subscriptions()

	sent := 0
	for _, id := range ids {
		if r.conn.Send(controlMsg{Type: TypeSubscribeTask, TaskID: id}) {
			sent++
		}
	}

	if len(ids) > 0 {
		r.logger.Info("replayed subscriptions", "total", len(ids), "sent", sent)
	}
}

// RequestSubscriptions asks the server for its view of this session's
// subscriptions. Returns false if not connected.
func (r *Registry) RequestSubscriptions() bool {
	return r.conn.Send(controlMsg{Type: TypeGetSubscriptions})
}

// Subscriptions returns the retained task IDs, sorted.
func (r *Registry) Subscriptions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.set))
	for id := range r.set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of retained subscriptions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.set)
}
