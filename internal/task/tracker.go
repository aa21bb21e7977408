package task

import (
	"log/slog"
	"sync"
	"time"
)

// Tracker maintains the latest known state of every observed task, plus an
// arrival-ordered record of the updates that produced it.
type Tracker struct {
	logger *slog.Logger

	mu      sync.RWMutex
	tasks   map[string]Update // taskID → latest update
	order   []string          // taskIDs in first-seen order
	history []Update          // all updates in arrival order
	maxHist int
}

// NewTracker creates a Tracker. maxHistory bounds the retained update log
// (0 means unbounded).
func NewTracker(maxHistory int, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		logger:  logger,
		tasks:   make(map[string]Update),
		maxHist: maxHistory,
	}
}

// Apply records an update, replacing the task's latest state.
func (t *Tracker) Apply(u Update) {
	if u.ReceivedAt.IsZero() {
		u.ReceivedAt = time.Now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, seen := t.tasks[u.TaskID]; !seen {
		t.order = append(t.order, u.TaskID)
	}
	t.tasks[u.TaskID] = u

	t.history = append(t.history, u)
	if t.maxHist > 0 && len(t.history) > t.maxHist {
		t.history = t.history[len(t.history)-t.maxHist:]
	}

	t.logger.Debug("task update applied",
		"task_id", u.TaskID,
		"status", u.Status,
		"source", u.Source,
	)
}

// ApplyTask records the state of a task fetched via REST.
func (t *Tracker) ApplyTask(tk Task) {
	t.Apply(Update{
		TaskID:    tk.ID,
		Status:    tk.Status,
		Progress:  tk.Progress,
		Message:   tk.Message,
		Timestamp: tk.UpdatedAt,
		Source:    "rest",
	})
}

// Latest returns the most recent update for a task.
func (t *Tracker) Latest(taskID string) (Update, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	u, ok := t.tasks[taskID]
	return u, ok
}

// Snapshot returns the latest update of every task in first-seen order.
func (t *Tracker) Snapshot() []Update {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Update, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.tasks[id])
	}
	return out
}

// Updates returns the retained update log in arrival order.
func (t *Tracker) Updates() []Update {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Update, len(t.history))
	copy(out, t.history)
	return out
}

// Active returns IDs of tasks not yet in a terminal state, in first-seen
// order.
func (t *Tracker) Active() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []string
	for _, id := range t.order {
		if !isTerminal(t.tasks[id].Status) {
			out = append(out, id)
		}
	}
	return out
}

// Len returns the number of tracked tasks.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.tasks)
}
