package task

import "time"

// Task statuses reported by the platform API.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Task represents a server-side job (OCR run, export, queue item) as
// returned by the REST API.
type Task struct {
	ID        string   `json:"id"`
	Type      string   `json:"type"`
	Status    string   `json:"status"`
	Progress  *float64 `json:"progress,omitempty"`
	Message   string   `json:"message,omitempty"`
	CreatedAt int64    `json:"created_at"` // Unix timestamp (seconds)
	UpdatedAt int64    `json:"updated_at"` // Unix timestamp (seconds)
}

// Update is a single task state change, from either the push channel or a
// REST refresh.
type Update struct {
	TaskID     string    `json:"task_id"`
	Status     string    `json:"status"`
	Progress   *float64  `json:"progress,omitempty"`
	Message    string    `json:"message,omitempty"`
	Timestamp  int64     `json:"timestamp"` // Server timestamp (Unix seconds)
	Source     string    `json:"source"`    // "ws" or "rest"
	ReceivedAt time.Time `json:"received_at"`
}

// isTerminal returns true if the status indicates the task is done.
func isTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}
