// Package task defines the task data model and the in-memory Tracker that
// holds the latest known state of every watched task.
//
// The Tracker is fed from two independent sources:
//   - task_update frames pushed over the WebSocket connection
//   - periodic REST refreshes driven by the refresh scheduler
package task
