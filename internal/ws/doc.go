// Package ws implements the real-time update client.
//
// The Manager:
//   - Maintains one persistent WebSocket connection per user session
//   - Sends application-level heartbeats to keep intermediaries from
//     dropping the idle connection
//   - Reconnects after unexpected closure with a fixed delay, up to a
//     configured attempt ceiling
//   - Dispatches inbound frames to caller-supplied callbacks
//
// The Registry tracks subscription intent across connection churn and
// replays it on every reconnect.
package ws
