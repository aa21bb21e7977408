// Package refresh implements an adaptive-interval refresh scheduler.
//
// The Scheduler invokes a caller-supplied refresh function on a
// self-adjusting interval: the interval grows exponentially with
// consecutive failures (capped), and returns to baseline on success. It
// pauses entirely while the hosting view is hidden, the host is offline,
// the caller paused it, or the retry ceiling is reached.
//
// The scheduler is a deliberate sibling of the ws.Manager push channel,
// not a fallback layered on top of it: both run independently and feed the
// same task tracker.
package refresh
