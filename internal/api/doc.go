// Package api provides the REST client for the annotation platform API.
//
// It backs the refresh path: when push updates are unavailable, or as
// periodic confirmation alongside them, the refresh scheduler fetches task
// state through this client.
//
// Endpoints used: /api/v1/tasks and /api/v1/tasks/{id}.
package api
