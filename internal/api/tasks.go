package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/annolab/annosync/internal/task"
)

// tasksResponse is the wire shape of GET /api/v1/tasks.
type tasksResponse struct {
	Tasks  []task.Task `json:"tasks"`
	Cursor string      `json:"cursor,omitempty"`
}

// taskResponse is the wire shape of GET /api/v1/tasks/{id}.
type taskResponse struct {
	Task task.Task `json:"task"`
}

// GetTasksOptions filters a task listing.
type GetTasksOptions struct {
	Status string // Filter by status ("" = all)
	Limit  int    // Page size (0 = server default)
	Cursor string // Pagination cursor
}

// GetTasks fetches one page of tasks.
func (c *Client) GetTasks(ctx context.Context, opts GetTasksOptions) ([]task.Task, string, error) {
	query := url.Values{}
	if opts.Status != "" {
		query.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Cursor != "" {
		query.Set("cursor", opts.Cursor)
	}

	var resp tasksResponse
	if err := c.get(ctx, "/api/v1/tasks", query, &resp); err != nil {
		return nil, "", fmt.Errorf("get tasks: %w", err)
	}

	return resp.Tasks, resp.Cursor, nil
}

// GetAllTasks fetches every page of tasks matching the options.
func (c *Client) GetAllTasks(ctx context.Context, opts GetTasksOptions) ([]task.Task, error) {
	var all []task.Task

	for {
		tasks, cursor, err := c.GetTasks(ctx, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, tasks...)

		if cursor == "" {
			return all, nil
		}
		opts.Cursor = cursor
	}
}

// GetTask fetches a single task by ID.
func (c *Client) GetTask(ctx context.Context, taskID string) (task.Task, error) {
	var resp taskResponse
	path := "/api/v1/tasks/" + url.PathEscape(taskID)
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return task.Task{}, fmt.Errorf("get task %s: %w", taskID, err)
	}
	return resp.Task, nil
}

// GetTasksByIDs fetches the given tasks concurrently, bounded by the
// client's fetch limit. The result preserves input order. The first error
// cancels the remaining fetches.
func (c *Client) GetTasksByIDs(ctx context.Context, taskIDs []string) ([]task.Task, error) {
	out := make([]task.Task, len(taskIDs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.fetchLimit)

	for i, id := range taskIDs {
		g.Go(func() error {
			t, err := c.GetTask(ctx, id)
			if err != nil {
				return err
			}
			out[i] = t
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
