package todoapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"todoctl/internal/service"
)

func tasksPath(listID uuid.UUID) string {
	return listPath(listID) + "/task/"
}

func taskPath(listID, taskID uuid.UUID) string {
	return tasksPath(listID) + taskID.String()
}

// ListTasks fetches the list detail and its tasks concurrently.
func (c *Client) ListTasks(ctx context.Context, listID uuid.UUID) (service.ListView, error) {
	var (
		list  service.List
		tasks []wireTask
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		list, err = c.GetList(gctx, listID)
		return err
	})
	g.Go(func() error {
		return c.do(gctx, "ListTasks", http.MethodGet, tasksPath(listID), nil, &tasks)
	})
	if err := g.Wait(); err != nil {
		return service.ListView{}, err
	}

	return service.ListView{List: list, Tasks: toTasks(tasks)}, nil
}

// CreateTask adds a task and returns the refreshed list view.
func (c *Client) CreateTask(ctx context.Context, listID uuid.UUID, in service.TaskInput) (service.ListView, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := validateInput(in); err != nil {
		return service.ListView{}, err
	}
	if err := c.do(ctx, "CreateTask", http.MethodPost, tasksPath(listID), in, nil); err != nil {
		return service.ListView{}, err
	}
	return c.ListTasks(ctx, listID)
}

// UpdateTask applies patch and returns the refreshed list view.
func (c *Client) UpdateTask(ctx context.Context, listID, taskID uuid.UUID, patch service.TaskPatch) (service.ListView, error) {
	if patch.Title != nil {
		t := strings.TrimSpace(*patch.Title)
		patch.Title = &t
	}
	if err := validateInput(patch); err != nil {
		return service.ListView{}, err
	}
	if patch.Empty() {
		return service.ListView{}, service.NewValidationError("nothing to update", nil)
	}
	if err := c.do(ctx, "UpdateTask", http.MethodPut, taskPath(listID, taskID), patch, nil); err != nil {
		return service.ListView{}, err
	}
	return c.ListTasks(ctx, listID)
}

// DeleteTask removes a task and returns the refreshed list view.
func (c *Client) DeleteTask(ctx context.Context, listID, taskID uuid.UUID) (service.ListView, error) {
	if err := c.do(ctx, "DeleteTask", http.MethodDelete, taskPath(listID, taskID), nil, nil); err != nil {
		return service.ListView{}, err
	}
	return c.ListTasks(ctx, listID)
}
