package client

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/chepyr/go-workboard/internal/models"
)

// TaskInput is the writable part of a task. A nil AssigneeID leaves the
// assignee unchanged on create.
type TaskInput struct {
	BoardID     models.ID     `json:"board"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Status      models.Status `json:"status,omitempty"`
	AssigneeID  *models.ID    `json:"assignee_id,omitempty"`
}

func (in TaskInput) validate(op string) error {
	switch {
	case strings.TrimSpace(in.Title) == "":
		return &Error{Kind: KindValidation, Op: op, Message: "task title is required"}
	case in.BoardID == "":
		return &Error{Kind: KindValidation, Op: op, Message: "task board is required"}
	case in.Status != "" && !in.Status.Valid():
		return &Error{Kind: KindValidation, Op: op, Message: "invalid task status " + string(in.Status)}
	}
	return nil
}

// Tasks lists the tasks of one board. Backends that ignore the board filter
// return every visible task, so the result is filtered again here.
func (c *Client) Tasks(ctx context.Context, boardID models.ID) ([]models.Task, error) {
	var tasks []models.Task
	q := url.Values{"board": {boardID.String()}}
	if err := c.do(ctx, "list tasks", http.MethodGet, "/tasks/", q, nil, &tasks); err != nil {
		return nil, err
	}
	out := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.BoardID == "" || t.BoardID == boardID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (c *Client) CreateTask(ctx context.Context, in TaskInput) (*models.Task, error) {
	if in.Status == "" {
		in.Status = models.StatusToDo
	}
	if err := in.validate("create task"); err != nil {
		return nil, err
	}
	var t models.Task
	if err := c.do(ctx, "create task", http.MethodPost, "/tasks/", nil, in, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) UpdateTask(ctx context.Context, taskID models.ID, in TaskInput) (*models.Task, error) {
	if err := in.validate("update task"); err != nil {
		return nil, err
	}
	var t models.Task
	if err := c.do(ctx, "update task", http.MethodPut, pathID("/tasks/", taskID, "/"), nil, in, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTaskStatus stores a new status for one task and returns the task as
// the server now has it.
func (c *Client) UpdateTaskStatus(ctx context.Context, taskID models.ID, status models.Status) (*models.Task, error) {
	if !status.Valid() {
		return nil, &Error{Kind: KindValidation, Op: "update task status", Message: "invalid task status " + string(status)}
	}
	in := map[string]models.Status{"status": status}
	var t models.Task
	if err := c.do(ctx, "update task status", http.MethodPatch, pathID("/tasks/", taskID, "/"), nil, in, &t); err != nil {
		return nil, err
	}
	c.log.WithFields(logrus.Fields{"task_id": taskID, "status": status}).Debug("task status stored")
	if t.ID == "" {
		return nil, nil
	}
	return &t, nil
}

func (c *Client) DeleteTask(ctx context.Context, taskID models.ID) error {
	return c.do(ctx, "delete task", http.MethodDelete, pathID("/tasks/", taskID, "/"), nil, nil, nil)
}
