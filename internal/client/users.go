package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/chepyr/go-workboard/internal/models"
)

func (c *Client) Users(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := c.do(ctx, "list users", http.MethodGet, "/users/", nil, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// UserAssignments lists the tasks assigned to a user. Backends without the
// dedicated route are queried through the task list instead.
func (c *Client) UserAssignments(ctx context.Context, userID models.ID) ([]models.Task, error) {
	var tasks []models.Task
	err := c.do(ctx, "user assignments", http.MethodGet, pathID("/users/", userID, "/assignments/"), nil, nil, &tasks)
	if notFound(err) {
		c.log.WithField("user_id", userID).Debug("assignments route missing, filtering tasks")
		tasks = nil
		q := url.Values{"assignee": {userID.String()}}
		err = c.do(ctx, "user assignments", http.MethodGet, "/tasks/", q, nil, &tasks)
		if err == nil {
			tasks = assignedTo(tasks, userID)
		}
	}
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// AssignedBoards lists the boards holding tasks assigned to a user. When the
// backend lacks the route the boards are derived from the user's tasks.
func (c *Client) AssignedBoards(ctx context.Context, userID models.ID) ([]models.Board, error) {
	var boards []models.Board
	err := c.do(ctx, "assigned boards", http.MethodGet, pathID("/users/", userID, "/assigned-boards/"), nil, nil, &boards)
	if err == nil {
		return boards, nil
	}
	if !notFound(err) {
		return nil, err
	}

	tasks, err := c.UserAssignments(ctx, userID)
	if err != nil {
		return nil, err
	}
	seen := make(map[models.ID]bool)
	boards = []models.Board{}
	for _, t := range tasks {
		if t.BoardID == "" || seen[t.BoardID] {
			continue
		}
		seen[t.BoardID] = true
		b, err := c.LoadBoard(ctx, t.BoardID)
		if err != nil {
			return nil, err
		}
		boards = append(boards, *b)
	}
	return boards, nil
}

func assignedTo(tasks []models.Task, userID models.ID) []models.Task {
	out := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Assignee != nil && t.Assignee.ID == userID {
			out = append(out, t)
		}
	}
	return out
}
