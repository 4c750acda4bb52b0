package client

import (
	"context"
	"net/http"
	"strings"

	"github.com/chepyr/go-workboard/internal/models"
)

// BoardInput is the writable part of a board.
type BoardInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (in BoardInput) validate(op string) error {
	if strings.TrimSpace(in.Name) == "" {
		return &Error{Kind: KindValidation, Op: op, Message: "board name is required"}
	}
	return nil
}

// Boards lists the boards the user owns or has tasks on.
func (c *Client) Boards(ctx context.Context) ([]models.Board, error) {
	var boards []models.Board
	if err := c.do(ctx, "list boards", http.MethodGet, "/boards/", nil, nil, &boards); err != nil {
		return nil, err
	}
	return boards, nil
}

// LoadBoard fetches a board together with its tasks. Board payloads that
// omit the task list are completed from /tasks/.
func (c *Client) LoadBoard(ctx context.Context, boardID models.ID) (*models.Board, error) {
	var b models.Board
	if err := c.do(ctx, "load board", http.MethodGet, pathID("/boards/", boardID, "/"), nil, nil, &b); err != nil {
		return nil, err
	}
	if b.Tasks == nil {
		tasks, err := c.Tasks(ctx, boardID)
		if err != nil {
			return nil, err
		}
		b.Tasks = tasks
	}
	for i := range b.Tasks {
		if b.Tasks[i].BoardID == "" {
			b.Tasks[i].BoardID = b.ID
		}
	}
	return &b, nil
}

func (c *Client) CreateBoard(ctx context.Context, in BoardInput) (*models.Board, error) {
	if err := in.validate("create board"); err != nil {
		return nil, err
	}
	var b models.Board
	if err := c.do(ctx, "create board", http.MethodPost, "/boards/", nil, in, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) UpdateBoard(ctx context.Context, boardID models.ID, in BoardInput) (*models.Board, error) {
	if err := in.validate("update board"); err != nil {
		return nil, err
	}
	var b models.Board
	if err := c.do(ctx, "update board", http.MethodPut, pathID("/boards/", boardID, "/"), nil, in, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) DeleteBoard(ctx context.Context, boardID models.ID) error {
	return c.do(ctx, "delete board", http.MethodDelete, pathID("/boards/", boardID, "/"), nil, nil, nil)
}
