package apitest

import (
	"context"
	"strings"

	"github.com/chepyr/go-workboard/internal/models"
)

// taskView is the wire form of a task; Status shadows the embedded field so
// its spelling can vary.
type taskView struct {
	models.Task
	Status string `json:"status"`
}

type boardView struct {
	models.Board
	Tasks *[]taskView `json:"tasks,omitempty"`
}

func (s *Server) taskView(t models.Task) taskView {
	s.mu.Lock()
	lower := s.lowerStatuses
	s.mu.Unlock()
	st := string(t.Status)
	if lower {
		st = strings.ToLower(st)
	}
	return taskView{Task: t, Status: st}
}

func (s *Server) taskViews(tasks []models.Task) []taskView {
	out := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, s.taskView(t))
	}
	return out
}

func (s *Server) boardView(ctx context.Context, b models.Board) (boardView, error) {
	v := boardView{Board: b}
	if !s.embedBoardTask {
		return v, nil
	}
	tasks, err := s.Tasks.ListByBoardID(ctx, string(b.ID))
	if err != nil {
		return v, err
	}
	views := s.taskViews(tasks)
	v.Tasks = &views
	return v, nil
}

func (s *Server) boardViews(ctx context.Context, boards []models.Board) ([]boardView, error) {
	out := make([]boardView, 0, len(boards))
	for _, b := range boards {
		v, err := s.boardView(ctx, b)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// canSeeBoard reports whether u owns the board or has a task on it.
func (s *Server) canSeeBoard(ctx context.Context, b *models.Board, u *models.User) (bool, error) {
	if b.Owner != nil && b.Owner.ID == u.ID {
		return true, nil
	}
	tasks, err := s.Tasks.ListVisible(ctx, string(u.ID), TaskFilter{BoardID: string(b.ID), AssigneeID: string(u.ID)})
	if err != nil {
		return false, err
	}
	return len(tasks) > 0, nil
}

func ownsBoard(b *models.Board, u *models.User) bool {
	return b.Owner != nil && b.Owner.ID == u.ID
}

func sameUser(a *models.User, u *models.User) bool {
	return a != nil && u != nil && a.ID == u.ID
}
