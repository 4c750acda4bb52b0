package apitest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/chepyr/go-workboard/internal/models"
)

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	q := r.URL.Query()
	tasks, err := s.Tasks.ListVisible(ctx, string(currentUser(r).ID), TaskFilter{
		BoardID:    q.Get("board"),
		AssigneeID: q.Get("assignee"),
	})
	if err != nil {
		sendError(w, "Failed to list tasks", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s.taskViews(tasks))
}

func parseStatusInput(raw string) (models.Status, bool) {
	if strings.TrimSpace(raw) == "" {
		return models.StatusToDo, true
	}
	st, err := models.ParseStatus(raw)
	return st, err == nil
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var input struct {
		BoardID     models.ID  `json:"board"`
		Title       string     `json:"title"`
		Description string     `json:"description"`
		Status      string     `json:"status"`
		AssigneeID  *models.ID `json:"assignee_id"`
	}
	if !decodeBody(w, r, &input) {
		return
	}
	input.Title = strings.TrimSpace(input.Title)
	if input.Title == "" || input.BoardID == "" {
		sendError(w, "title and board are required", http.StatusBadRequest)
		return
	}
	if len(input.Title) > 200 {
		sendError(w, "title too long (max 200 chars)", http.StatusBadRequest)
		return
	}
	status, ok := parseStatusInput(input.Status)
	if !ok {
		sendError(w, "Invalid status value", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	user := currentUser(r)
	b, err := s.Boards.GetByID(ctx, string(input.BoardID))
	if err != nil || b == nil {
		sendError(w, "Invalid board ID", http.StatusBadRequest)
		return
	}
	if !ownsBoard(b, user) {
		sendError(w, "You don't have permission to create tasks on this board", http.StatusForbidden)
		return
	}
	var assignee *models.User
	if input.AssigneeID != nil && *input.AssigneeID != "" {
		if assignee, err = s.Users.GetByID(ctx, string(*input.AssigneeID)); err != nil {
			sendError(w, "Invalid assignee_id", http.StatusBadRequest)
			return
		}
	}

	now := time.Now().UTC()
	t := models.Task{
		ID:          models.ID(uuid.NewString()),
		BoardID:     b.ID,
		Title:       input.Title,
		Description: input.Description,
		Status:      status,
		Assignee:    assignee,
		CreatedBy:   user,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Tasks.Create(ctx, &t); err != nil {
		sendError(w, "Failed to create task", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Location", apiPrefix+"/tasks/"+string(t.ID)+"/")
	writeJSON(w, http.StatusCreated, s.taskView(t))
}

// loadTask fetches the {id} task the user may see, answering 404 itself
// otherwise. The board comes back too for permission checks.
func (s *Server) loadTask(ctx context.Context, w http.ResponseWriter, r *http.Request) (*models.Task, *models.Board, bool) {
	t, err := s.Tasks.GetByID(ctx, mux.Vars(r)["id"])
	if err != nil || t == nil {
		sendError(w, "Not found.", http.StatusNotFound)
		return nil, nil, false
	}
	b, err := s.Boards.GetByID(ctx, string(t.BoardID))
	if err != nil || b == nil {
		sendError(w, "Not found.", http.StatusNotFound)
		return nil, nil, false
	}
	u := currentUser(r)
	if !ownsBoard(b, u) && !sameUser(t.Assignee, u) {
		sendError(w, "Not found.", http.StatusNotFound)
		return nil, nil, false
	}
	return t, b, true
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	t, _, ok := s.loadTask(ctx, w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.taskView(*t))
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	taskID := models.ID(mux.Vars(r)["id"])
	if !s.beforeTaskUpdate(w, r, taskID) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	t, b, ok := s.loadTask(ctx, w, r)
	if !ok {
		return
	}
	u := currentUser(r)
	if !ownsBoard(b, u) && !sameUser(t.Assignee, u) && !sameUser(t.CreatedBy, u) {
		sendError(w, "You don't have permission to edit this task", http.StatusForbidden)
		return
	}

	var input struct {
		Title       *string         `json:"title"`
		Description *string         `json:"description"`
		Status      *string         `json:"status"`
		AssigneeID  json.RawMessage `json:"assignee_id"`
	}
	if !decodeBody(w, r, &input) {
		return
	}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			sendError(w, "title cannot be empty", http.StatusBadRequest)
			return
		}
		if len(title) > 200 {
			sendError(w, "title too long (max 200 chars)", http.StatusBadRequest)
			return
		}
		t.Title = title
	}
	if input.Description != nil {
		desc := strings.TrimSpace(*input.Description)
		if len(desc) > 1000 {
			sendError(w, "description too long (max 1000 chars)", http.StatusBadRequest)
			return
		}
		t.Description = desc
	}
	if input.Status != nil {
		st, err := models.ParseStatus(*input.Status)
		if err != nil {
			sendError(w, "Invalid status value", http.StatusBadRequest)
			return
		}
		t.Status = st
	}
	if len(input.AssigneeID) > 0 {
		if bytes.Equal(bytes.TrimSpace(input.AssigneeID), []byte("null")) {
			t.Assignee = nil
		} else {
			var id models.ID
			if err := json.Unmarshal(input.AssigneeID, &id); err != nil {
				sendError(w, "Invalid assignee_id", http.StatusBadRequest)
				return
			}
			a, err := s.Users.GetByID(ctx, string(id))
			if err != nil {
				sendError(w, "Invalid assignee_id", http.StatusBadRequest)
				return
			}
			t.Assignee = a
		}
	}
	t.UpdatedAt = time.Now().UTC()

	if err := s.Tasks.Update(ctx, t); err != nil {
		sendError(w, "Failed to update task", http.StatusInternalServerError)
		return
	}
	s.log.WithFields(logrus.Fields{"task_id": t.ID, "status": t.Status}).Debug("task updated")
	writeJSON(w, http.StatusOK, s.taskView(*t))
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	t, b, ok := s.loadTask(ctx, w, r)
	if !ok {
		return
	}
	if !ownsBoard(b, currentUser(r)) {
		sendError(w, "You don't have permission to delete this task", http.StatusForbidden)
		return
	}
	if err := s.Tasks.Delete(ctx, string(t.ID)); err != nil {
		sendError(w, "Failed to delete task", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
