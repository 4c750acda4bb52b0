package apitest

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/chepyr/go-workboard/internal/models"
)

func (s *Server) listBoards(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	boards, err := s.Boards.ListVisible(ctx, string(currentUser(r).ID))
	if err != nil {
		sendError(w, "Failed to fetch boards", http.StatusInternalServerError)
		return
	}
	views, err := s.boardViews(ctx, boards)
	if err != nil {
		sendError(w, "Failed to fetch boards", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) createBoard(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if !decodeBody(w, r, &input) {
		return
	}
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" || len(input.Name) > 100 {
		sendError(w, "name is required and must be <= 100 characters", http.StatusBadRequest)
		return
	}
	if len(input.Description) > 500 {
		sendError(w, "description must be <= 500 characters", http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	b := models.Board{
		ID:          models.ID(uuid.NewString()),
		Name:        input.Name,
		Description: input.Description,
		Owner:       currentUser(r),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.Boards.Create(ctx, &b); err != nil {
		sendError(w, "Failed to create board", http.StatusInternalServerError)
		return
	}
	v, err := s.boardView(ctx, b)
	if err != nil {
		sendError(w, "Failed to create board", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Location", apiPrefix+"/boards/"+string(b.ID)+"/")
	writeJSON(w, http.StatusCreated, v)
}

// loadBoard fetches the {id} board and answers 404 itself when missing.
func (s *Server) loadBoard(ctx context.Context, w http.ResponseWriter, r *http.Request) (*models.Board, bool) {
	b, err := s.Boards.GetByID(ctx, mux.Vars(r)["id"])
	if err != nil || b == nil {
		sendError(w, "Not found.", http.StatusNotFound)
		return nil, false
	}
	return b, true
}

func (s *Server) getBoard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	b, ok := s.loadBoard(ctx, w, r)
	if !ok {
		return
	}
	visible, err := s.canSeeBoard(ctx, b, currentUser(r))
	if err != nil {
		sendError(w, "Failed to fetch board", http.StatusInternalServerError)
		return
	}
	if !visible {
		// hidden boards look missing, as with a filtered queryset
		sendError(w, "Not found.", http.StatusNotFound)
		return
	}
	v, err := s.boardView(ctx, *b)
	if err != nil {
		sendError(w, "Failed to fetch board", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) updateBoard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	b, ok := s.loadBoard(ctx, w, r)
	if !ok {
		return
	}
	if !ownsBoard(b, currentUser(r)) {
		sendError(w, "You don't have permission to edit this board", http.StatusForbidden)
		return
	}
	var input struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
	}
	if !decodeBody(w, r, &input) {
		return
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" || len(name) > 100 {
			sendError(w, "name is required and must be <= 100 characters", http.StatusBadRequest)
			return
		}
		b.Name = name
	}
	if input.Description != nil {
		if len(*input.Description) > 500 {
			sendError(w, "description must be <= 500 characters", http.StatusBadRequest)
			return
		}
		b.Description = *input.Description
	}
	b.UpdatedAt = time.Now().UTC()
	if err := s.Boards.Update(ctx, b); err != nil {
		sendError(w, "Failed to update board", http.StatusInternalServerError)
		return
	}
	v, err := s.boardView(ctx, *b)
	if err != nil {
		sendError(w, "Failed to update board", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) deleteBoard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	b, ok := s.loadBoard(ctx, w, r)
	if !ok {
		return
	}
	if !ownsBoard(b, currentUser(r)) {
		sendError(w, "You don't have permission to delete this board", http.StatusForbidden)
		return
	}
	if err := s.Boards.Delete(ctx, string(b.ID)); err != nil {
		sendError(w, "Failed to delete board", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
