package apitest

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	users, err := s.Users.List(ctx)
	if err != nil {
		sendError(w, "Failed to fetch users", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentUser(r))
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	u, err := s.Users.GetByID(ctx, mux.Vars(r)["id"])
	if err != nil {
		sendError(w, "User not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// assignmentTarget resolves the {id} of the per-user routes, which only
// the user themself may read.
func (s *Server) assignmentTarget(w http.ResponseWriter, r *http.Request) (string, bool) {
	if !s.assignRoutes {
		sendError(w, "Not found.", http.StatusNotFound)
		return "", false
	}
	id := mux.Vars(r)["id"]
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if _, err := s.Users.GetByID(ctx, id); err != nil {
		sendError(w, "User not found", http.StatusNotFound)
		return "", false
	}
	if string(currentUser(r).ID) != id {
		sendError(w, "You don't have permission to view this user's assignments", http.StatusForbidden)
		return "", false
	}
	return id, true
}

func (s *Server) userAssignments(w http.ResponseWriter, r *http.Request) {
	id, ok := s.assignmentTarget(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	tasks, err := s.Tasks.ListByAssignee(ctx, id)
	if err != nil {
		sendError(w, "Failed to fetch user assignments", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s.taskViews(tasks))
}

func (s *Server) userAssignedBoards(w http.ResponseWriter, r *http.Request) {
	id, ok := s.assignmentTarget(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	boards, err := s.Boards.ListAssigned(ctx, id)
	if err != nil {
		sendError(w, "Failed to fetch user assigned boards", http.StatusInternalServerError)
		return
	}
	views, err := s.boardViews(ctx, boards)
	if err != nil {
		sendError(w, "Failed to fetch user assigned boards", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, views)
}
