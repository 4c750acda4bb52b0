// Package apitest runs an in-process WorkBoard API backed by in-memory
// SQLite. It speaks the same routes and payloads as the real backend and
// can inject failures and delays into task updates.
package apitest

import (
	"context"
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/chepyr/go-workboard/internal/models"
)

const apiPrefix = "/api"

type fault struct {
	status int
	left   int
}

type Server struct {
	t      testing.TB
	ts     *httptest.Server
	db     *sql.DB
	log    *logrus.Logger
	secret []byte

	Users  *UserRepository
	Boards *BoardRepository
	Tasks  *TaskRepository

	limiter        *RateLimiter
	loginLimit     int
	requireCSRF    bool
	assignRoutes   bool
	embedBoardTask bool

	mu            sync.Mutex
	revoked       map[string]bool
	csrf          map[string]bool
	faults        map[models.ID]*fault
	holds         map[models.ID]chan struct{}
	lowerStatuses bool
	requests      map[string]int
}

type Option func(*Server)

func WithLogger(l *logrus.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithLoginLimit caps login attempts per client address per minute.
func WithLoginLimit(n int) Option {
	return func(s *Server) { s.loginLimit = n }
}

// RequireCSRF rejects unsafe requests without a token issued by /csrf/.
func RequireCSRF() Option {
	return func(s *Server) { s.requireCSRF = true }
}

// WithoutAssignmentRoutes answers 404 on the per-user assignment routes,
// like older backends did.
func WithoutAssignmentRoutes() Option {
	return func(s *Server) { s.assignRoutes = false }
}

// WithoutBoardTasks leaves the task list out of board payloads.
func WithoutBoardTasks() Option {
	return func(s *Server) { s.embedBoardTask = false }
}

// New starts a server that is shut down when the test ends.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()
	db, err := OpenDB()
	if err != nil {
		t.Fatalf("apitest: %v", err)
	}
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	s := &Server{
		t:              t,
		db:             db,
		log:            quiet,
		secret:         []byte(uuid.NewString()),
		Users:          NewUserRepository(db),
		Boards:         NewBoardRepository(db),
		Tasks:          NewTaskRepository(db),
		loginLimit:     100,
		assignRoutes:   true,
		embedBoardTask: true,
		revoked:        make(map[string]bool),
		csrf:           make(map[string]bool),
		faults:         make(map[models.ID]*fault),
		holds:          make(map[models.ID]chan struct{}),
		requests:       make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.limiter = NewRateLimiter(s.loginLimit, time.Minute)
	s.ts = httptest.NewServer(s.routes())

	t.Cleanup(func() {
		s.releaseAll()
		s.ts.Close()
		s.limiter.Stop()
		db.Close()
	})
	return s
}

// URL is the API base URL, including the /api prefix.
func (s *Server) URL() string { return s.ts.URL + apiPrefix }

func (s *Server) routes() http.Handler {
	root := mux.NewRouter()
	r := root.PathPrefix(apiPrefix).Subrouter()
	r.Use(s.countRequests)

	r.HandleFunc("/csrf/", s.handleCSRF).Methods(http.MethodGet)
	r.HandleFunc("/login/", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/logout/", s.auth(s.handleLogout)).Methods(http.MethodPost)

	r.HandleFunc("/users/", s.auth(s.listUsers)).Methods(http.MethodGet)
	r.HandleFunc("/users/me/", s.auth(s.currentUser)).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}/", s.auth(s.getUser)).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}/assignments/", s.auth(s.userAssignments)).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}/assigned-boards/", s.auth(s.userAssignedBoards)).Methods(http.MethodGet)

	r.HandleFunc("/boards/", s.auth(s.listBoards)).Methods(http.MethodGet)
	r.HandleFunc("/boards/", s.auth(s.createBoard)).Methods(http.MethodPost)
	r.HandleFunc("/boards/{id}/", s.auth(s.getBoard)).Methods(http.MethodGet)
	r.HandleFunc("/boards/{id}/", s.auth(s.updateBoard)).Methods(http.MethodPut, http.MethodPatch)
	r.HandleFunc("/boards/{id}/", s.auth(s.deleteBoard)).Methods(http.MethodDelete)

	r.HandleFunc("/tasks/", s.auth(s.listTasks)).Methods(http.MethodGet)
	r.HandleFunc("/tasks/", s.auth(s.createTask)).Methods(http.MethodPost)
	r.HandleFunc("/tasks/{id}/", s.auth(s.getTask)).Methods(http.MethodGet)
	r.HandleFunc("/tasks/{id}/", s.auth(s.updateTask)).Methods(http.MethodPut, http.MethodPatch)
	r.HandleFunc("/tasks/{id}/", s.auth(s.deleteTask)).Methods(http.MethodDelete)

	return cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-CSRFToken"},
		AllowCredentials: false,
	}).Handler(root)
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				s.mu.Lock()
				s.requests[r.Method+" "+strings.TrimPrefix(tpl, apiPrefix)]++
				s.mu.Unlock()
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Requests reports how often a route was hit, e.g. Requests("PATCH", "/tasks/{id}/").
func (s *Server) Requests(method, template string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[method+" "+template]
}

// FailTaskUpdates makes the next n updates of a task answer with status.
func (s *Server) FailTaskUpdates(taskID models.ID, status, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[taskID] = &fault{status: status, left: n}
}

// HoldTaskUpdates blocks updates of a task until the returned func is
// called. Requests whose client gives up are abandoned without writing.
func (s *Server) HoldTaskUpdates(taskID models.ID) (release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.holds[taskID]
	if !ok {
		ch = make(chan struct{})
		s.holds[taskID] = ch
	}
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.holds[taskID] == ch {
			delete(s.holds, taskID)
			close(ch)
		}
	}
}

// NormalizeStatusCase makes task payloads spell statuses in lower case, as
// some backends do.
func (s *Server) NormalizeStatusCase(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lowerStatuses = on
}

func (s *Server) releaseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.holds {
		close(ch)
		delete(s.holds, id)
	}
}

// beforeTaskUpdate applies the configured hold and failure for a task. It
// returns false when the response was already written.
func (s *Server) beforeTaskUpdate(w http.ResponseWriter, r *http.Request, taskID models.ID) bool {
	s.mu.Lock()
	hold := s.holds[taskID]
	s.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-r.Context().Done():
			return false
		}
	}

	s.mu.Lock()
	f := s.faults[taskID]
	if f != nil {
		f.left--
		if f.left <= 0 {
			delete(s.faults, taskID)
		}
	}
	s.mu.Unlock()
	if f != nil {
		s.log.WithFields(logrus.Fields{"task_id": taskID, "status": f.status}).Debug("injected task update failure")
		sendError(w, "injected failure", f.status)
		return false
	}
	return true
}

// AddUser stores a user with a bcrypt-hashed password.
func (s *Server) AddUser(username, password string) models.User {
	s.t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		s.t.Fatalf("apitest: hash password: %v", err)
	}
	u := models.User{
		ID:       models.ID(uuid.NewString()),
		Username: username,
		Email:    username + "@example.com",
	}
	if err := s.Users.Create(context.Background(), &u, string(hash)); err != nil {
		s.t.Fatalf("apitest: add user %s: %v", username, err)
	}
	return u
}

func (s *Server) AddBoard(owner models.User, name string) models.Board {
	s.t.Helper()
	now := time.Now().UTC()
	b := models.Board{
		ID:        models.ID(uuid.NewString()),
		Name:      name,
		Owner:     &owner,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Boards.Create(context.Background(), &b); err != nil {
		s.t.Fatalf("apitest: add board %s: %v", name, err)
	}
	return b
}

// AddTask stores a task on a board. The assignee may be nil.
func (s *Server) AddTask(b models.Board, title string, status models.Status, assignee *models.User) models.Task {
	s.t.Helper()
	now := time.Now().UTC()
	t := models.Task{
		ID:        models.ID(uuid.NewString()),
		BoardID:   b.ID,
		Title:     title,
		Status:    status,
		Assignee:  assignee,
		CreatedBy: b.Owner,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Tasks.Create(context.Background(), &t); err != nil {
		s.t.Fatalf("apitest: add task %s: %v", title, err)
	}
	return t
}

// Task reads a task straight from storage.
func (s *Server) Task(id models.ID) models.Task {
	s.t.Helper()
	t, err := s.Tasks.GetByID(context.Background(), string(id))
	if err != nil {
		s.t.Fatalf("apitest: task %s: %v", id, err)
	}
	return *t
}

// Token signs a token for the user without going through /login/.
func (s *Server) Token(u models.User) string {
	s.t.Helper()
	tok, err := s.issueToken(string(u.ID), 24*time.Hour)
	if err != nil {
		s.t.Fatalf("apitest: %v", err)
	}
	return tok
}
