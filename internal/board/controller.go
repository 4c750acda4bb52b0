// Package board keeps the in-memory view of one WorkBoard and mediates
// drag-driven status changes between optimistic local edits and the
// remote task API.
package board

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chepyr/go-workboard/internal/models"
)

// TaskUpdater persists a task's new status and returns the stored task.
type TaskUpdater interface {
	UpdateTaskStatus(ctx context.Context, taskID models.ID, status models.Status) (*models.Task, error)
}

// BoardLoader fetches a board with its tasks.
type BoardLoader interface {
	LoadBoard(ctx context.Context, boardID models.ID) (*models.Board, error)
}

// Column is the derived list of tasks sharing one status.
type Column struct {
	Status models.Status
	Tasks  []models.Task
}

// Controller owns the task list of a single board. All mutation goes
// through ApplyDragResult and ConfirmMove.
type Controller struct {
	mu       sync.Mutex
	board    models.Board
	tasks    []models.Task
	pending  map[models.ID][]*Attempt
	notices  []Notice
	updater  TaskUpdater
	log      *logrus.Logger
	now      func() time.Time
	failText string
}

type Option func(*Controller)

func WithLogger(l *logrus.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithClock overrides the time source used for notices.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithFailureMessage replaces the text shown when a move cannot be saved.
func WithFailureMessage(msg string) Option {
	return func(c *Controller) {
		if msg != "" {
			c.failText = msg
		}
	}
}

// New seeds a controller from an already loaded board. Tasks with a status
// outside the fixed set are rejected.
func New(b models.Board, updater TaskUpdater, opts ...Option) (*Controller, error) {
	if updater == nil {
		return nil, fmt.Errorf("board: nil task updater")
	}
	tasks := make([]models.Task, 0, len(b.Tasks))
	for _, t := range b.Tasks {
		if !t.Status.Valid() {
			return nil, fmt.Errorf("board %s: task %s has invalid status %q", b.ID, t.ID, t.Status)
		}
		tasks = append(tasks, t.Clone())
	}
	b.Tasks = nil

	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	c := &Controller{
		board:    b,
		tasks:    tasks,
		pending:  make(map[models.ID][]*Attempt),
		updater:  updater,
		log:      quiet,
		now:      time.Now,
		failText: DefaultFailureMessage,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Load fetches the board once and seeds a controller with it.
func Load(ctx context.Context, loader BoardLoader, updater TaskUpdater, boardID models.ID, opts ...Option) (*Controller, error) {
	b, err := loader.LoadBoard(ctx, boardID)
	if err != nil {
		return nil, fmt.Errorf("load board %s: %w", boardID, err)
	}
	return New(*b, updater, opts...)
}

// Board returns the board metadata with a copy of the current tasks.
func (c *Controller) Board() models.Board {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.board
	b.Tasks = c.snapshot()
	return b
}

// Tasks returns a copy of the flat task list.
func (c *Controller) Tasks() []models.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Controller) Column(status models.Status) []models.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return filterColumn(c.tasks, status)
}

// Columns returns the three status columns in display order.
func (c *Controller) Columns() []Column {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Column, 0, len(models.Statuses()))
	for _, s := range models.Statuses() {
		out = append(out, Column{Status: s, Tasks: filterColumn(c.tasks, s)})
	}
	return out
}

// Pending reports whether a move of the task still awaits confirmation.
func (c *Controller) Pending(taskID models.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending[taskID]) > 0
}

func (c *Controller) snapshot() []models.Task {
	out := make([]models.Task, len(c.tasks))
	for i, t := range c.tasks {
		out[i] = t.Clone()
	}
	return out
}
