package board

import (
	"sync"

	"github.com/chepyr/go-workboard/internal/models"
)

// AttemptState tracks one move through
// Idle -> OptimisticallyApplied -> Confirmed | RolledBack.
type AttemptState int

const (
	Idle AttemptState = iota
	OptimisticallyApplied
	Confirmed
	RolledBack
)

func (s AttemptState) String() string {
	switch s {
	case Idle:
		return "idle"
	case OptimisticallyApplied:
		return "optimistically_applied"
	case Confirmed:
		return "confirmed"
	case RolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

func (s AttemptState) Terminal() bool {
	return s == Confirmed || s == RolledBack
}

// Attempt is a single optimistic move awaiting confirmation.
type Attempt struct {
	ID     string
	TaskID models.ID
	From   Location
	To     Location
	// Task is the moved task as it looked right after the optimistic apply.
	Task models.Task

	base restorePoint // guarded by the controller's mutex
	prev *Attempt     // earlier unsettled move of the same task

	mu       sync.Mutex
	state    AttemptState
	err      error
	started  bool
	done     chan struct{}
	released chan struct{}
}

func newAttempt(id string, task models.Task, from, to Location, base restorePoint, prev *Attempt) *Attempt {
	return &Attempt{
		ID:       id,
		TaskID:   task.ID,
		From:     from,
		To:       to,
		Task:     task,
		base:     base,
		prev:     prev,
		state:    OptimisticallyApplied,
		done:     make(chan struct{}),
		released: make(chan struct{}),
	}
}

// NewStatus is the status the move asks the server to store.
func (a *Attempt) NewStatus() models.Status {
	return a.To.Column
}

func (a *Attempt) State() AttemptState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Err returns the confirmation failure of a rolled back attempt.
func (a *Attempt) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Done is closed once the attempt reaches a terminal state.
func (a *Attempt) Done() <-chan struct{} {
	return a.done
}

// start marks the confirmation as issued. It fails when the attempt is
// already being confirmed or has settled.
func (a *Attempt) start() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started || a.state.Terminal() {
		return false
	}
	a.started = true
	return true
}

func (a *Attempt) settle(state AttemptState, err error, prev *Attempt) {
	a.mu.Lock()
	a.state = state
	a.err = err
	a.mu.Unlock()
	close(a.done)

	// A successor may only talk to the server once every earlier move of
	// the same task has finished.
	if prev == nil {
		close(a.released)
		return
	}
	go func() {
		<-prev.released
		close(a.released)
	}()
}
