package board

import (
	"slices"
	"time"

	"github.com/chepyr/go-workboard/internal/models"
)

const DefaultFailureMessage = "Failed to update task. Please try again."

// Notice is a dismissable, user-facing report of a move that could not be
// saved.
type Notice struct {
	ID        string
	TaskID    models.ID
	AttemptID string
	Message   string
	Err       error
	At        time.Time
}

// Notices returns the undismissed notices, oldest first.
func (c *Controller) Notices() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.notices)
}

// Dismiss removes a notice and reports whether it existed.
func (c *Controller) Dismiss(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := slices.IndexFunc(c.notices, func(n Notice) bool { return n.ID == id })
	if i < 0 {
		return false
	}
	c.notices = slices.Delete(c.notices, i, i+1)
	return true
}
