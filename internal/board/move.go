package board

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/chepyr/go-workboard/internal/models"
)

var ErrAttemptStarted = errors.New("board: move is already being confirmed")

// ApplyDragResult reorders the board for a finished gesture before anything
// is sent to the server. It returns a nil attempt for cancelled gestures and
// drops onto the original slot. Out-of-range gestures leave the board
// untouched and return a *ValidationError.
func (c *Controller) ApplyDragResult(dr DragResult) (*Attempt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, moved, err := Reorder(c.tasks, dr)
	if err != nil {
		c.log.WithError(err).WithField("board_id", c.board.ID).Debug("drag ignored")
		return nil, err
	}
	if moved == nil {
		return nil, nil
	}

	base := captureRestorePoint(c.tasks, moved.ID)
	queue := c.pending[moved.ID]
	var prev *Attempt
	if len(queue) > 0 {
		prev = queue[len(queue)-1]
	}
	a := newAttempt(uuid.NewString(), moved.Clone(), dr.Source, *dr.Destination, base, prev)

	c.tasks = next
	c.pending[moved.ID] = append(queue, a)

	c.log.WithFields(logrus.Fields{
		"board_id":   c.board.ID,
		"task_id":    a.TaskID,
		"attempt_id": a.ID,
		"from":       a.From.String(),
		"to":         a.To.String(),
		"queued":     prev != nil,
	}).Debug("move applied")
	return a, nil
}

// ConfirmMove asks the server to store the attempt's new status. Moves of
// the same task reach the server in the order they were applied. On failure
// the attempt is rolled back and a notice is recorded; it is never retried.
func (c *Controller) ConfirmMove(ctx context.Context, a *Attempt) error {
	if a == nil {
		return nil
	}
	if !a.start() {
		return ErrAttemptStarted
	}

	if a.prev != nil {
		select {
		case <-a.prev.released:
		case <-ctx.Done():
			c.rollback(a, ctx.Err())
			return fmt.Errorf("confirm move of task %s: %w", a.TaskID, ctx.Err())
		}
	}

	start := time.Now()
	updated, err := c.updater.UpdateTaskStatus(ctx, a.TaskID, a.NewStatus())
	elapsed := time.Since(start)
	if err != nil {
		c.rollback(a, err)
		return fmt.Errorf("confirm move of task %s: %w", a.TaskID, err)
	}
	c.confirm(a, updated, elapsed)
	return nil
}

// Drop applies the gesture and confirms it on a separate goroutine.
// Ignored gestures return nil.
func (c *Controller) Drop(ctx context.Context, dr DragResult) *Attempt {
	a, err := c.ApplyDragResult(dr)
	if err != nil || a == nil {
		return nil
	}
	go func() {
		if err := c.ConfirmMove(ctx, a); err != nil {
			c.log.WithError(err).WithFields(logrus.Fields{
				"board_id":   c.board.ID,
				"task_id":    a.TaskID,
				"attempt_id": a.ID,
			}).Debug("background confirm failed")
		}
	}()
	return a
}

func (c *Controller) confirm(a *Attempt, updated *models.Task, elapsed time.Duration) {
	c.mu.Lock()
	latest := c.release(a)
	replaced := false
	if latest && updated != nil && updated.ID == a.TaskID && updated.Status.Valid() {
		if pos := indexOfTask(c.tasks, a.TaskID); pos >= 0 && !c.tasks[pos].Equal(*updated) {
			c.tasks[pos] = updated.Clone()
			replaced = true
		}
	}
	c.mu.Unlock()

	a.settle(Confirmed, nil, a.prev)
	c.log.WithFields(logrus.Fields{
		"board_id":   c.board.ID,
		"task_id":    a.TaskID,
		"attempt_id": a.ID,
		"status":     a.NewStatus(),
		"replaced":   replaced,
		"superseded": !latest,
		"elapsed_ms": float64(elapsed) / float64(time.Millisecond),
	}).Info("move confirmed")
}

func (c *Controller) rollback(a *Attempt, cause error) {
	c.mu.Lock()
	queue := c.pending[a.TaskID]
	if i := slices.Index(queue, a); i >= 0 {
		if i == len(queue)-1 {
			c.tasks = restoreTask(c.tasks, a.TaskID, a.base)
		} else {
			// A later move of the same task owns the visible state; when it
			// is undone it must land where this one started.
			queue[i+1].base = a.base
		}
	}
	c.release(a)
	n := Notice{
		ID:        uuid.NewString(),
		TaskID:    a.TaskID,
		AttemptID: a.ID,
		Message:   c.failText,
		Err:       cause,
		At:        c.now(),
	}
	c.notices = append(c.notices, n)
	c.mu.Unlock()

	a.settle(RolledBack, cause, a.prev)
	c.log.WithError(cause).WithFields(logrus.Fields{
		"board_id":   c.board.ID,
		"task_id":    a.TaskID,
		"attempt_id": a.ID,
		"status":     a.NewStatus(),
		"notice_id":  n.ID,
	}).Warn("move rolled back")
}

// release drops the attempt from the pending queue and reports whether it
// was the most recent move of its task. Caller holds c.mu.
func (c *Controller) release(a *Attempt) bool {
	queue := c.pending[a.TaskID]
	i := slices.Index(queue, a)
	if i < 0 {
		return false
	}
	latest := i == len(queue)-1
	queue = slices.Delete(queue, i, i+1)
	if len(queue) == 0 {
		delete(c.pending, a.TaskID)
	} else {
		c.pending[a.TaskID] = queue
	}
	return latest
}
