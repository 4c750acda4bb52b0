package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusToDo       Status = "To-Do"
	StatusInProgress Status = "In Progress"
	StatusCompleted  Status = "Completed"
)

// Statuses returns the fixed column order of a board.
func Statuses() []Status {
	return []Status{StatusToDo, StatusInProgress, StatusCompleted}
}

func (s Status) Valid() bool {
	switch s {
	case StatusToDo, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// ParseStatus converts the various spellings used by WorkBoard backends
// into a canonical status value.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "to-do", "todo", "to_do", "to do":
		return StatusToDo, nil
	case "in progress", "in-progress", "in_progress", "inprogress":
		return StatusInProgress, nil
	case "completed", "done":
		return StatusCompleted, nil
	default:
		return "", fmt.Errorf("unknown task status %q", s)
	}
}

type Task struct {
	ID          ID        `json:"id"`
	BoardID     ID        `json:"board,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	Assignee    *User     `json:"assignee,omitempty"`
	CreatedBy   *User     `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Clone returns a copy that shares no pointers with t.
func (t Task) Clone() Task {
	if t.Assignee != nil {
		a := *t.Assignee
		t.Assignee = &a
	}
	if t.CreatedBy != nil {
		c := *t.CreatedBy
		t.CreatedBy = &c
	}
	return t
}

// Equal reports whether two tasks carry the same observable fields.
func (t Task) Equal(o Task) bool {
	if t.ID != o.ID || t.BoardID != o.BoardID || t.Title != o.Title ||
		t.Description != o.Description || t.Status != o.Status {
		return false
	}
	if !t.CreatedAt.Equal(o.CreatedAt) || !t.UpdatedAt.Equal(o.UpdatedAt) {
		return false
	}
	return sameUser(t.Assignee, o.Assignee) && sameUser(t.CreatedBy, o.CreatedBy)
}

func sameUser(a, b *User) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
