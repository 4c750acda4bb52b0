package board

import (
	"fmt"
	"slices"

	"github.com/chepyr/go-workboard/internal/models"
)

// Location addresses a slot inside one column of a board.
type Location struct {
	Column models.Status
	Index  int
}

func (l Location) String() string {
	return fmt.Sprintf("%s[%d]", l.Column, l.Index)
}

// DragResult describes a finished drag gesture. A nil Destination means
// the gesture was cancelled.
type DragResult struct {
	Source      Location
	Destination *Location
}

// ValidationError reports a gesture that does not fit the current board.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid drag result: " + e.Reason
}

func invalid(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Reorder applies a drag result to a flat task list and returns the new
// list together with the moved task. It returns a nil task when the
// gesture changes nothing. The input slice is never modified.
func Reorder(tasks []models.Task, dr DragResult) ([]models.Task, *models.Task, error) {
	if dr.Destination == nil {
		return tasks, nil, nil
	}
	src, dst := dr.Source, *dr.Destination
	if !src.Column.Valid() {
		return nil, nil, invalid("unknown source column %q", src.Column)
	}
	if !dst.Column.Valid() {
		return nil, nil, invalid("unknown destination column %q", dst.Column)
	}

	srcIdx := columnIndexes(tasks, src.Column)
	if src.Index < 0 || src.Index >= len(srcIdx) {
		return nil, nil, invalid("source %s out of range (column holds %d tasks)", src, len(srcIdx))
	}
	if src == dst {
		return tasks, nil, nil
	}

	dstLen := len(columnIndexes(tasks, dst.Column))
	if dst.Column == src.Column {
		dstLen--
	}
	if dst.Index < 0 || dst.Index > dstLen {
		return nil, nil, invalid("destination %s out of range (column accepts 0..%d)", dst, dstLen)
	}

	pos := srcIdx[src.Index]
	moved := tasks[pos].Clone()
	moved.Status = dst.Column

	next := make([]models.Task, 0, len(tasks))
	for i, t := range tasks {
		if i != pos {
			next = append(next, t.Clone())
		}
	}
	next = slices.Insert(next, insertionPoint(next, dst.Column, dst.Index), moved)
	return next, &moved, nil
}

// columnIndexes returns the flat positions of the tasks in one column.
func columnIndexes(tasks []models.Task, col models.Status) []int {
	var out []int
	for i, t := range tasks {
		if t.Status == col {
			out = append(out, i)
		}
	}
	return out
}

// insertionPoint maps a column index to a flat index. Past the end of the
// column it lands right after the column's last task, or at the end of the
// list when the column is empty.
func insertionPoint(tasks []models.Task, col models.Status, index int) int {
	seen, last := 0, -1
	for i, t := range tasks {
		if t.Status != col {
			continue
		}
		if seen == index {
			return i
		}
		seen++
		last = i
	}
	if last >= 0 {
		return last + 1
	}
	return len(tasks)
}

func filterColumn(tasks []models.Task, col models.Status) []models.Task {
	out := []models.Task{}
	for _, t := range tasks {
		if t.Status == col {
			out = append(out, t.Clone())
		}
	}
	return out
}

func indexOfTask(tasks []models.Task, id models.ID) int {
	return slices.IndexFunc(tasks, func(t models.Task) bool { return t.ID == id })
}
