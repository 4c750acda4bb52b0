package board

import (
	"slices"

	"github.com/chepyr/go-workboard/internal/models"
)

type slot struct {
	id     models.ID
	status models.Status
}

// restorePoint remembers where a task sat before a move so the move can be
// undone later, even after other tasks have moved in the meantime.
type restorePoint struct {
	status models.Status
	order  []slot
	// column neighbours at capture time, nearest first
	before []models.ID
	after  []models.ID
}

func captureRestorePoint(tasks []models.Task, id models.ID) restorePoint {
	pos := indexOfTask(tasks, id)
	rp := restorePoint{order: make([]slot, 0, len(tasks))}
	for _, t := range tasks {
		rp.order = append(rp.order, slot{id: t.ID, status: t.Status})
	}
	if pos < 0 {
		return rp
	}
	rp.status = tasks[pos].Status
	for i := pos - 1; i >= 0; i-- {
		if tasks[i].Status == rp.status {
			rp.before = append(rp.before, tasks[i].ID)
		}
	}
	for i := pos + 1; i < len(tasks); i++ {
		if tasks[i].Status == rp.status {
			rp.after = append(rp.after, tasks[i].ID)
		}
	}
	return rp
}

// restoreTask puts the task back at its captured position and status.
// Other tasks keep their current values and placement.
func restoreTask(tasks []models.Task, id models.ID, rp restorePoint) []models.Task {
	pos := indexOfTask(tasks, id)
	if pos < 0 {
		return tasks
	}
	moved := tasks[pos]
	moved.Status = rp.status
	rest := slices.Delete(slices.Clone(tasks), pos, pos+1)

	// Nothing else changed: reproduce the captured order exactly.
	if at, ok := exactSlot(rp.order, rest, id); ok {
		return slices.Insert(rest, at, moved)
	}
	return slices.Insert(rest, neighbourSlot(rest, rp), moved)
}

func exactSlot(order []slot, rest []models.Task, id models.ID) (int, bool) {
	at := slices.IndexFunc(order, func(s slot) bool { return s.id == id })
	if at < 0 || len(order)-1 != len(rest) {
		return 0, false
	}
	j := 0
	for _, s := range order {
		if s.id == id {
			continue
		}
		if rest[j].ID != s.id || rest[j].Status != s.status {
			return 0, false
		}
		j++
	}
	return at, true
}

func neighbourSlot(rest []models.Task, rp restorePoint) int {
	for _, id := range rp.after {
		if i := indexOfTask(rest, id); i >= 0 && rest[i].Status == rp.status {
			return i
		}
	}
	for _, id := range rp.before {
		if i := indexOfTask(rest, id); i >= 0 && rest[i].Status == rp.status {
			return i + 1
		}
	}
	return insertionPoint(rest, rp.status, len(rest))
}
