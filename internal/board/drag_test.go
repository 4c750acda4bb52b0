package board

import (
	"errors"
	"slices"
	"testing"

	"github.com/chepyr/go-workboard/internal/models"
)

func fixtureTasks() []models.Task {
	return []models.Task{
		{ID: "T1", Title: "Draft release notes", Status: models.StatusToDo},
		{ID: "T2", Title: "Review release notes", Status: models.StatusToDo},
		{ID: "T3", Title: "Build it", Status: models.StatusInProgress},
		{ID: "T4", Title: "Ship it", Status: models.StatusCompleted},
	}
}

func ids(tasks []models.Task) []models.ID {
	out := []models.ID{}
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}

func to(col models.Status, idx int) *Location {
	return &Location{Column: col, Index: idx}
}

func TestReorder_CancelledGestureIsNoop(t *testing.T) {
	tasks := fixtureTasks()
	next, moved, err := Reorder(tasks, DragResult{Source: Location{Column: models.StatusToDo, Index: 0}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if moved != nil {
		t.Fatalf("cancelled gesture moved %s", moved.ID)
	}
	if !slices.Equal(ids(next), ids(tasks)) {
		t.Fatalf("list changed: %v", ids(next))
	}
}

func TestReorder_SamePositionIsNoop(t *testing.T) {
	for _, src := range []Location{
		{Column: models.StatusToDo, Index: 0},
		{Column: models.StatusToDo, Index: 1},
		{Column: models.StatusInProgress, Index: 0},
		{Column: models.StatusCompleted, Index: 0},
	} {
		t.Run(src.String(), func(t *testing.T) {
			tasks := fixtureTasks()
			dst := src
			next, moved, err := Reorder(tasks, DragResult{Source: src, Destination: &dst})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if moved != nil {
				t.Fatalf("same-position drop moved %s", moved.ID)
			}
			if !slices.Equal(ids(next), ids(tasks)) {
				t.Fatalf("list changed: %v", ids(next))
			}
		})
	}
}

func TestReorder_CrossColumnMoves(t *testing.T) {
	tests := []struct {
		name    string
		src     Location
		dst     *Location
		wantID  models.ID
		wantCol []models.ID
	}{
		{
			name:    "to-do head to in progress head",
			src:     Location{Column: models.StatusToDo, Index: 0},
			dst:     to(models.StatusInProgress, 0),
			wantID:  "T1",
			wantCol: []models.ID{"T1", "T3"},
		},
		{
			name:    "to-do tail after in progress",
			src:     Location{Column: models.StatusToDo, Index: 1},
			dst:     to(models.StatusInProgress, 1),
			wantID:  "T2",
			wantCol: []models.ID{"T3", "T2"},
		},
		{
			name:    "completed back to to-do middle",
			src:     Location{Column: models.StatusCompleted, Index: 0},
			dst:     to(models.StatusToDo, 1),
			wantID:  "T4",
			wantCol: []models.ID{"T1", "T4", "T2"},
		},
		{
			name:    "in progress to end of completed",
			src:     Location{Column: models.StatusInProgress, Index: 0},
			dst:     to(models.StatusCompleted, 1),
			wantID:  "T3",
			wantCol: []models.ID{"T4", "T3"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tasks := fixtureTasks()
			next, moved, err := Reorder(tasks, DragResult{Source: tt.src, Destination: tt.dst})
			if err != nil {
				t.Fatalf("Reorder: %v", err)
			}
			if moved == nil || moved.ID != tt.wantID {
				t.Fatalf("moved = %+v, want %s", moved, tt.wantID)
			}
			if moved.Status != tt.dst.Column {
				t.Errorf("moved status = %q, want %q", moved.Status, tt.dst.Column)
			}
			col := filterColumn(next, tt.dst.Column)
			if !slices.Equal(ids(col), tt.wantCol) {
				t.Errorf("destination column = %v, want %v", ids(col), tt.wantCol)
			}
			if col[tt.dst.Index].ID != tt.wantID {
				t.Errorf("task at destination index = %s, want %s", col[tt.dst.Index].ID, tt.wantID)
			}
			if len(next) != len(tasks) {
				t.Errorf("task count changed: %d -> %d", len(tasks), len(next))
			}
			// input untouched
			if tasks[0].Status != models.StatusToDo || tasks[3].Status != models.StatusCompleted {
				t.Errorf("input slice was modified: %+v", tasks)
			}
		})
	}
}

func TestReorder_WithinColumn(t *testing.T) {
	tasks := []models.Task{
		{ID: "A", Status: models.StatusToDo},
		{ID: "X", Status: models.StatusCompleted},
		{ID: "B", Status: models.StatusToDo},
		{ID: "C", Status: models.StatusToDo},
	}
	next, moved, err := Reorder(tasks, DragResult{
		Source:      Location{Column: models.StatusToDo, Index: 0},
		Destination: to(models.StatusToDo, 2),
	})
	if err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	if moved == nil || moved.ID != "A" || moved.Status != models.StatusToDo {
		t.Fatalf("moved = %+v", moved)
	}
	if got := ids(filterColumn(next, models.StatusToDo)); !slices.Equal(got, []models.ID{"B", "C", "A"}) {
		t.Fatalf("to-do column = %v", got)
	}
	if got := ids(filterColumn(next, models.StatusCompleted)); !slices.Equal(got, []models.ID{"X"}) {
		t.Fatalf("completed column = %v", got)
	}
}

func TestReorder_RejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name string
		dr   DragResult
	}{
		{"negative source", DragResult{Source: Location{models.StatusToDo, -1}, Destination: to(models.StatusToDo, 0)}},
		{"source past column", DragResult{Source: Location{models.StatusInProgress, 1}, Destination: to(models.StatusToDo, 0)}},
		{"empty source column", DragResult{Source: Location{models.StatusToDo, 0}, Destination: to(models.StatusToDo, 0)}},
		{"destination past end", DragResult{Source: Location{models.StatusToDo, 0}, Destination: to(models.StatusCompleted, 2)}},
		{"same column past end", DragResult{Source: Location{models.StatusToDo, 0}, Destination: to(models.StatusToDo, 2)}},
		{"negative destination", DragResult{Source: Location{models.StatusToDo, 0}, Destination: to(models.StatusCompleted, -1)}},
		{"unknown column", DragResult{Source: Location{"Blocked", 0}, Destination: to(models.StatusToDo, 0)}},
		{"unknown destination", DragResult{Source: Location{models.StatusToDo, 0}, Destination: to("Blocked", 0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tasks := fixtureTasks()
			if tt.name == "empty source column" {
				tasks = tasks[2:]
			}
			_, moved, err := Reorder(tasks, tt.dr)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("want *ValidationError, got %v", err)
			}
			if moved != nil {
				t.Fatalf("invalid gesture moved %s", moved.ID)
			}
		})
	}
}

func TestRestoreTask_ExactWhenNothingElseMoved(t *testing.T) {
	tasks := fixtureTasks()
	rp := captureRestorePoint(tasks, "T2")
	next, _, err := Reorder(tasks, DragResult{
		Source:      Location{Column: models.StatusToDo, Index: 1},
		Destination: to(models.StatusCompleted, 0),
	})
	if err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	restored := restoreTask(next, "T2", rp)
	if !slices.Equal(ids(restored), ids(tasks)) {
		t.Fatalf("restored order = %v, want %v", ids(restored), ids(tasks))
	}
	for i := range tasks {
		if restored[i].Status != tasks[i].Status {
			t.Fatalf("task %s status = %q, want %q", restored[i].ID, restored[i].Status, tasks[i].Status)
		}
	}
}
