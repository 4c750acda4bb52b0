package board

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/chepyr/go-workboard/internal/models"
)

type updateCall struct {
	taskID models.ID
	status models.Status
}

// scripted is one canned reply of fakeUpdater. A non-nil gate blocks the
// call until it is closed.
type scripted struct {
	err  error
	echo *models.Task
	gate chan struct{}
}

type fakeUpdater struct {
	mu      sync.Mutex
	calls   []updateCall
	replies map[models.ID][]scripted
	entered chan updateCall
}

func newFakeUpdater() *fakeUpdater {
	return &fakeUpdater{
		replies: make(map[models.ID][]scripted),
		entered: make(chan updateCall, 32),
	}
}

func (f *fakeUpdater) script(id models.ID, r scripted) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[id] = append(f.replies[id], r)
}

func (f *fakeUpdater) UpdateTaskStatus(ctx context.Context, id models.ID, status models.Status) (*models.Task, error) {
	f.mu.Lock()
	f.calls = append(f.calls, updateCall{id, status})
	var r scripted
	if q := f.replies[id]; len(q) > 0 {
		r, f.replies[id] = q[0], q[1:]
	}
	f.mu.Unlock()

	f.entered <- updateCall{id, status}
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return r.echo, nil
}

func (f *fakeUpdater) Calls() []updateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func newTestController(t *testing.T, up TaskUpdater) *Controller {
	t.Helper()
	c, err := New(models.Board{ID: "B1", Name: "Release", Tasks: fixtureTasks()}, up)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func assertColumn(t *testing.T, c *Controller, status models.Status, want ...models.ID) {
	t.Helper()
	if want == nil {
		want = []models.ID{}
	}
	got := ids(c.Column(status))
	if !slices.Equal(got, want) {
		t.Fatalf("%s column = %v, want %v", status, got, want)
	}
}

func waitEntered(t *testing.T, f *fakeUpdater) updateCall {
	t.Helper()
	select {
	case call := <-f.entered:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update call")
	}
	return updateCall{}
}

func waitSettled(t *testing.T, a *Attempt) {
	t.Helper()
	select {
	case <-a.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("attempt %s for task %s did not settle", a.ID, a.TaskID)
	}
}

func mustApply(t *testing.T, c *Controller, src Location, dst *Location) *Attempt {
	t.Helper()
	a, err := c.ApplyDragResult(DragResult{Source: src, Destination: dst})
	if err != nil {
		t.Fatalf("ApplyDragResult(%s -> %v): %v", src, dst, err)
	}
	if a == nil {
		t.Fatalf("ApplyDragResult(%s -> %v) produced no attempt", src, dst)
	}
	return a
}

func confirmAsync(c *Controller, a *Attempt) <-chan error {
	errc := make(chan error, 1)
	go func() { errc <- c.ConfirmMove(context.Background(), a) }()
	return errc
}

func TestNew_RejectsInvalidInput(t *testing.T) {
	if _, err := New(models.Board{ID: "B1"}, nil); err == nil {
		t.Fatal("expected error for nil updater")
	}
	b := models.Board{ID: "B1", Tasks: []models.Task{{ID: "T1", Status: "Blocked"}}}
	if _, err := New(b, newFakeUpdater()); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestApplyDragResult_IgnoredGestures(t *testing.T) {
	up := newFakeUpdater()
	c := newTestController(t, up)

	tests := []struct {
		name string
		dr   DragResult
	}{
		{"cancelled", DragResult{Source: Location{models.StatusToDo, 0}}},
		{"same slot", DragResult{Source: Location{models.StatusToDo, 1}, Destination: to(models.StatusToDo, 1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := c.ApplyDragResult(tt.dr)
			if err != nil || a != nil {
				t.Fatalf("got (%v, %v), want (nil, nil)", a, err)
			}
			if got := c.Drop(context.Background(), tt.dr); got != nil {
				t.Fatalf("Drop returned attempt for ignored gesture")
			}
		})
	}
	if err := c.ConfirmMove(context.Background(), nil); err != nil {
		t.Fatalf("ConfirmMove(nil) = %v", err)
	}
	if n := len(up.Calls()); n != 0 {
		t.Fatalf("ignored gestures issued %d update calls", n)
	}
	assertColumn(t, c, models.StatusToDo, "T1", "T2")
}

func TestApplyDragResult_OutOfRangeLeavesStateUntouched(t *testing.T) {
	up := newFakeUpdater()
	c := newTestController(t, up)
	before := c.Tasks()

	_, err := c.ApplyDragResult(DragResult{
		Source:      Location{models.StatusInProgress, 3},
		Destination: to(models.StatusToDo, 0),
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("want *ValidationError, got %v", err)
	}
	if got := c.Tasks(); !slices.EqualFunc(got, before, func(a, b models.Task) bool { return a.Equal(b) }) {
		t.Fatalf("state changed after invalid gesture: %v", ids(got))
	}
	if len(c.Notices()) != 0 {
		t.Fatal("invalid gesture should not produce a notice")
	}
	if len(up.Calls()) != 0 {
		t.Fatal("invalid gesture reached the updater")
	}
}

func TestMove_OptimisticThenConfirmed(t *testing.T) {
	up := newFakeUpdater()
	gate := make(chan struct{})
	up.script("T1", scripted{gate: gate})
	c := newTestController(t, up)

	a := mustApply(t, c, Location{models.StatusToDo, 0}, to(models.StatusInProgress, 0))
	if a.State() != OptimisticallyApplied {
		t.Fatalf("state = %s", a.State())
	}
	// visible before the server answers
	assertColumn(t, c, models.StatusToDo, "T2")
	assertColumn(t, c, models.StatusInProgress, "T1", "T3")
	if !c.Pending("T1") {
		t.Fatal("T1 should be pending")
	}

	errc := confirmAsync(c, a)
	call := waitEntered(t, up)
	if call != (updateCall{"T1", models.StatusInProgress}) {
		t.Fatalf("update call = %+v", call)
	}
	close(gate)
	if err := <-errc; err != nil {
		t.Fatalf("ConfirmMove: %v", err)
	}

	if a.State() != Confirmed {
		t.Fatalf("state = %s, want confirmed", a.State())
	}
	if c.Pending("T1") {
		t.Fatal("T1 still pending after confirmation")
	}
	assertColumn(t, c, models.StatusToDo, "T2")
	assertColumn(t, c, models.StatusInProgress, "T1", "T3")
	if len(c.Notices()) != 0 {
		t.Fatalf("unexpected notices: %+v", c.Notices())
	}
}

func TestMove_FailureRollsBackAndNotifies(t *testing.T) {
	up := newFakeUpdater()
	boom := errors.New("server said no")
	up.script("T1", scripted{err: boom})
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c, err := New(models.Board{ID: "B1", Tasks: []models.Task{
		{ID: "T1", Status: models.StatusToDo},
		{ID: "T2", Status: models.StatusToDo},
	}}, up, WithClock(func() time.Time { return at }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	a := mustApply(t, c, Location{models.StatusToDo, 0}, to(models.StatusInProgress, 0))
	assertColumn(t, c, models.StatusToDo, "T2")
	assertColumn(t, c, models.StatusInProgress, "T1")

	err = c.ConfirmMove(context.Background(), a)
	if !errors.Is(err, boom) {
		t.Fatalf("ConfirmMove error = %v, want %v", err, boom)
	}
	if a.State() != RolledBack || !errors.Is(a.Err(), boom) {
		t.Fatalf("attempt = %s / %v", a.State(), a.Err())
	}

	assertColumn(t, c, models.StatusToDo, "T1", "T2")
	assertColumn(t, c, models.StatusInProgress)
	if got := c.Column(models.StatusToDo)[0].Status; got != models.StatusToDo {
		t.Fatalf("restored status = %q", got)
	}

	notices := c.Notices()
	if len(notices) != 1 {
		t.Fatalf("notices = %d, want 1", len(notices))
	}
	n := notices[0]
	if n.TaskID != "T1" || n.AttemptID != a.ID || n.Message != DefaultFailureMessage || !n.At.Equal(at) || !errors.Is(n.Err, boom) {
		t.Fatalf("notice = %+v", n)
	}
	if len(up.Calls()) != 1 {
		t.Fatalf("failed move was retried: %d calls", len(up.Calls()))
	}
}

func TestConfirmMove_TwiceIsRejected(t *testing.T) {
	up := newFakeUpdater()
	c := newTestController(t, up)
	a := mustApply(t, c, Location{models.StatusToDo, 0}, to(models.StatusCompleted, 0))

	if err := c.ConfirmMove(context.Background(), a); err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	if err := c.ConfirmMove(context.Background(), a); !errors.Is(err, ErrAttemptStarted) {
		t.Fatalf("second confirm = %v, want ErrAttemptStarted", err)
	}
	if len(up.Calls()) != 1 {
		t.Fatalf("calls = %d, want 1", len(up.Calls()))
	}
}

func TestConfirmMove_EchoHandling(t *testing.T) {
	updatedAt := time.Date(2024, 5, 2, 8, 30, 0, 0, time.UTC)

	t.Run("identical echo keeps task", func(t *testing.T) {
		up := newFakeUpdater()
		c := newTestController(t, up)
		a := mustApply(t, c, Location{models.StatusToDo, 0}, to(models.StatusInProgress, 1))
		echo := a.Task.Clone()
		up.script("T1", scripted{echo: &echo})

		if err := c.ConfirmMove(context.Background(), a); err != nil {
			t.Fatalf("ConfirmMove: %v", err)
		}
		assertColumn(t, c, models.StatusInProgress, "T3", "T1")
		assertColumn(t, c, models.StatusToDo, "T2")
	})

	t.Run("differing echo replaces task in place", func(t *testing.T) {
		up := newFakeUpdater()
		c := newTestController(t, up)
		a := mustApply(t, c, Location{models.StatusToDo, 0}, to(models.StatusInProgress, 1))
		echo := a.Task.Clone()
		echo.UpdatedAt = updatedAt
		echo.Title = "Draft release notes (edited)"
		up.script("T1", scripted{echo: &echo})

		if err := c.ConfirmMove(context.Background(), a); err != nil {
			t.Fatalf("ConfirmMove: %v", err)
		}
		col := c.Column(models.StatusInProgress)
		if !slices.Equal(ids(col), []models.ID{"T3", "T1"}) {
			t.Fatalf("in progress column = %v", ids(col))
		}
		if !col[1].UpdatedAt.Equal(updatedAt) || col[1].Title != echo.Title {
			t.Fatalf("echo not applied: %+v", col[1])
		}
	})

	t.Run("echo for another task is ignored", func(t *testing.T) {
		up := newFakeUpdater()
		c := newTestController(t, up)
		a := mustApply(t, c, Location{models.StatusToDo, 0}, to(models.StatusInProgress, 1))
		up.script("T1", scripted{echo: &models.Task{ID: "T9", Status: models.StatusToDo}})

		if err := c.ConfirmMove(context.Background(), a); err != nil {
			t.Fatalf("ConfirmMove: %v", err)
		}
		assertColumn(t, c, models.StatusInProgress, "T3", "T1")
		if len(c.Tasks()) != 4 {
			t.Fatalf("task count = %d", len(c.Tasks()))
		}
	})
}

func TestRollback_KeepsOtherTasksInFlightMoves(t *testing.T) {
	up := newFakeUpdater()
	t1Gate, t3Gate := make(chan struct{}), make(chan struct{})
	up.script("T1", scripted{err: errors.New("timeout"), gate: t1Gate})
	up.script("T3", scripted{gate: t3Gate})
	c := newTestController(t, up)

	a1 := mustApply(t, c, Location{models.StatusToDo, 0}, to(models.StatusCompleted, 1))
	a3 := mustApply(t, c, Location{models.StatusInProgress, 0}, to(models.StatusToDo, 0))
	assertColumn(t, c, models.StatusToDo, "T3", "T2")
	assertColumn(t, c, models.StatusCompleted, "T4", "T1")

	e1, e3 := confirmAsync(c, a1), confirmAsync(c, a3)
	waitEntered(t, up)
	waitEntered(t, up)

	close(t1Gate)
	if err := <-e1; err == nil {
		t.Fatal("expected T1 confirmation to fail")
	}
	// T1 is back in To-Do ahead of T2; T3's pending move is untouched.
	assertColumn(t, c, models.StatusToDo, "T3", "T1", "T2")
	assertColumn(t, c, models.StatusInProgress)
	assertColumn(t, c, models.StatusCompleted, "T4")
	if !c.Pending("T3") || a3.State() != OptimisticallyApplied {
		t.Fatalf("T3 attempt disturbed: pending=%v state=%s", c.Pending("T3"), a3.State())
	}

	close(t3Gate)
	if err := <-e3; err != nil {
		t.Fatalf("T3 confirmation: %v", err)
	}
	assertColumn(t, c, models.StatusToDo, "T3", "T1", "T2")
}

func TestConfirmations_CompleteOutOfOrder(t *testing.T) {
	up := newFakeUpdater()
	t1Gate := make(chan struct{})
	up.script("T1", scripted{err: errors.New("503"), gate: t1Gate})
	c := newTestController(t, up)

	a1 := mustApply(t, c, Location{models.StatusToDo, 0}, to(models.StatusInProgress, 0))
	a2 := mustApply(t, c, Location{models.StatusToDo, 0}, to(models.StatusCompleted, 0))
	assertColumn(t, c, models.StatusToDo)
	assertColumn(t, c, models.StatusInProgress, "T1", "T3")
	assertColumn(t, c, models.StatusCompleted, "T2", "T4")

	e1 := confirmAsync(c, a1)
	waitEntered(t, up)

	// the later move lands first
	if err := c.ConfirmMove(context.Background(), a2); err != nil {
		t.Fatalf("T2 confirmation: %v", err)
	}
	close(t1Gate)
	if err := <-e1; err == nil {
		t.Fatal("expected T1 confirmation to fail")
	}

	assertColumn(t, c, models.StatusToDo, "T1")
	assertColumn(t, c, models.StatusInProgress, "T3")
	assertColumn(t, c, models.StatusCompleted, "T2", "T4")
	if len(c.Notices()) != 1 || c.Notices()[0].TaskID != "T1" {
		t.Fatalf("notices = %+v", c.Notices())
	}
}

func TestSameTaskMoves_AreSequenced(t *testing.T) {
	tests := []struct {
		name        string
		secondErr   error
		wantToDo    []models.ID
		wantDone    []models.ID
		wantNotices int
	}{
		{
			name:        "second move wins",
			wantToDo:    []models.ID{"T2"},
			wantDone:    []models.ID{"T1", "T4"},
			wantNotices: 1,
		},
		{
			name:        "both fail restores original slot",
			secondErr:   errors.New("still down"),
			wantToDo:    []models.ID{"T1", "T2"},
			wantDone:    []models.ID{"T4"},
			wantNotices: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := newFakeUpdater()
			gate := make(chan struct{})
			up.script("T1", scripted{err: errors.New("flaky"), gate: gate})
			up.script("T1", scripted{err: tt.secondErr})
			c := newTestController(t, up)

			first := mustApply(t, c, Location{models.StatusToDo, 0}, to(models.StatusInProgress, 0))
			second := mustApply(t, c, Location{models.StatusInProgress, 0}, to(models.StatusCompleted, 0))
			assertColumn(t, c, models.StatusCompleted, "T1", "T4")

			e1 := confirmAsync(c, first)
			waitEntered(t, up)
			e2 := confirmAsync(c, second)

			select {
			case call := <-up.entered:
				t.Fatalf("second move reached the server before the first settled: %+v", call)
			case <-time.After(50 * time.Millisecond):
			}

			close(gate)
			if err := <-e1; err == nil {
				t.Fatal("expected first move to fail")
			}
			// the superseded failure must not disturb the visible state
			if first.State() != RolledBack {
				t.Fatalf("first state = %s", first.State())
			}

			err := <-e2
			if (err != nil) != (tt.secondErr != nil) {
				t.Fatalf("second confirmation error = %v", err)
			}
			waitSettled(t, second)

			calls := up.Calls()
			want := []updateCall{{"T1", models.StatusInProgress}, {"T1", models.StatusCompleted}}
			if !slices.Equal(calls, want) {
				t.Fatalf("calls = %+v, want %+v", calls, want)
			}
			assertColumn(t, c, models.StatusToDo, tt.wantToDo...)
			assertColumn(t, c, models.StatusInProgress, "T3")
			assertColumn(t, c, models.StatusCompleted, tt.wantDone...)
			if got := len(c.Notices()); got != tt.wantNotices {
				t.Fatalf("notices = %d, want %d", got, tt.wantNotices)
			}
			if c.Pending("T1") {
				t.Fatal("T1 still pending")
			}
		})
	}
}

func TestConfirmMove_CancelledWhileQueuedRollsBack(t *testing.T) {
	up := newFakeUpdater()
	gate := make(chan struct{})
	up.script("T1", scripted{gate: gate})
	c := newTestController(t, up)

	first := mustApply(t, c, Location{models.StatusToDo, 0}, to(models.StatusInProgress, 0))
	second := mustApply(t, c, Location{models.StatusInProgress, 0}, to(models.StatusCompleted, 0))

	e1 := confirmAsync(c, first)
	waitEntered(t, up)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.ConfirmMove(ctx, second); !errors.Is(err, context.Canceled) {
		t.Fatalf("queued confirm = %v, want context.Canceled", err)
	}
	// T1 falls back to where the first move put it
	assertColumn(t, c, models.StatusInProgress, "T1", "T3")
	assertColumn(t, c, models.StatusCompleted, "T4")

	close(gate)
	if err := <-e1; err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	assertColumn(t, c, models.StatusInProgress, "T1", "T3")
	if len(up.Calls()) != 1 {
		t.Fatalf("cancelled move reached the server: %+v", up.Calls())
	}
}

func TestDrop_ConfirmsInBackground(t *testing.T) {
	up := newFakeUpdater()
	up.script("T2", scripted{err: errors.New("nope")})
	c := newTestController(t, up)

	ok := c.Drop(context.Background(), DragResult{Source: Location{models.StatusToDo, 0}, Destination: to(models.StatusCompleted, 0)})
	bad := c.Drop(context.Background(), DragResult{Source: Location{models.StatusToDo, 0}, Destination: to(models.StatusInProgress, 1)})
	if ok == nil || bad == nil {
		t.Fatal("Drop returned nil attempt")
	}
	waitSettled(t, ok)
	waitSettled(t, bad)

	if ok.State() != Confirmed || bad.State() != RolledBack {
		t.Fatalf("states = %s / %s", ok.State(), bad.State())
	}
	assertColumn(t, c, models.StatusToDo, "T2")
	assertColumn(t, c, models.StatusInProgress, "T3")
	assertColumn(t, c, models.StatusCompleted, "T1", "T4")
}

func TestDrop_LogsBackgroundFailure(t *testing.T) {
	up := newFakeUpdater()
	up.script("T1", scripted{err: errors.New("gateway timeout")})
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	c, err := New(models.Board{ID: "B1", Tasks: fixtureTasks()}, up, WithLogger(logger))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	a := c.Drop(context.Background(), DragResult{Source: Location{models.StatusToDo, 0}, Destination: to(models.StatusCompleted, 0)})
	if a == nil {
		t.Fatal("Drop returned nil attempt")
	}
	waitSettled(t, a)

	deadline := time.Now().Add(2 * time.Second)
	for {
		for _, e := range hook.AllEntries() {
			if e.Message != "background confirm failed" {
				continue
			}
			if e.Level != logrus.DebugLevel || e.Data["attempt_id"] != a.ID || e.Data["task_id"] != models.ID("T1") {
				t.Fatalf("unexpected entry: %s %v", e.Level, e.Data)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("background confirm failure was not logged")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDismissNotice(t *testing.T) {
	up := newFakeUpdater()
	up.script("T1", scripted{err: errors.New("x")})
	c, err := New(models.Board{ID: "B1", Tasks: fixtureTasks()}, up, WithFailureMessage("Could not move task"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a := mustApply(t, c, Location{models.StatusToDo, 0}, to(models.StatusCompleted, 0))
	_ = c.ConfirmMove(context.Background(), a)

	notices := c.Notices()
	if len(notices) != 1 || notices[0].Message != "Could not move task" {
		t.Fatalf("notices = %+v", notices)
	}
	if c.Dismiss("missing") {
		t.Fatal("dismissed unknown notice")
	}
	if !c.Dismiss(notices[0].ID) {
		t.Fatal("Dismiss returned false")
	}
	if len(c.Notices()) != 0 {
		t.Fatal("notice still listed after dismiss")
	}
}

type fakeLoader struct {
	board *models.Board
	err   error
}

func (f fakeLoader) LoadBoard(ctx context.Context, id models.ID) (*models.Board, error) {
	if f.err != nil {
		return nil, f.err
	}
	b := *f.board
	b.ID = id
	return &b, nil
}

func TestLoad(t *testing.T) {
	up := newFakeUpdater()
	c, err := Load(context.Background(), fakeLoader{board: &models.Board{Name: "Release", Tasks: fixtureTasks()}}, up, "42")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	b := c.Board()
	if b.ID != "42" || b.Name != "Release" || len(b.Tasks) != 4 {
		t.Fatalf("board = %+v", b)
	}
	cols := c.Columns()
	if len(cols) != 3 || cols[0].Status != models.StatusToDo || len(cols[0].Tasks) != 2 {
		t.Fatalf("columns = %+v", cols)
	}

	notFound := errors.New("not found")
	if _, err := Load(context.Background(), fakeLoader{err: notFound}, up, "7"); !errors.Is(err, notFound) {
		t.Fatalf("Load error = %v", err)
	}
}

func TestSnapshotsAreCopies(t *testing.T) {
	c := newTestController(t, newFakeUpdater())
	tasks := c.Tasks()
	tasks[0].Status = models.StatusCompleted
	tasks[0].Title = "mutated"
	assertColumn(t, c, models.StatusToDo, "T1", "T2")
	if c.Tasks()[0].Title == "mutated" {
		t.Fatal("snapshot shares memory with controller")
	}
}
