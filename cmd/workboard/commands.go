package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/chepyr/go-workboard/internal/board"
	"github.com/chepyr/go-workboard/internal/client"
	"github.com/chepyr/go-workboard/internal/models"
)

func (a *app) whoami(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return usagef("whoami takes no arguments")
	}
	u, err := a.api.CurrentUser(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s\t%s\t%s\n", u.ID, u.Username, u.Email)
	return nil
}

func (a *app) boards(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return usagef("boards takes no arguments")
	}
	boards, err := a.api.Boards(ctx)
	if err != nil {
		return err
	}
	for _, b := range boards {
		fmt.Fprintf(a.out, "%s\t%s\n", b.ID, b.Name)
	}
	return nil
}

func (a *app) show(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usagef("show needs a board id")
	}
	ctrl, err := board.Load(ctx, a.api, a.api, models.ID(args[0]), board.WithLogger(a.log))
	if err != nil {
		return err
	}
	printBoard(a, ctrl)
	return nil
}

func (a *app) move(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return usagef("move needs a board id, a source and a destination")
	}
	src, err := parseLocation(args[1])
	if err != nil {
		return usagef("source: %v", err)
	}
	dst, err := parseLocation(args[2])
	if err != nil {
		return usagef("destination: %v", err)
	}

	ctrl, err := board.Load(ctx, a.api, a.api, models.ID(args[0]), board.WithLogger(a.log))
	if err != nil {
		return err
	}
	attempt, err := ctrl.ApplyDragResult(board.DragResult{Source: src, Destination: &dst})
	if err != nil {
		return usagef("%v", err)
	}
	if attempt == nil {
		fmt.Fprintln(a.out, "nothing to move")
		return nil
	}

	confirmErr := ctrl.ConfirmMove(ctx, attempt)
	printBoard(a, ctrl)
	for _, n := range ctrl.Notices() {
		fmt.Fprintf(a.out, "! %s\n", n.Message)
	}
	return confirmErr
}

func (a *app) createBoard(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return usagef("create-board needs a name and an optional description")
	}
	in := client.BoardInput{Name: args[0]}
	if len(args) == 2 {
		in.Description = args[1]
	}
	b, err := a.api.CreateBoard(ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s\t%s\n", b.ID, b.Name)
	return nil
}

func (a *app) addTask(ctx context.Context, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return usagef("add-task needs a board id, a title and an optional status")
	}
	in := client.TaskInput{BoardID: models.ID(args[0]), Title: args[1]}
	if len(args) == 3 {
		s, err := models.ParseStatus(args[2])
		if err != nil {
			return usagef("%v", err)
		}
		in.Status = s
	}
	t, err := a.api.CreateTask(ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s\t%s\t%s\n", t.ID, t.Status, t.Title)
	return nil
}

func (a *app) deleteTask(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usagef("delete-task needs a task id")
	}
	return a.api.DeleteTask(ctx, models.ID(args[0]))
}

func (a *app) assignments(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return usagef("assignments takes no arguments")
	}
	u := a.api.Session().User()
	if u == nil {
		var err error
		if u, err = a.api.CurrentUser(ctx); err != nil {
			return err
		}
	}
	boards, err := a.api.AssignedBoards(ctx, u.ID)
	if err != nil {
		return err
	}
	for _, b := range boards {
		fmt.Fprintf(a.out, "%s\t%s\n", b.ID, b.Name)
		for _, t := range b.Tasks {
			if t.Assignee != nil && t.Assignee.ID == u.ID {
				fmt.Fprintf(a.out, "  %s\t%s\t%s\n", t.ID, t.Status, t.Title)
			}
		}
	}
	return nil
}

func printBoard(a *app, ctrl *board.Controller) {
	b := ctrl.Board()
	fmt.Fprintf(a.out, "%s\n", b.Name)
	for _, col := range ctrl.Columns() {
		fmt.Fprintf(a.out, "[%s]\n", col.Status)
		for i, t := range col.Tasks {
			fmt.Fprintf(a.out, "  %d  %s\t%s\n", i, t.ID, t.Title)
		}
	}
}

// parseLocation reads "<column>:<index>", for example "todo:0" or
// "in-progress:2".
func parseLocation(s string) (board.Location, error) {
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return board.Location{}, fmt.Errorf("%q is not <column>:<index>", s)
	}
	status, err := models.ParseStatus(s[:i])
	if err != nil {
		return board.Location{}, err
	}
	idx, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return board.Location{}, fmt.Errorf("index %q: %w", s[i+1:], err)
	}
	if idx < 0 {
		return board.Location{}, errors.New("index must not be negative")
	}
	return board.Location{Column: status, Index: idx}, nil
}
