package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chepyr/go-workboard/internal/client"
	"github.com/chepyr/go-workboard/internal/config"
)

const usage = `usage: workboard [-env file] <command> [args]

commands:
  whoami                              show the signed-in user
  boards                              list visible boards
  show <board>                        print a board's columns
  move <board> <column>:<i> <column>:<i>
                                      drag a task and confirm the move
  create-board <name> [description]   create a board
  add-task <board> <title> [status]   add a task to a board
  delete-task <task>                  delete a task
  assignments                         list boards with tasks assigned to you
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type app struct {
	api *client.Client
	log *logrus.Logger
	out io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("workboard", flag.ContinueOnError)
	fs.SetOutput(stderr)
	envFile := fs.String("env", ".env", "dotenv file to read before the environment")
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	logger := cfg.Logger(stderr)

	api, err := client.New(cfg.APIURL,
		client.WithSession(client.NewSession(cfg.Token)),
		client.WithAuthScheme(cfg.AuthScheme),
		client.WithTimeout(cfg.Timeout),
		client.WithLogger(logger),
	)
	if err != nil {
		fmt.Fprintf(stderr, "client: %v\n", err)
		return 1
	}

	if cfg.HasCredentials() {
		if _, err := api.Login(ctx, cfg.Username, cfg.Password); err != nil {
			logger.WithError(err).WithField("username", cfg.Username).Error("login failed")
			return 1
		}
		defer func() {
			// the signal context may already be done
			logoutCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
			defer cancel()
			if err := api.Logout(logoutCtx); err != nil {
				logger.WithError(err).Warn("logout failed")
			}
		}()
	} else if api.Session().Expired(time.Now()) {
		logger.Warn("configured token has expired")
	}

	a := &app{api: api, log: logger, out: stdout}
	if err := a.dispatch(ctx, fs.Arg(0), fs.Args()[1:]); err != nil {
		var uerr *usageError
		if errors.As(err, &uerr) {
			fmt.Fprintf(stderr, "%v\n\n%s", err, usage)
			return 2
		}
		logger.WithError(err).WithField("command", fs.Arg(0)).Error("command failed")
		return 1
	}
	return 0
}

type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "whoami":
		return a.whoami(ctx, args)
	case "boards":
		return a.boards(ctx, args)
	case "show":
		return a.show(ctx, args)
	case "move":
		return a.move(ctx, args)
	case "create-board":
		return a.createBoard(ctx, args)
	case "add-task":
		return a.addTask(ctx, args)
	case "delete-task":
		return a.deleteTask(ctx, args)
	case "assignments":
		return a.assignments(ctx, args)
	default:
		return usagef("unknown command %q", cmd)
	}
}
