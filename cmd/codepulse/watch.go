package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/oklog/run"

	"github.com/Strob0t/CodePulse/internal/adapter/term"
	"github.com/Strob0t/CodePulse/internal/domain/task"
	"github.com/Strob0t/CodePulse/internal/session"
)

// runRun submits a new task and follows it until terminal.
func runRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	userID := fs.String("user", "", "user id to attribute the task to")
	codex := fs.String("codex", "", "executor version to request")
	verbose := fs.Bool("v", false, "print individual events as they arrive")
	if err := fs.Parse(args); err != nil {
		return err
	}

	description := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if description == "" {
		return errors.New("a task description is required")
	}

	ctx := context.Background()
	d, cleanup, err := loadDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	uid := *userID
	if uid == "" {
		if u := d.creds.User(); u != nil {
			uid = u.ID
		} else {
			// Anonymous submissions still need a stable id for the task list.
			uid = "anon-" + uuid.NewString()
		}
	}

	resp, err := d.client.CreateTask(ctx, task.CreateRequest{
		Description:  description,
		UserID:       uid,
		CodexVersion: *codex,
	})
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	fmt.Fprintf(os.Stderr, "task %s created (%s)\n", resp.TaskID, resp.Status)

	return watch(ctx, d, resp.TaskID, *verbose)
}

// runAttach re-attaches to an existing task by id.
func runAttach(args []string) error {
	fs := flag.NewFlagSet("attach", flag.ContinueOnError)
	verbose := fs.Bool("v", false, "print individual events as they arrive")
	resume := fs.Bool("resume", false, "ask the server to resume the task first")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: codepulse attach [options] <task-id>")
	}
	taskID := fs.Arg(0)

	ctx := context.Background()
	d, cleanup, err := loadDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if *resume {
		if err := d.client.Resume(ctx, taskID); err != nil {
			return fmt.Errorf("resume task: %w", err)
		}
	}

	return watch(ctx, d, taskID, *verbose)
}

// watch drives one session to its end: terminal state, hard stop, timeout,
// or an interrupt from the operator.
func watch(ctx context.Context, d *deps, taskID string, verbose bool) error {
	renderer := term.NewRenderer(os.Stdout, verbose)
	sess := session.New(d.client, renderer, d.cfg)
	sess.SetMetrics(d.metrics)

	watchCtx, cancel := context.WithCancel(ctx)

	var g run.Group
	g.Add(run.SignalHandler(watchCtx, os.Interrupt, syscall.SIGTERM))
	g.Add(func() error {
		if err := sess.Activate(watchCtx, taskID); err != nil {
			return err
		}
		select {
		case <-renderer.Done():
			return nil
		case <-watchCtx.Done():
			return watchCtx.Err()
		}
	}, func(error) {
		sess.Dispose()
		cancel()
	})

	err := g.Run()
	var sig run.SignalError
	if errors.As(err, &sig) {
		fmt.Fprintf(os.Stderr, "\ninterrupted; task %s keeps running server-side\n", taskID)
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
