package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/Strob0t/CodePulse/internal/adapter/ristretto"
	"github.com/Strob0t/CodePulse/internal/service"
)

// runList prints the user's recent tasks.
func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	userID := fs.String("user", "", "user id (defaults to the signed-in account)")
	limit := fs.Int("limit", 20, "maximum number of tasks")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	d, cleanup, err := loadDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	uid := *userID
	if uid == "" {
		u := d.creds.User()
		if u == nil {
			return errors.New("not signed in; pass --user or run codepulse login")
		}
		uid = u.ID
	}

	tasks, err := d.client.UserTasks(ctx, uid, *limit)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tSTAGE\tPROGRESS\tUPDATED")
	for i := range tasks {
		updated := ""
		if !tasks[i].UpdatedAt.IsZero() {
			updated = tasks[i].UpdatedAt.Format("2006-01-02 15:04")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.0f%%\t%s\n",
			tasks[i].TaskID, tasks[i].Status, tasks[i].Stage, tasks[i].Progress*100, updated)
	}
	return w.Flush()
}

// runFiles prints a task's workspace file index.
func runFiles(args []string) error {
	fs := flag.NewFlagSet("files", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: codepulse files <task-id>")
	}

	ctx := context.Background()
	d, cleanup, err := loadDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	svc := service.NewFileService(d.client, nil)
	index, err := svc.Index(ctx, fs.Arg(0))
	if err != nil {
		return fmt.Errorf("list files: %w", err)
	}

	for _, f := range index.Files {
		fmt.Println(f)
	}
	fmt.Fprintf(os.Stderr, "%d files (archive: %s)\n",
		index.Total, d.client.DownloadURL(fs.Arg(0)))
	return nil
}

// runCat prints one or more workspace files to stdout. Repeated paths within
// one invocation are served from the file cache instead of re-fetched.
func runCat(args []string) error {
	fs := flag.NewFlagSet("cat", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return errors.New("usage: codepulse cat <task-id> <path>...")
	}
	taskID, paths := fs.Arg(0), fs.Args()[1:]

	ctx := context.Background()
	d, cleanup, err := loadDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	cache, err := ristretto.NewFileCache(d.cfg.Cache.FileCacheMB << 20)
	if err != nil {
		return fmt.Errorf("file cache: %w", err)
	}
	defer cache.Close()

	svc := service.NewFileService(d.client, cache)
	for _, path := range paths {
		f, err := svc.Get(ctx, taskID, path)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", path, err)
		}
		if len(paths) > 1 {
			fmt.Printf("==> %s <==\n", path)
		}
		fmt.Print(f.Content)
		if f.Content != "" && f.Content[len(f.Content)-1] != '\n' {
			fmt.Println()
		}
	}
	return nil
}
