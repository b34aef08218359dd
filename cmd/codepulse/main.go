// Command codepulse is a terminal client for a task execution platform: it
// submits tasks, then keeps a live view of them through polling and a
// websocket push channel.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/Strob0t/CodePulse/internal/adapter/api"
	cpotel "github.com/Strob0t/CodePulse/internal/adapter/otel"
	"github.com/Strob0t/CodePulse/internal/config"
	"github.com/Strob0t/CodePulse/internal/credential"
	"github.com/Strob0t/CodePulse/internal/logger"
	"github.com/Strob0t/CodePulse/internal/resilience"
)

func main() {
	_ = godotenv.Load()

	args := os.Args[1:]
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" || args[0] == "-h" {
		printHelp()
		return
	}

	var err error
	switch args[0] {
	case "run":
		err = runRun(args[1:])
	case "attach":
		err = runAttach(args[1:])
	case "list":
		err = runList(args[1:])
	case "files":
		err = runFiles(args[1:])
	case "cat":
		err = runCat(args[1:])
	case "login":
		err = runLogin(args[1:])
	case "register":
		err = runRegister(args[1:])
	case "logout":
		err = runLogout(args[1:])
	case "apikey":
		err = runAPIKey(args[1:])
	case "whoami":
		err = runWhoami(args[1:])
	case "health":
		err = runHealth(args[1:])
	default:
		printHelp()
		err = fmt.Errorf("unknown command: %s", args[0])
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Fprintf(os.Stderr, `Usage: codepulse <command> [options]

Commands:
  run <description>    Submit a new task and follow it to completion
  attach <task-id>     Re-attach to an existing task and follow it
  list                 List your recent tasks
  files <task-id>      List a task's workspace files
  cat <task-id> <path>... Print workspace files
  login                Sign in with email and password
  register             Create an account
  logout               Sign out and clear stored credentials
  apikey               Store or clear a static API key
  whoami               Show the signed-in account
  health               Check server liveness
  help                 Show this help message

Examples:
  codepulse run "add integration tests for the payment flow"
  codepulse attach 4f7c21aa
  codepulse list --limit 5
`)
}

// deps bundles everything a subcommand needs.
type deps struct {
	cfg     *config.Config
	creds   *credential.Store
	client  *api.Client
	metrics *cpotel.Metrics
}

// loadDeps loads config, installs the logger, overlays the server's remote
// config document when reachable, and wires the HTTP client.
func loadDeps(ctx context.Context) (*deps, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(logger.New(cfg.Logging))

	shutdownTracer := cpotel.InitTracer(cfg.Logging.Service)

	if cfg.API.FetchRemoteConfig {
		doc, err := config.FetchRemote(ctx, cfg.API.BaseURL)
		switch {
		case err != nil:
			slog.Debug("remote config unavailable", "error", err)
		case doc != nil:
			config.ApplyRemote(cfg, doc)
			slog.Debug("remote config applied", "api_base", cfg.API.BaseURL)
		}
	}

	creds, err := credential.NewStore(cfg.Auth.CredentialsFile)
	if err != nil {
		return nil, nil, fmt.Errorf("open credential store: %w", err)
	}

	client := api.NewClient(cfg.API, cfg.Auth, creds)
	if cfg.Breaker.Enabled {
		client.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
	}

	d := &deps{cfg: cfg, creds: creds, client: client}
	if m, err := cpotel.NewMetrics(); err == nil {
		d.metrics = m
		client.SetMetrics(m)
	} else {
		slog.Debug("metrics unavailable", "error", err)
	}

	cleanup := func() {
		_ = shutdownTracer(context.Background())
	}
	return d, cleanup, nil
}

func runHealth(args []string) error {
	ctx := context.Background()
	d, cleanup, err := loadDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := d.client.Health(ctx); err != nil {
		return fmt.Errorf("server unhealthy: %w", err)
	}
	fmt.Println("ok:", d.client.BaseURL())
	return nil
}
