package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ai_config/internal/app"
	"ai_config/internal/config"
	"ai_config/internal/coordinator"
)

const usage = `aiconfig - manage the AI provider configuration

Usage:
  aiconfig [flags] <command> [arguments]

Commands:
  show                    print the current configuration
  providers               list providers
  models [provider]       list models of a provider (default: current)
  set-provider <id>       switch provider (keeps the API key)
  set-key <key|->         set the API key ("-" reads it from stdin)
  set-model <name>        select a model of the current provider
  reset                   restore default parameters, keeping the key
  validate                check the API key against the provider
  report <title> [label=amount ...]
                          write a short report from the given figures
  extract <image>         read a receipt image
  outbox                  list remote saves that could not be delivered

Flags:
`

func main() {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	wait := flag.Duration("wait", 0, "how long to wait for the remote config before running (default REMOTE_TIMEOUT)")
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(flag.Args(), *wait); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, wait time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	deps, err := app.Build(ctx, cfg, coordinator.WithNotifier(printNotice))
	if err != nil {
		return err
	}
	defer func() {
		// Give pending remote saves a chance to land before exiting.
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Remote.Timeout+5*time.Second)
		defer cancel()
		if err := deps.Close(closeCtx); err != nil {
			fmt.Fprintf(os.Stderr, "WARNING: shutdown: %v\n", err)
		}
	}()

	if err := deps.Coordinator.Start(ctx); err != nil {
		return err
	}

	if wait <= 0 {
		wait = cfg.Remote.Timeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	if err := deps.Coordinator.WaitIdle(waitCtx); err != nil {
		fmt.Fprintln(os.Stderr, "WARNING: remote configuration not loaded yet, using local values")
	}
	cancel()

	return dispatch(ctx, deps, args)
}

func printNotice(n coordinator.Notice) {
	switch n.Kind {
	case coordinator.NoticeSavedLocally:
		fmt.Fprintln(os.Stderr, savedLocallyMessage(n))
	case coordinator.NoticeRemoteLoadFailed:
		fmt.Fprintln(os.Stderr, "NOTICE: could not load the remote configuration; using local values")
	case coordinator.NoticeLocalSaveFailed:
		fmt.Fprintf(os.Stderr, "NOTICE: could not write the local configuration: %v\n", n.Err)
	}
}

func savedLocallyMessage(n coordinator.Notice) string {
	switch {
	case n.Queued:
		return "NOTICE: saved locally; the remote copy will be updated when the connection recovers"
	case errors.Is(n.Err, coordinator.ErrRemoteNewer):
		return "NOTICE: saved locally; another device saved a newer configuration, so the remote copy was not changed"
	default:
		return fmt.Sprintf("NOTICE: saved locally; the remote copy was not updated: %v", n.Err)
	}
}
