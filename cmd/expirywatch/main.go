package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"expirywatch/internal/app"
	"expirywatch/pkg/systemd"
)

// Populated at build time via -ldflags.
var version = "dev"

type flags struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newCommand(os.Stdout).Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func newCommand(out io.Writer) *cli.Command {
	f := &flags{}
	return &cli.Command{
		Name:    "expirywatch",
		Usage:   "Alert on tracked items before they expire",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file (JSON or YAML)",
				Sources:     cli.EnvVars("EXPIRYWATCH_CONFIG"),
				Value:       "./config.json",
				Destination: &f.configPath,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "override logging.level (trace, debug, info, warn, error)",
				Sources:     cli.EnvVars("EXPIRYWATCH_LOG_LEVEL"),
				Destination: &f.logLevel,
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run the daemon: scheduler, ops API and config watch",
				Action: f.run,
			},
			{
				Name:   "once",
				Usage:  "Run a single dispatch cycle and print the report as JSON",
				Action: func(ctx context.Context, _ *cli.Command) error { return f.once(ctx, out) },
			},
			{
				Name:  "ledger",
				Usage: "Print the ledger history of an item",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "item", Usage: "tracked item id", Required: true},
				},
				Action: func(ctx context.Context, c *cli.Command) error { return f.ledger(ctx, out, c.Int64("item")) },
			},
			{
				Name:   "stats",
				Usage:  "Print tracker statistics",
				Action: func(ctx context.Context, _ *cli.Command) error { return f.stats(ctx, out) },
			},
		},
	}
}

func (f *flags) open(ctx context.Context) (*app.App, error) {
	return app.NewApp(ctx, f.configPath, app.WithLogLevel(f.logLevel))
}

func (f *flags) run(ctx context.Context, _ *cli.Command) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigs)

	a, err := f.open(ctx)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Stop(context.Background(), app.StopFatalError)
		return err
	}
	_, _ = systemd.Ready()
	go func() { _ = systemd.Watchdog(ctx) }()

	var reason app.StopReason
wait:
	for {
		select {
		case s := <-sigs:
			switch s {
			case syscall.SIGHUP:
				if err := a.ReloadConfig(ctx); err != nil {
					fmt.Fprintln(os.Stderr, "config reload:", err)
				}
				continue
			case os.Interrupt:
				reason = app.StopSIGINT
			default:
				reason = app.StopSIGTERM
			}
			break wait
		case <-a.Done():
			reason = app.StopFatalError
			break wait
		}
	}

	_, _ = systemd.Stopping()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	if reason == app.StopFatalError {
		return a.Err()
	}
	return nil
}

func (f *flags) once(ctx context.Context, out io.Writer) error {
	a, err := f.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	rep, err := a.RunCycle(ctx)
	if err != nil {
		return err
	}
	return writeJSON(out, rep)
}

func (f *flags) ledger(ctx context.Context, out io.Writer, itemID int64) error {
	if itemID <= 0 {
		return errors.New("--item must be a positive id")
	}
	a, err := f.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	recs, err := a.History(ctx, itemID)
	if err != nil {
		return err
	}
	if recs == nil {
		return writeJSON(out, []any{})
	}
	return writeJSON(out, recs)
}

func (f *flags) stats(ctx context.Context, out io.Writer) error {
	a, err := f.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	st, ok, err := a.Stats(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("tracker has no statistics")
	}
	return writeJSON(out, st)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
