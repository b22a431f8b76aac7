package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"notiflink/internal/app"
	"notiflink/internal/storage"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "notiflink",
		Short:         "Notification intake and delivery pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "./config.json", "path to config (json, yaml or toml)")

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newFilterCmd(opts))
	cmd.AddCommand(newMuteCmd(opts))
	return cmd
}

// withStore opens the configured store for the duration of fn.
func (o *rootOptions) withStore(fn func(ctx context.Context, st storage.Store) error) error {
	st, err := app.OpenStore(o.configPath)
	if err != nil {
		return err
	}
	defer st.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return fn(ctx, st)
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		events string
		wait   bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Replay a JSONL event stream through the pipeline",
		Long: `Run starts the pipeline and feeds it the records of a JSON Lines event
stream ("-" or empty reads stdin). With --wait the daemon keeps running after
the stream ends until SIGINT/SIGTERM, applying config changes as they land.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, closeIn, err := openEvents(events, cmd.InOrStdin())
			if err != nil {
				return err
			}
			defer closeIn()
			return runDaemon(cmd.Context(), opts.configPath, in, wait)
		},
	}
	cmd.Flags().StringVarP(&events, "events", "e", "-", "event stream file")
	cmd.Flags().BoolVar(&wait, "wait", false, "keep running after the stream ends")
	return cmd
}

func openEvents(path string, stdin io.Reader) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open events: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func runDaemon(parent context.Context, cfgPath string, in io.Reader, wait bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.NewApp(cfgPath)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Stop(context.Background(), app.StopFatalError)
		return fmt.Errorf("start: %w", err)
	}

	reason := app.StopStreamEnded
	_, runErr := a.Run(ctx, in)
	switch {
	case runErr == nil && wait:
		select {
		case <-ctx.Done():
			reason = app.StopSIGTERM
		case <-a.Done():
			reason = app.StopFatalError
			runErr = a.Err()
		}
	case errors.Is(runErr, context.Canceled) && ctx.Err() != nil:
		reason = app.StopSIGTERM
		runErr = nil
	case runErr != nil:
		reason = app.StopFatalError
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, reason); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
