package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/APTlantis/grf-patcher/internal/config"
	"github.com/APTlantis/grf-patcher/internal/engine"
)

func newApplyCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "apply",
		Short: "Run one full update cycle: check, download, and apply pending patches.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd.Context(), opts)
		},
	}
}

func runApply(ctx context.Context, opts *globalOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if opts.dryRun {
		if _, ok := cfg.Web.Resolve(); !ok {
			return fmt.Errorf("no patch server configured")
		}
		fmt.Println("dry-run: configuration is valid, no patches were downloaded or applied")
		return nil
	}

	engine.StartMetricsServer(opts.listenAddr)

	eng := engine.New(cfg, opts.installDir, opts.cachePath)

	stop := make(chan struct{})
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for {
			select {
			case ev := <-eng.Events():
				logEvent(ev)
			case <-stop:
				return
			}
		}
	}()

	runErr := eng.Run(ctx)
	close(stop)
	<-drained

	// one final non-blocking drain for events queued between the last
	// select iteration and the goroutine's exit
	for {
		select {
		case ev := <-eng.Events():
			logEvent(ev)
		default:
			if runErr != nil {
				return fmt.Errorf("run update cycle: %w", runErr)
			}
			return nil
		}
	}
}

func logEvent(ev any) {
	switch e := ev.(type) {
	case engine.StatusEvent:
		if e.Err != "" {
			slog.Error("status", "state", e.Status, "err", e.Err)
			return
		}
		slog.Info("status", "state", e.Status, "current", e.Current, "total", e.Total, "filename", e.Filename)
	case engine.ProgressEvent:
		slog.Debug("progress", "filename", e.Filename, "downloaded", e.Downloaded, "total", e.Total, "percentage", e.Percentage)
	}
}
