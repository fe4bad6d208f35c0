package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/APTlantis/grf-patcher/internal/cache"
	"github.com/APTlantis/grf-patcher/internal/config"
	"github.com/APTlantis/grf-patcher/internal/manifest"
)

func newCheckCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Fetch the manifest and report how many patches are pending.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts)
		},
	}
}

func runCheck(opts *globalOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	server, ok := cfg.Web.Resolve()
	if !ok {
		return fmt.Errorf("no patch server configured")
	}

	client := manifest.NewClient()
	records, err := client.Fetch(server.PListURL)
	if err != nil {
		return fmt.Errorf("fetch manifest: %w", err)
	}

	store := cache.NewStore(opts.cachePath)
	localCache, err := store.Load()
	if err != nil {
		return fmt.Errorf("load cache: %w", err)
	}

	var pending int
	for _, rec := range records {
		if !localCache.HasInstalled(rec.Index) {
			pending++
		}
	}

	slog.Info("check complete", "server", server.Name, "manifest_entries", len(records), "pending", pending)
	fmt.Printf("%d patch(es) pending on server %q\n", pending, server.Name)
	return nil
}
