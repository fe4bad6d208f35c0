package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/APTlantis/grf-patcher/internal/cache"
)

func newStatusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report the locally cached patch-application state.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts)
		},
	}
}

func runStatus(opts *globalOptions) error {
	store := cache.NewStore(opts.cachePath)
	c, err := store.Load()
	if err != nil {
		return fmt.Errorf("load cache: %w", err)
	}

	fmt.Printf("last patch id: %d\n", c.LastPatchID)
	fmt.Printf("installed patches: %d\n", len(c.InstalledPatches))
	fmt.Printf("last check: %s\n", c.LastCheck)
	for name, version := range c.ContainerVersions {
		fmt.Printf("container %s: %s\n", name, version)
	}
	return nil
}
