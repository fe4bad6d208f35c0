package main

import (
	"github.com/spf13/cobra"
)

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	cachePath  string
	installDir string
	logFormat  string
	logLevel   string
	dryRun     bool
	listenAddr string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "patchclient",
		Short: "GRF patch client: check, apply, and report patch state.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(opts.logFormat, opts.logLevel)
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "config.yaml", "Path to the client configuration file")
	root.PersistentFlags().StringVar(&opts.cachePath, "cache", "cache.json", "Path to the local patch-state cache file")
	root.PersistentFlags().StringVar(&opts.installDir, "install-dir", ".", "Game installation directory")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "Logging format: text|json")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Logging level: debug|info|warn|error")
	root.PersistentFlags().BoolVar(&opts.dryRun, "dry-run", false, "apply: validate the configuration and exit without downloading or writing")
	root.PersistentFlags().StringVar(&opts.listenAddr, "listen", "", "Address to serve Prometheus metrics on (e.g. :9090); disabled when empty")

	root.AddCommand(newCheckCmd(opts))
	root.AddCommand(newApplyCmd(opts))
	root.AddCommand(newStatusCmd(opts))

	return root
}
