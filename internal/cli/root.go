// Package cli defines the ckptbench command tree: a server command
// for every rank of the benchmark group, a run command for the
// driving client, a local command that does both in one process, and
// a history command over the stored results.
package cli

import (
	"github.com/spf13/cobra"
)

var (
	// cfgFile stores the path to the config file (if specified via flag)
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "ckptbench",
		Short: "Distributed checkpoint write benchmark",
		Long: `ckptbench measures how long synchronized model checkpoints take
across a group of ranks. Rank 0 exposes an HTTP endpoint that triggers
one checkpoint at a time; a driving client sweeps the configured steps
and passes and records every measured time.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (defaults to $CKPTBENCH_CONFIG if set)")
}
