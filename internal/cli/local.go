package cli

import (
	"context"
	"os/signal"
	"syscall"

	"ckptbench/internal/driver"
	"ckptbench/internal/server"
	"ckptbench/pkg/config"

	"github.com/spf13/cobra"
)

var (
	localPort           int
	localModel          string
	localCheckpointDir  string
	localNumSteps       int
	localNumPasses      int
	localSleep          float64
	localResultsDir     string
	localCollectIostat  bool
	localIostatInterval int
	localVerbose        bool
)

var localCmd = &cobra.Command{
	Use:   "local",
	Short: "Run server and client in one process",
	Long: `Runs a single-rank benchmark end to end in one process: boots the
control rank, drives the configured passes against it and shuts it
down again. Useful for trying out a storage target without arranging
separate server and client processes.`,
	Example: `  # Benchmark the local disk with the default profile
  ckptbench local --checkpoint-dir /mnt/scratch

  # Two passes of three steps with iostat sampling
  ckptbench local --num-steps 3 --num-passes 2 --collect-iostat`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		applyLocalOverrides(cmd, cfg)

		// One process is the whole group.
		cfg.Server.Host = "127.0.0.1"
		cfg.Group = config.GroupConfig{Kind: "single", Rank: 0, Size: 1}

		if err := cfg.Validate(); err != nil {
			return err
		}
		return runLocal(cfg)
	},
}

func applyLocalOverrides(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = localPort
	}
	if cmd.Flags().Changed("model") {
		cfg.Checkpoint.Model = localModel
	}
	if cmd.Flags().Changed("checkpoint-dir") {
		cfg.Checkpoint.Dir = localCheckpointDir
	}
	if cmd.Flags().Changed("num-steps") {
		cfg.Run.NumSteps = localNumSteps
	}
	if cmd.Flags().Changed("num-passes") {
		cfg.Run.NumPasses = localNumPasses
	}
	if cmd.Flags().Changed("inter-checkpoint-sleep") {
		cfg.Run.InterCheckpointSleep = localSleep
	}
	if cmd.Flags().Changed("results-dir") {
		cfg.Run.ResultsDir = localResultsDir
	}
	if cmd.Flags().Changed("collect-iostat") {
		cfg.Iostat.Enabled = localCollectIostat
	}
	if cmd.Flags().Changed("iostat-interval") {
		cfg.Iostat.Interval = localIostatInterval
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Run.Verbose = localVerbose
	}
}

func runLocal(cfg *config.Config) error {
	app := server.NewApplication(cfg)
	if err := app.Initialize(); err != nil {
		return err
	}
	if err := app.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := driver.New(cfg).Run(ctx)

	if err := app.Shutdown(shutdownTimeout); err != nil && runErr == nil {
		runErr = err
	}
	if err := app.Err(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func init() {
	rootCmd.AddCommand(localCmd)

	localCmd.Flags().IntVar(&localPort, "port", 8080, "HTTP port for the in-process control rank")
	localCmd.Flags().StringVar(&localModel, "model", "", "workload profile to checkpoint")
	localCmd.Flags().StringVar(&localCheckpointDir, "checkpoint-dir", "", "directory checkpoint state files are written to")
	localCmd.Flags().IntVar(&localNumSteps, "num-steps", 5, "checkpoints per pass")
	localCmd.Flags().IntVar(&localNumPasses, "num-passes", 1, "number of passes over the steps")
	localCmd.Flags().Float64Var(&localSleep, "inter-checkpoint-sleep", 0, "seconds to sleep between checkpoints")
	localCmd.Flags().StringVar(&localResultsDir, "results-dir", "results", "directory run results are written under")
	localCmd.Flags().BoolVar(&localCollectIostat, "collect-iostat", false, "sample iostat -dx while the benchmark runs")
	localCmd.Flags().IntVar(&localIostatInterval, "iostat-interval", 1, "iostat sampling interval in seconds")
	localCmd.Flags().BoolVarP(&localVerbose, "verbose", "v", false, "log every full result record")
}
