package cli

import (
	"context"
	"os/signal"
	"syscall"

	"ckptbench/internal/driver"
	"ckptbench/pkg/config"
	"ckptbench/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	runServerIP       string
	runPort           int
	runAPIKey         string
	runNumSteps       int
	runNumPasses      int
	runSleep          float64
	runResultsDir     string
	runCollectIostat  bool
	runIostatInterval int
	runVerbose        bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive a benchmark against a running server",
	Long: `Drives the benchmark: triggers one checkpoint per step over every
configured pass, pacing between checkpoints, and writes the result
table, the iostat samples and a run manifest into a timestamped
directory under --results-dir.

Interrupting the run keeps everything measured up to that point.`,
	Example: `  # Five steps, one pass, against localhost
  ckptbench run

  # Three passes of ten steps with 30s pacing and iostat sampling
  ckptbench run --num-steps 10 --num-passes 3 \
    --inter-checkpoint-sleep 30 --collect-iostat`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		applyRunOverrides(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := logger.Init(cfg.Logger); err != nil {
			return err
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return driver.New(cfg).Run(ctx)
	},
}

func applyRunOverrides(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("server-ip") {
		cfg.Server.Host = runServerIP
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = runPort
	}
	if cmd.Flags().Changed("api-key") {
		cfg.Server.APIKey = runAPIKey
	}
	if cmd.Flags().Changed("num-steps") {
		cfg.Run.NumSteps = runNumSteps
	}
	if cmd.Flags().Changed("num-passes") {
		cfg.Run.NumPasses = runNumPasses
	}
	if cmd.Flags().Changed("inter-checkpoint-sleep") {
		cfg.Run.InterCheckpointSleep = runSleep
	}
	if cmd.Flags().Changed("results-dir") {
		cfg.Run.ResultsDir = runResultsDir
	}
	if cmd.Flags().Changed("collect-iostat") {
		cfg.Iostat.Enabled = runCollectIostat
	}
	if cmd.Flags().Changed("iostat-interval") {
		cfg.Iostat.Interval = runIostatInterval
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Run.Verbose = runVerbose
	}
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runServerIP, "server-ip", "127.0.0.1", "address of the control rank's HTTP endpoint")
	runCmd.Flags().IntVar(&runPort, "port", 8080, "port of the control rank's HTTP endpoint")
	runCmd.Flags().StringVar(&runAPIKey, "api-key", "", "bearer token the server expects")
	runCmd.Flags().IntVar(&runNumSteps, "num-steps", 5, "checkpoints per pass")
	runCmd.Flags().IntVar(&runNumPasses, "num-passes", 1, "number of passes over the steps")
	runCmd.Flags().Float64Var(&runSleep, "inter-checkpoint-sleep", 0, "seconds to sleep between checkpoints")
	runCmd.Flags().StringVar(&runResultsDir, "results-dir", "results", "directory run results are written under")
	runCmd.Flags().BoolVar(&runCollectIostat, "collect-iostat", false, "sample iostat -dx while the benchmark runs")
	runCmd.Flags().IntVar(&runIostatInterval, "iostat-interval", 1, "iostat sampling interval in seconds")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "log every full result record")
}
