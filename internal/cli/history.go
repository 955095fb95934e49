package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"ckptbench/pkg/config"
	"ckptbench/pkg/store/mysql"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect benchmark runs stored in the history database",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openHistory()
		if err != nil {
			return err
		}
		defer repo.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		runs, err := repo.History.ListRuns(ctx, historyLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RUN ID\tMODEL\tSIZE\tSTEPS\tPASSES\tRECORDS\tMEAN\tMAX\tSTARTED\tINTERRUPTED")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%.3fs\t%.3fs\t%s\t%v\n",
				r.RunID, r.Model, r.CommSize, r.NumSteps, r.NumPasses, r.Records,
				r.MeanTime, r.MaxTime, r.StartedAt.Format("2006-01-02 15:04:05"), r.Interrupted)
		}
		return w.Flush()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show every checkpoint of one stored run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openHistory()
		if err != nil {
			return err
		}
		defer repo.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rows, err := repo.History.RunResults(ctx, args[0])
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return fmt.Errorf("no results stored for run %s", args[0])
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PASS\tSTEP\tTIME\tSIZE\tTYPE\tPP\tTP")
		for _, r := range rows {
			fmt.Fprintf(w, "%d\t%d\t%.3fs\t%d\t%s\t%d\t%d\n",
				r.PassNum, r.Step, r.CheckpointTime, r.CommSize,
				r.CheckpointType, r.PipelineParallelism, r.TensorParallelism)
		}
		return w.Flush()
	},
}

// openHistory connects to the configured history database.
func openHistory() (*mysql.Repository, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if cfg.History.Host == "" || cfg.History.Database == "" {
		return nil, fmt.Errorf("history storage is not configured; set history.host and history.database")
	}
	return mysql.NewRepository(cfg.History.DSN())
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)

	historyListCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of runs to list")
}
