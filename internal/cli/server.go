package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"ckptbench/internal/server"
	"ckptbench/pkg/config"
	"ckptbench/pkg/logger"

	"github.com/spf13/cobra"
)

// shutdownTimeout bounds the graceful shutdown of a rank.
const shutdownTimeout = 30 * time.Second

var (
	serverPort           int
	serverMode           string
	serverAPIKey         string
	serverModel          string
	serverCheckpointDir  string
	serverRank           int
	serverWorldSize      int
	serverRendezvousHost string
	serverRendezvousPort int
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run one rank of the benchmark group",
	Long: `Runs one rank of the checkpoint benchmark. Rank 0 listens for
checkpoint triggers over HTTP and conducts the group; every other rank
follows the broadcast steps until rank 0 shuts the group down.

A multi-rank group needs one server process per rank, all pointed at
the same rendezvous address.`,
	Example: `  # Single rank on the default port
  ckptbench server

  # Rank 0 of a four-rank group
  ckptbench server --rank 0 --world-size 4 --rendezvous-port 29500

  # Rank 2 joining from another host
  ckptbench server --rank 2 --world-size 4 \
    --rendezvous-host 10.0.0.5 --rendezvous-port 29500`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		applyServerOverrides(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
		return runServer(cfg)
	},
}

func applyServerOverrides(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = serverPort
	}
	if cmd.Flags().Changed("mode") {
		cfg.Server.Mode = serverMode
	}
	if cmd.Flags().Changed("api-key") {
		cfg.Server.APIKey = serverAPIKey
	}
	if cmd.Flags().Changed("model") {
		cfg.Checkpoint.Model = serverModel
	}
	if cmd.Flags().Changed("checkpoint-dir") {
		cfg.Checkpoint.Dir = serverCheckpointDir
	}
	if cmd.Flags().Changed("rank") {
		cfg.Group.Rank = serverRank
	}
	if cmd.Flags().Changed("world-size") {
		cfg.Group.Size = serverWorldSize
		if serverWorldSize > 1 && cfg.Group.Kind != "ws" {
			cfg.Group.Kind = "ws"
		}
	}
	if cmd.Flags().Changed("rendezvous-host") {
		cfg.Group.RendezvousHost = serverRendezvousHost
	}
	if cmd.Flags().Changed("rendezvous-port") {
		cfg.Group.RendezvousPort = serverRendezvousPort
	}
}

// runServer drives one rank from initialization to shutdown. It
// returns when the rank's work ends on its own or a signal arrives.
func runServer(cfg *config.Config) error {
	app := server.NewApplication(cfg)

	if err := app.Initialize(); err != nil {
		return err
	}
	if err := app.Start(); err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Infof("received signal %v", sig)
	case <-app.Done():
	}

	if err := app.Shutdown(shutdownTimeout); err != nil {
		return err
	}
	return app.Err()
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().IntVar(&serverPort, "port", 8080, "HTTP port the control rank listens on")
	serverCmd.Flags().StringVar(&serverMode, "mode", "release", "gin mode (debug, release, test)")
	serverCmd.Flags().StringVar(&serverAPIKey, "api-key", "", "bearer token required from clients (empty disables auth)")
	serverCmd.Flags().StringVar(&serverModel, "model", "", "workload profile to checkpoint")
	serverCmd.Flags().StringVar(&serverCheckpointDir, "checkpoint-dir", "", "directory checkpoint state files are written to")
	serverCmd.Flags().IntVar(&serverRank, "rank", 0, "this process's rank in the group")
	serverCmd.Flags().IntVar(&serverWorldSize, "world-size", 1, "number of ranks in the group")
	serverCmd.Flags().StringVar(&serverRendezvousHost, "rendezvous-host", "", "address of rank 0's rendezvous listener")
	serverCmd.Flags().IntVar(&serverRendezvousPort, "rendezvous-port", 29500, "port of rank 0's rendezvous listener")
}
