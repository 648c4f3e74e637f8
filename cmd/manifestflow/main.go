package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"manifestflow/internal/engine"
	"manifestflow/internal/logging"
)

const usage = "Available Modes: 'run', 'viz', 'register', and 'worker'"

var cfg engine.Config

var rootCmd = &cobra.Command{
	Use:   "manifestflow [run|viz|register|worker]",
	Short: "import a Synapse file manifest into a Seven Bridges project",
	Long: `manifestflow reads a file manifest from Synapse, imports every listed file
from a Seven Bridges volume into a project and stores the resulting manifest,
with the imported file ids, back in Synapse.`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode := "run"
		if len(args) > 0 {
			mode = args[0]
		}
		return dispatch(cmd.Context(), mode, cfg, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfg.PipelineYml, "pipeline", "pipeline.yml", "pipeline definition (optional)")
	rootCmd.PersistentFlags().StringVar(&cfg.RuntimeYml, "config", "", "runtime config (default: the one named in the pipeline file)")
}

// dispatch runs one mode. Unknown modes print the usage line and succeed.
func dispatch(ctx context.Context, mode string, cfg engine.Config, out io.Writer) error {
	switch mode {
	case "run", "viz", "register", "worker":
	default:
		fmt.Fprintln(out, usage)
		return nil
	}

	e, err := engine.Bootstrap(cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	switch mode {
	case "viz":
		name, err := e.Viz()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, name)
		return nil
	case "register":
		return e.Register(ctx)
	case "worker":
		return e.Worker(ctx)
	default:
		_, err := e.Run(ctx)
		return err
	}
}

func main() {
	logging.InitFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logging.L().Error("manifestflow", "err", err)
		stop()
		os.Exit(1)
	}
}
