package serve

import (
	"os/signal"
	"syscall"

	"github.com/giygas/cycletracker/app"
	"github.com/giygas/cycletracker/config"
	"github.com/giygas/cycletracker/logging"
	"github.com/spf13/cobra"
)

// Command creates the serve command, which runs the HTTP API until SIGINT or SIGTERM
func Command(cfg *config.Config) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long:  `Load stored cycles, start the dashboard refresh scheduler and serve the REST API.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != "" {
				cfg.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}

			runErr := a.Run(ctx)
			if err := a.Close(); err != nil {
				logging.Error("Failed to close application", "error", err)
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "Override PORT")

	return cmd
}
