package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AngieZuGa/pwa-final/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTPS server",
	Long:  `Ensure the self-signed certificate exists, then serve the directory over HTTPS until interrupted.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServer(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := &server.Runner{
		Port:        cfg.Port,
		Dir:         cfg.Directory,
		CertOptions: certOptions(cfg),
		Out:         cmd.OutOrStdout(),
		Logger:      logger,
	}

	return runner.Run(ctx)
}
