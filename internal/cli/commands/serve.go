package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blitz-labs/tankrank/internal/web"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only snapshot API",
		Long: `Serve the JSON snapshot API over HTTP: best-per-tank, leaderboards,
stats, resolver probes, and sync status. The server never writes; all
mutation stays with the CLI.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().Int("port", 0, "listen port (overrides server.port)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	port := cc.Cfg.Server.Port
	if cmd.Flags().Changed("port") {
		port, _ = cmd.Flags().GetInt("port")
	}

	dictPath := ""
	if cc.Cfg.Server.WatchDictionary {
		dictPath = cc.Cfg.Dictionary
	}

	srv := web.NewServer(web.Config{
		Store:          cc.Store,
		Resolver:       cc.Resolver,
		Port:           port,
		DictionaryPath: dictPath,
		Logger:         cc.Logger,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cc.Renderer.Printf("Snapshot server listening on http://localhost:%d (Ctrl+C to stop)\n", port)
	return srv.Serve(ctx)
}
