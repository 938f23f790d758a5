package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"autoqa/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the JSON API",
	Long: `Serves the question, search, crawl and status endpoints over HTTP
until SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc := app.Config.Server
	addr := sc.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	handler := server.New(app.Service, sc.MaxRequestBytes)
	return server.ListenAndServe(ctx, addr, handler, time.Duration(sc.ShutdownSecs)*time.Second)
}
