package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"polyindex/internal/server"
)

var (
	servePort    int
	serveTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP query API",
	Long: `Start a local web server answering batch queries against stored sets.

The server will:
- List stored sets at /api/sets and /api/sets/{name}
- Answer POST /api/query with {"set", "kinds", "xs", "ys", "exhaustive"}
- Build each set's tree on first use and keep it cached
- Expose Prometheus metrics at /metrics
- Auto-shutdown after the idle timeout

Example:
  polyindex serve              # Start on default port 8080
  polyindex serve -p 3000      # Use custom port
  polyindex serve --timeout 0  # Never stop on idle`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "Port to listen on")
	serveCmd.Flags().DurationVar(&serveTimeout, "timeout", 30*time.Minute, "Idle timeout (0 to disable)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	srv, err := server.New(dbPath, server.Config{
		Port:        servePort,
		IdleTimeout: serveTimeout,
		Workers:     workers,
		Logger:      slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	fmt.Printf("Starting server at http://localhost:%d\n", servePort)
	fmt.Printf("Idle timeout: %v (resets on every request)\n", serveTimeout)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	return srv.Start()
}
