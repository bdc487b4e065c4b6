package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/theonlywayisdigital/donedex-sub002/internal/dashboard"
	"github.com/theonlywayisdigital/donedex-sub002/internal/logging"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "advanced",
	Short:   "Start the real-time WebSocket sync dashboard",
	Long: `Start a WebSocket dashboard server for monitoring sync state in
real time.

The server broadcasts draft saves, queued mutations, drain results,
merge conflicts, and submissions to connected clients, and exposes the
live mutation queue depth over HTTP.

WebSocket messages include:
- draft_saved: A local draft was written
- mutation_queued: An offline save queued mutations
- drain_complete: A drain cycle finished
- conflict: A load merge resolved a field conflict
- submitted: A report was submitted
- status: Aggregate sync statistics

Example usage:
  donedex dashboard                   # Start on default port 8080
  donedex dashboard --port 9000       # Start on custom port

Connect with a WebSocket client:
  ws://localhost:8080/ws`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")

		e, err := buildEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		if !cmd.Flags().Changed("port") {
			port = e.cfg.Dashboard.Port
		}

		server := dashboard.NewServer(&dashboard.Config{
			Port:   port,
			Queue:  dashboard.QueueDepthFunc(e.store.PendingCountContext),
			Logger: logging.New(e.logSink, "dashboard"),
		})

		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start dashboard: %w", err)
		}

		fmt.Printf("Dashboard server started on http://localhost:%d\n", port)
		fmt.Printf("WebSocket endpoint: ws://localhost:%d/ws\n", port)
		fmt.Printf("Sync status: http://localhost:%d/api/status\n", port)
		fmt.Println("\nPress Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		<-ctx.Done()

		fmt.Println("\nShutting down dashboard server...")
		if err := server.Stop(); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}

		fmt.Println("Dashboard server stopped")
		return nil
	},
}

func init() {
	dashboardCmd.Flags().IntP("port", "p", 8080, "Port to listen on")

	rootCmd.AddCommand(dashboardCmd)
}
