package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/theonlywayisdigital/donedex-sub002/internal/logging"
	"github.com/theonlywayisdigital/donedex-sub002/internal/syncd"
)

var syncdCmd = &cobra.Command{
	Use:     "syncd",
	GroupID: "sync",
	Short:   "Run the background drain daemon",
	Long: `Run the drain daemon in the foreground.

The daemon watches the draft cache for writes and replays queued
mutations to the remote service as soon as connectivity allows; a
periodic timer retries regardless of file activity. Stop with Ctrl+C.

Example usage:
  donedex syncd
  donedex syncd --config /etc/donedex/donedex.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := buildEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		cfg := syncd.DefaultConfig()
		cfg.DrainInterval = e.cfg.Sync.DrainInterval
		cfg.DebounceInterval = e.cfg.Sync.DebounceInterval
		cfg.MaxRetryElapsed = e.cfg.Sync.MaxRetryElapsed
		cfg.Logger = logging.New(e.logSink, "syncd")

		drainer, err := syncd.New(e.store, e.client, e.conn, cfg)
		if err != nil {
			return err
		}

		fmt.Printf("Drain daemon watching %s\n", e.cfg.Cache.Path)
		fmt.Println("Press Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return drainer.Start(ctx)
	},
}

func init() {
	rootCmd.AddCommand(syncdCmd)
}
