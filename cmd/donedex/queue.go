package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/theonlywayisdigital/donedex-sub002/internal/cache"
	"github.com/theonlywayisdigital/donedex-sub002/internal/logging"
	"github.com/theonlywayisdigital/donedex-sub002/internal/syncd"
)

var queueCmd = &cobra.Command{
	Use:     "queue",
	GroupID: "sync",
	Short:   "Inspect and drain the offline mutation queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending mutations in replay order",
	RunE: func(cmd *cobra.Command, args []string) error {
		reportID, _ := cmd.Flags().GetString("report")

		e, err := buildEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		var pending []*cache.QueuedMutation
		if reportID != "" {
			pending, err = e.store.PendingForReportContext(cmd.Context(), reportID)
		} else {
			pending, err = e.store.PendingContext(cmd.Context())
		}
		if err != nil {
			return err
		}

		if len(pending) == 0 {
			fmt.Println("Queue is empty")
			return nil
		}

		for _, m := range pending {
			fmt.Printf("%6d  %-10s  report=%-24s item=%-24s value=%q queued=%s\n",
				m.Seq, m.Kind, m.Payload.ReportID, m.Payload.TemplateItemID,
				m.Payload.ResponseValue, m.QueuedAt.Format("2006-01-02 15:04:05"))
		}
		fmt.Printf("\n%d pending\n", len(pending))
		return nil
	},
}

var queueDrainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Replay the pending queue to the remote service once",
	Long: `Run a single drain cycle: replay every pending mutation in FIFO
order with retries, removing each from the queue as its upsert lands.
A mutation that keeps failing stops the drain; rerun once the remote
recovers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := buildEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		cfg := syncd.DefaultConfig()
		cfg.MaxRetryElapsed = e.cfg.Sync.MaxRetryElapsed
		cfg.Logger = logging.New(e.logSink, "syncd")

		drainer, err := syncd.New(e.store, e.client, e.conn, cfg)
		if err != nil {
			return err
		}
		defer drainer.Stop()

		n, err := drainer.DrainOnce(cmd.Context())
		if err != nil {
			fmt.Printf("Drained %d mutations before stopping\n", n)
			return err
		}

		fmt.Printf("Drained %d mutations\n", n)
		return nil
	},
}

func init() {
	queueListCmd.Flags().String("report", "", "Only show mutations for this report")

	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueDrainCmd)
	rootCmd.AddCommand(queueCmd)
}
