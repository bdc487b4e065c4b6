package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reportsCmd = &cobra.Command{
	Use:     "reports",
	GroupID: "inspection",
	Short:   "Browse reports on the remote service",
}

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List an organization's reports, newest first",
	Long: `List reports for an organization page by page.

Pagination uses an opaque cursor: the first call omits --cursor, and
each page prints the cursor for the next one. An empty next cursor
means the listing is complete.

Example usage:
  donedex reports list --org acme
  donedex reports list --org acme --cursor eyJsYXN0X2lkIjog...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		orgID, _ := cmd.Flags().GetString("org")
		cursor, _ := cmd.Flags().GetString("cursor")
		limit, _ := cmd.Flags().GetInt("limit")

		e, err := buildEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		page, err := e.client.ListReports(cmd.Context(), orgID, cursor, limit)
		if err != nil {
			return err
		}

		if len(page.Reports) == 0 {
			fmt.Println("No reports")
			return nil
		}

		for _, r := range page.Reports {
			submitted := ""
			if r.SubmittedAt != nil {
				submitted = r.SubmittedAt.Format("2006-01-02 15:04")
			}
			fmt.Printf("%-24s  %-10s  record=%-16s  started=%s  %s\n",
				r.ID, r.Status, r.RecordID, r.StartedAt.Format("2006-01-02 15:04"), submitted)
		}

		if page.NextCursor != "" {
			fmt.Printf("\nNext page: --cursor %s\n", page.NextCursor)
		}
		return nil
	},
}

func init() {
	reportsListCmd.Flags().String("org", "", "Organization ID")
	reportsListCmd.Flags().String("cursor", "", "Cursor from the previous page")
	reportsListCmd.Flags().Int("limit", 20, "Page size")
	_ = reportsListCmd.MarkFlagRequired("org")

	reportsCmd.AddCommand(reportsListCmd)
	rootCmd.AddCommand(reportsCmd)
}
