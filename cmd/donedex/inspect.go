package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/theonlywayisdigital/donedex-sub002/internal/inspection"
)

var inspectCmd = &cobra.Command{
	Use:     "inspect",
	GroupID: "inspection",
	Short:   "Start, edit, and submit inspection reports",
}

var inspectStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a new inspection report",
	Long: `Start a new inspection report against a template.

Creates the report in draft status on the remote service, initializes
one empty response per template item, and writes the initial local
draft. Prints the new report ID.

Example usage:
  donedex inspect start --org acme --record truck-42 --template walkaround --user jo`,
	RunE: func(cmd *cobra.Command, args []string) error {
		orgID, _ := cmd.Flags().GetString("org")
		recordID, _ := cmd.Flags().GetString("record")
		templateID, _ := cmd.Flags().GetString("template")
		userID, _ := cmd.Flags().GetString("user")

		e, err := buildEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		controller, err := e.newController()
		if err != nil {
			return err
		}

		snap, err := controller.StartInspection(cmd.Context(), orgID, recordID, templateID, userID)
		if err != nil {
			return err
		}

		if err := controller.SaveResponses(cmd.Context()); err != nil {
			return err
		}
		controller.Flush()

		fmt.Printf("Started inspection %s (%d sections, %d items)\n",
			snap.ReportID, snap.SectionCount, len(snap.Responses))
		return nil
	},
}

var inspectShowCmd = &cobra.Command{
	Use:   "show <report-id>",
	Short: "Load a report and print its merged state",
	Long: `Load a report, merge the local draft with remote responses, and
print the resulting session snapshot as JSON. Fields that differed
between local and remote are listed under "conflicts" with the side
that won.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := buildEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		controller, err := e.newController()
		if err != nil {
			return err
		}

		snap, err := controller.LoadInspection(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode snapshot: %w", err)
		}
		fmt.Println(string(out))
		return nil
	},
}

var inspectSetCmd = &cobra.Command{
	Use:   "set <report-id> <item-id>",
	Short: "Record a response for one template item",
	Long: `Record a value, severity, and notes against a template item, then
save. The draft is written locally first; the remote sync happens when
online and queues otherwise.

Value forms:
  --value "cracked windshield"            scalar
  --choice worn --choice leaking          one or more choices
  --amount 32.5 --unit psi                measurement

Example usage:
  donedex inspect set rpt-1 item-tires --amount 32.5 --unit psi --severity low`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		reportID, itemID := args[0], args[1]

		value, err := valueFromFlags(cmd)
		if err != nil {
			return err
		}
		severity, _ := cmd.Flags().GetString("severity")
		if !inspection.Severity(severity).IsValid() {
			return fmt.Errorf("invalid severity %q (want low, medium, or high)", severity)
		}
		notes, _ := cmd.Flags().GetString("notes")

		e, err := buildEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		controller, err := e.newController()
		if err != nil {
			return err
		}

		if _, err := controller.LoadInspection(cmd.Context(), reportID); err != nil {
			return err
		}
		if err := controller.SetResponse(itemID, value, inspection.Severity(severity), notes); err != nil {
			return err
		}
		if err := controller.SaveResponses(cmd.Context()); err != nil {
			return err
		}
		controller.Flush()

		fmt.Printf("Recorded response for %s\n", itemID)
		return nil
	},
}

var inspectPhotoCmd = &cobra.Command{
	Use:   "photo <add|remove> <report-id> <item-id> <path>",
	Short: "Attach or detach a local photo on a template item",
	Long: `Manage the pending photo list for a template item. Photos stay
local until submission, when they are uploaded to the media store and
the item's value is replaced with the storage reference.`,
	Args: cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		action, reportID, itemID, path := args[0], args[1], args[2], args[3]

		e, err := buildEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		controller, err := e.newController()
		if err != nil {
			return err
		}

		if _, err := controller.LoadInspection(cmd.Context(), reportID); err != nil {
			return err
		}

		switch action {
		case "add":
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("photo file not readable: %w", err)
			}
			err = controller.AddPhoto(itemID, path)
		case "remove":
			err = controller.RemovePhoto(itemID, path)
		default:
			return fmt.Errorf("unknown action %q (want add or remove)", action)
		}
		if err != nil {
			return err
		}

		if err := controller.SaveResponses(cmd.Context()); err != nil {
			return err
		}
		controller.Flush()

		fmt.Printf("Photo %s: %s\n", action, path)
		return nil
	},
}

var inspectSubmitCmd = &cobra.Command{
	Use:   "submit <report-id>",
	Short: "Submit a report, uploading pending media",
	Long: `Finalize a report: save outstanding edits, upload pending photos,
and flip the report to submitted. Items whose uploads fail are reported
as a warning; the submission itself still completes.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := buildEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		controller, err := e.newController()
		if err != nil {
			return err
		}

		if _, err := controller.LoadInspection(cmd.Context(), args[0]); err != nil {
			return err
		}

		result, err := controller.SubmitInspection(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Submitted report %s\n", args[0])
		if result.Warning != "" {
			fmt.Printf("Warning: %s\n", result.Warning)
		}
		return nil
	},
}

// valueFromFlags builds the typed response value from whichever value
// flags were provided.
func valueFromFlags(cmd *cobra.Command) (inspection.Value, error) {
	scalar, _ := cmd.Flags().GetString("value")
	choices, _ := cmd.Flags().GetStringArray("choice")
	amount, _ := cmd.Flags().GetFloat64("amount")
	unit, _ := cmd.Flags().GetString("unit")

	set := 0
	if scalar != "" {
		set++
	}
	if len(choices) > 0 {
		set++
	}
	if cmd.Flags().Changed("amount") {
		set++
	}
	if set > 1 {
		return inspection.Value{}, fmt.Errorf("use only one of --value, --choice, or --amount")
	}

	switch {
	case scalar != "":
		return inspection.ScalarValue(scalar), nil
	case len(choices) > 0:
		return inspection.ChoiceValue(choices...), nil
	case cmd.Flags().Changed("amount"):
		return inspection.MeasurementValue(amount, unit), nil
	default:
		return inspection.Value{}, nil
	}
}

func init() {
	inspectStartCmd.Flags().String("org", "", "Organization ID")
	inspectStartCmd.Flags().String("record", "", "Record (asset) ID being inspected")
	inspectStartCmd.Flags().String("template", "", "Template ID")
	inspectStartCmd.Flags().String("user", "", "User ID performing the inspection")
	_ = inspectStartCmd.MarkFlagRequired("org")
	_ = inspectStartCmd.MarkFlagRequired("record")
	_ = inspectStartCmd.MarkFlagRequired("template")
	_ = inspectStartCmd.MarkFlagRequired("user")

	inspectSetCmd.Flags().String("value", "", "Scalar value")
	inspectSetCmd.Flags().StringArray("choice", nil, "Choice value (repeatable)")
	inspectSetCmd.Flags().Float64("amount", 0, "Measurement amount")
	inspectSetCmd.Flags().String("unit", "", "Measurement unit")
	inspectSetCmd.Flags().String("severity", "", "Severity: low, medium, high")
	inspectSetCmd.Flags().String("notes", "", "Free-form notes")

	inspectCmd.AddCommand(inspectStartCmd)
	inspectCmd.AddCommand(inspectShowCmd)
	inspectCmd.AddCommand(inspectSetCmd)
	inspectCmd.AddCommand(inspectPhotoCmd)
	inspectCmd.AddCommand(inspectSubmitCmd)
	rootCmd.AddCommand(inspectCmd)
}
