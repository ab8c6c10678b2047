package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/mikey/mailpilot/internal/adapters/intake"
	"github.com/mikey/mailpilot/internal/core"
	"github.com/mikey/mailpilot/internal/di"
)

func newStatusCommand() *cobra.Command {
	var domains []string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the confidence threshold, approval rate and autonomy flag",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(app di.App, _ *intake.CLIIntake) error {
				rate, total := app.Loop.ApprovalRate()
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Confidence threshold: %.2f\n", app.Loop.Threshold())
				fmt.Fprintf(out, "Approval rate: %.4f (%d decisions)\n", rate, total)
				fmt.Fprintf(out, "Autonomy: %t\n", app.Gate.Autonomy())
				for _, domain := range domains {
					printPattern(out, app.Loop.PatternsFor(domain))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&domains, "domain", nil, "Show recent feedback for these sender domains")
	return cmd
}

func printPattern(out io.Writer, p core.FeedbackPattern) {
	fmt.Fprintf(out, "Feedback for %s: %d approved, %d rejected", p.SenderDomain, p.Approved, p.Rejected)
	if p.Total() > 0 {
		fmt.Fprintf(out, " (%.0f%%)", p.ApprovalRate()*100)
	}
	fmt.Fprintln(out)

	kinds := make([]string, 0, len(p.ByAction))
	for kind := range p.ByAction {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Fprintf(out, "  %s: %d approved\n", kind, p.ByAction[core.ActionKind(kind)])
	}
}

func newAutonomyCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "autonomy on|off",
		Short:     "Enable or disable autonomous execution",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var enabled bool
			switch args[0] {
			case "on":
				enabled = true
			case "off":
				enabled = false
			default:
				return fmt.Errorf("expected on or off, got %q", args[0])
			}

			return withApp(cmd, func(app di.App, _ *intake.CLIIntake) error {
				if err := app.Gate.SetAutonomy(cmd.Context(), enabled); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Autonomy: %t\n", app.Gate.Autonomy())
				return nil
			})
		},
	}
}
