package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mikey/mailpilot/internal/adapters/intake"
	"github.com/mikey/mailpilot/internal/core"
	"github.com/mikey/mailpilot/internal/di"
)

func newFeedbackCommand() *cobra.Command {
	var (
		action   string
		approved bool
		rejected bool
	)

	cmd := &cobra.Command{
		Use:   "feedback [file.eml]",
		Short: "Record whether a suggested action for a message was right",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if approved == rejected {
				return fmt.Errorf("exactly one of --approved or --rejected is required")
			}
			a, err := actionFor(core.ActionKind(action))
			if err != nil {
				return err
			}
			msg, err := readMessage(cmd, args)
			if err != nil {
				return err
			}

			return withApp(cmd, func(app di.App, _ *intake.CLIIntake) error {
				d := &core.Decision{MessageID: msg.ID, Action: a}
				if err := app.Service.RecordFeedback(cmd.Context(), msg, d, approved); err != nil {
					return err
				}
				rate, total := app.Loop.ApprovalRate()
				fmt.Fprintf(cmd.OutOrStdout(), "Feedback recorded. Approval rate %.2f over %d decisions, threshold %.2f\n",
					rate, total, app.Loop.Threshold())
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&action, "action", "a", "", "Action that was suggested (e.g. auto_archive, escalate)")
	cmd.Flags().BoolVar(&approved, "approved", false, "The suggestion was approved")
	cmd.Flags().BoolVar(&rejected, "rejected", false, "The suggestion was rejected")
	_ = cmd.MarkFlagRequired("action")
	return cmd
}

// actionFor returns a representative action of the given kind
func actionFor(kind core.ActionKind) (core.Action, error) {
	switch kind {
	case core.ActionAutoReply:
		return core.AutoReply{}, nil
	case core.ActionAutoArchive:
		return core.AutoArchive{}, nil
	case core.ActionDelegate:
		return core.Delegate{}, nil
	case core.ActionEscalate:
		return core.Escalate{}, nil
	case core.ActionScheduleFollowUp:
		return core.ScheduleFollowUp{}, nil
	case core.ActionUnsubscribe:
		return core.Unsubscribe{}, nil
	case core.ActionAcceptMeeting:
		return core.AcceptMeeting{}, nil
	case core.ActionDeclineMeeting:
		return core.DeclineMeeting{}, nil
	case core.ActionProposeAlternative:
		return core.ProposeAlternative{}, nil
	default:
		return nil, fmt.Errorf("unknown action %q", kind)
	}
}
