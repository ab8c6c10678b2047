package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mikey/mailpilot/internal/adapters/intake"
	"github.com/mikey/mailpilot/internal/core"
	"github.com/mikey/mailpilot/internal/di"
)

func newEvaluateCommand() *cobra.Command {
	var approve bool

	cmd := &cobra.Command{
		Use:   "evaluate [file.eml]",
		Short: "Evaluate one message (read from stdin when no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := readMessage(cmd, args)
			if err != nil {
				return err
			}

			return withApp(cmd, func(app di.App, cli *intake.CLIIntake) error {
				d, err := cli.ProcessMessage(cmd.Context(), msg)
				if err != nil {
					return err
				}
				if !approve || !d.RequiresApproval {
					return nil
				}

				if err := app.Service.ExecuteApproved(cmd.Context(), msg, d); err != nil {
					return fmt.Errorf("failed to execute approved decision: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Executed approved action: %s\n", core.KindOf(d.Action))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&approve, "approve", false, "Execute the decision even if it requires approval")
	return cmd
}

// readMessage parses the message named by args, or stdin
func readMessage(cmd *cobra.Command, args []string) (*core.Message, error) {
	var r io.Reader = cmd.InOrStdin()
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return nil, fmt.Errorf("failed to open message: %w", err)
		}
		defer f.Close()
		r = f
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}
	return intake.ParseMessage(raw, "", nil, time.Time{})
}
