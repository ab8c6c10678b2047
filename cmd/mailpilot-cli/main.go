package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mikey/mailpilot/internal/adapters/intake"
	"github.com/mikey/mailpilot/internal/di"
)

var flags = &di.CLIFlags{}

func main() {
	rootCmd := &cobra.Command{
		Use:   "mailpilot-cli",
		Short: "Operate the mailpilot assistant from the command line",
		Long: `mailpilot-cli evaluates single messages, records feedback on past
decisions and inspects or changes the assistant's autonomy.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&flags.ConfigFile, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&flags.Provider, "provider", "", "LLM provider (bedrock, gemini, openai)")
	rootCmd.PersistentFlags().StringVar(&flags.Store, "store", "", "Store type (memory, sqlite, mysql)")
	rootCmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newEvaluateCommand())
	rootCmd.AddCommand(newFeedbackCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newAutonomyCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// withApp builds the container, restores persisted state and runs fn
func withApp(cmd *cobra.Command, fn func(app di.App, cli *intake.CLIIntake) error) error {
	container, err := di.BuildCLIContainer(flags, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	return container.Invoke(func(app di.App, cli *intake.CLIIntake) error {
		defer app.Logger.Sync()
		defer app.Store.Stop()

		if err := app.Restore(cmd.Context()); err != nil {
			return err
		}
		return fn(app, cli)
	})
}
