package di

import (
	"io"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/mailpilot/internal/adapters/intake"
	"github.com/mikey/mailpilot/internal/config"
	"github.com/mikey/mailpilot/internal/core"
	"github.com/mikey/mailpilot/internal/logging"
)

// CLIFlags contains the global flags of the operator CLI
type CLIFlags struct {
	ConfigFile string
	Provider   string
	Store      string
	Verbose    bool
	JSONLog    bool
}

// BuildCLIContainer creates and configures a dependency injection container
// for the operator CLI. Flags that are set override the configuration file.
func BuildCLIContainer(flags *CLIFlags, out io.Writer) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		cfg, err := config.Load(flags.ConfigFile)
		if err != nil {
			return nil, err
		}
		if used := cfg.GetViper().ConfigFileUsed(); used != "" {
			logger.Debug("Loaded configuration from file", zap.String("file", used))
		}
		applyFlags(cfg, flags)
		return cfg, nil
	}); err != nil {
		return nil, err
	}

	if err := providePipeline(container); err != nil {
		return nil, err
	}

	// Register CLI intake
	if err := container.Provide(func(service *core.AssistantService, cfg *config.Config, logger *zap.Logger) *intake.CLIIntake {
		return intake.NewCLIIntake(service, out, logger, cfg.GetBool("cli.verbose"))
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// applyFlags overrides configuration values with the flags that were set
func applyFlags(cfg *config.Config, flags *CLIFlags) {
	cfg.Set("cli.verbose", flags.Verbose)
	if flags.Provider != "" {
		cfg.Set("llm.provider", flags.Provider)
	}
	if flags.Store != "" {
		cfg.Set("store.type", flags.Store)
	}
}
