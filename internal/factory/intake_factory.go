package factory

import (
	"fmt"
	"io"

	"github.com/mikey/mailpilot/internal/adapters/intake"
	"github.com/mikey/mailpilot/internal/adapters/mailbox"
	"github.com/mikey/mailpilot/internal/config"
	"github.com/mikey/mailpilot/internal/core"
	"github.com/mikey/mailpilot/internal/ports"
	"go.uber.org/zap"
)

// IntakeFactory creates mail intakes based on configuration
type IntakeFactory struct {
	cfg     *config.Config
	logger  *zap.Logger
	service *core.AssistantService
}

// NewIntakeFactory creates a new intake factory
func NewIntakeFactory(cfg *config.Config, logger *zap.Logger, service *core.AssistantService) *IntakeFactory {
	return &IntakeFactory{
		cfg:     cfg,
		logger:  logger,
		service: service,
	}
}

// CreateIntake creates an intake based on server.intake_type
func (f *IntakeFactory) CreateIntake(relay mailbox.Sender, out io.Writer) (ports.MailIntake, error) {
	intakeType := f.cfg.GetString("server.intake_type")

	switch intakeType {
	case "smtp":
		sc, err := f.cfg.GetServer()
		if err != nil {
			return nil, fmt.Errorf("invalid server configuration: %w", err)
		}
		return intake.NewSMTPIntake(f.service, relay, sc, f.logger), nil
	case "cli":
		return intake.NewCLIIntake(f.service, out, f.logger, f.cfg.GetBool("cli.verbose")), nil
	default:
		return nil, fmt.Errorf("unsupported intake type: %s", intakeType)
	}
}
