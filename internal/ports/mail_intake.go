package ports

import (
	"context"

	"github.com/mikey/mailpilot/internal/core"
)

// MailIntake feeds incoming messages to the assistant
type MailIntake interface {
	// ProcessMessage evaluates a message and returns the gated decision
	ProcessMessage(ctx context.Context, msg *core.Message) (*core.Decision, error)

	// Start starts the intake
	Start() error

	// Stop stops the intake
	Stop() error
}
