package factory

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/mikey/mailpilot/internal/adapters/calendar"
	"github.com/mikey/mailpilot/internal/adapters/mailbox"
	"github.com/mikey/mailpilot/internal/config"
	"github.com/mikey/mailpilot/internal/core"
	"go.uber.org/zap"
)

// CollaboratorFactory creates the mailbox and calendar collaborators
type CollaboratorFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewCollaboratorFactory creates a new collaborator factory
func NewCollaboratorFactory(cfg *config.Config, logger *zap.Logger) *CollaboratorFactory {
	return &CollaboratorFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateMailbox creates the mailbox based on mailbox.type
func (f *CollaboratorFactory) CreateMailbox(states core.MailboxStateRepository) (core.MailboxActions, error) {
	mc, err := f.cfg.GetMailbox()
	if err != nil {
		return nil, fmt.Errorf("invalid mailbox configuration: %w", err)
	}

	switch mc.Type {
	case "log":
		return mailbox.NewLogMailbox(mc.From, states, f.logger), nil
	case "smtp":
		sender := mailbox.NewSMTPSender(mc.SMTP.Address, mc.SMTP.Helo, mc.SMTP.Username, mc.SMTP.Password, f.logger)
		return mailbox.NewSMTPMailbox(sender, mc.From, states, mc.UnsubscribeTimeout, f.logger), nil
	default:
		return nil, fmt.Errorf("unsupported mailbox type: %s", mc.Type)
	}
}

// CreateCalendar creates the calendar based on calendar.type
func (f *CollaboratorFactory) CreateCalendar() (core.Calendar, error) {
	cc := f.cfg.GetCalendar()

	switch cc.Type {
	case "memory":
		return calendar.NewMemoryCalendar(), nil
	case "file":
		if err := os.MkdirAll(filepath.Dir(cc.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create calendar directory: %w", err)
		}
		return calendar.NewFileCalendar(cc.Path, f.logger), nil
	default:
		return nil, fmt.Errorf("unsupported calendar type: %s", cc.Type)
	}
}

// CreateRelay creates the downstream sender for the SMTP intake, or nil when
// relaying is disabled
func (f *CollaboratorFactory) CreateRelay() (mailbox.Sender, error) {
	sc, err := f.cfg.GetServer()
	if err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}
	if !sc.RelayEnabled {
		return nil, nil
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	addr := net.JoinHostPort(sc.RelayAddress, strconv.Itoa(sc.RelayPort))
	return mailbox.NewSMTPSender(addr, hostname, "", "", f.logger), nil
}
