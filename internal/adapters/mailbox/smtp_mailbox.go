package mailbox

import (
	"context"
	"fmt"
	"time"

	"github.com/mikey/mailpilot/internal/core"
	"go.uber.org/zap"
)

// SMTPMailbox sends replies and forwards over SMTP and keeps archive,
// snooze and review flags in the state repository
type SMTPMailbox struct {
	stateRecorder
	sender Sender
	from   string
	unsub  *unsubscriber
}

// NewSMTPMailbox creates a mailbox that sends as from through sender
func NewSMTPMailbox(sender Sender, from string, states core.MailboxStateRepository, unsubscribeTimeout time.Duration, logger *zap.Logger) *SMTPMailbox {
	return &SMTPMailbox{
		stateRecorder: stateRecorder{states: states, logger: logger, now: time.Now},
		sender:        sender,
		from:          from,
		unsub:         newUnsubscriber(sender, from, unsubscribeTimeout, logger),
	}
}

func (m *SMTPMailbox) Reply(ctx context.Context, msg *core.Message, body string) error {
	out, err := replyTo(m.from, msg, body, m.now())
	if err != nil {
		return err
	}
	if err := m.sender.Send(ctx, m.from, out.To, out.bytes()); err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}

	m.logger.Info("Reply sent",
		zap.String("message_id", msg.ID),
		zap.Strings("to", out.To))
	return nil
}

func (m *SMTPMailbox) Forward(ctx context.Context, msg *core.Message, to string, note string) error {
	out, err := forwardOf(m.from, msg, to, note, m.now())
	if err != nil {
		return err
	}
	if err := m.sender.Send(ctx, m.from, out.To, out.bytes()); err != nil {
		return fmt.Errorf("failed to forward message: %w", err)
	}

	m.logger.Info("Message forwarded",
		zap.String("message_id", msg.ID),
		zap.Strings("to", out.To))
	return nil
}

func (m *SMTPMailbox) Unsubscribe(ctx context.Context, msg *core.Message, target string) error {
	if err := m.unsub.unsubscribe(ctx, msg, target); err != nil {
		return err
	}
	return m.set(ctx, msg, StateUnsubscribed, time.Time{}, target)
}
