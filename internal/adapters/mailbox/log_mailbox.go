package mailbox

import (
	"context"
	"time"

	"github.com/mikey/mailpilot/internal/core"
	"go.uber.org/zap"
)

// LogMailbox records outgoing mail in the log instead of sending it.
// It is the default for dry runs.
type LogMailbox struct {
	stateRecorder
	from string
}

// NewLogMailbox creates a mailbox that only logs what it would send
func NewLogMailbox(from string, states core.MailboxStateRepository, logger *zap.Logger) *LogMailbox {
	return &LogMailbox{
		stateRecorder: stateRecorder{states: states, logger: logger, now: time.Now},
		from:          from,
	}
}

func (m *LogMailbox) Reply(ctx context.Context, msg *core.Message, body string) error {
	out, err := replyTo(m.from, msg, body, m.now())
	if err != nil {
		return err
	}
	m.logger.Info("Would send reply",
		zap.String("message_id", msg.ID),
		zap.Strings("to", out.To),
		zap.String("subject", out.Subject),
		zap.Int("body_length", len(body)))
	return nil
}

func (m *LogMailbox) Forward(ctx context.Context, msg *core.Message, to string, note string) error {
	out, err := forwardOf(m.from, msg, to, note, m.now())
	if err != nil {
		return err
	}
	m.logger.Info("Would forward message",
		zap.String("message_id", msg.ID),
		zap.Strings("to", out.To),
		zap.String("subject", out.Subject))
	return nil
}

func (m *LogMailbox) Unsubscribe(ctx context.Context, msg *core.Message, target string) error {
	m.logger.Info("Would unsubscribe",
		zap.String("message_id", msg.ID),
		zap.String("target", target))
	return m.set(ctx, msg, StateUnsubscribed, time.Time{}, target)
}
