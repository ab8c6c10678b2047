package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"go.uber.org/zap"
)

const (
	dialTimeout    = 10 * time.Second
	sessionTimeout = 30 * time.Second
)

// Sender delivers a raw RFC 5322 message
type Sender interface {
	Send(ctx context.Context, from string, to []string, data []byte) error
}

// SMTPSender delivers mail to an SMTP server with go-smtp
type SMTPSender struct {
	addr     string
	helo     string
	username string
	password string
	logger   *zap.Logger
}

// NewSMTPSender creates a sender for addr (host:port). Credentials are optional;
// when set they are sent with AUTH PLAIN.
func NewSMTPSender(addr, helo, username, password string, logger *zap.Logger) *SMTPSender {
	if helo == "" {
		helo = "localhost"
	}
	return &SMTPSender{
		addr:     addr,
		helo:     helo,
		username: username,
		password: password,
		logger:   logger,
	}
}

// Send delivers data to every accepted recipient. It fails only when all recipients are rejected.
func (s *SMTPSender) Send(ctx context.Context, from string, to []string, data []byte) error {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", s.addr, err)
	}

	deadline := time.Now().Add(sessionTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(s.helo); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}

	if ok, _ := c.Extension("STARTTLS"); ok {
		host, _, _ := net.SplitHostPort(s.addr)
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return fmt.Errorf("STARTTLS failed: %w", err)
		}
	}

	if s.username != "" {
		if err := c.Auth(sasl.NewPlainClient("", s.username, s.password)); err != nil {
			return fmt.Errorf("AUTH failed: %w", err)
		}
	}

	if err := c.Mail(from, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	recipientOK := false
	for _, recipient := range to {
		if err := c.Rcpt(recipient, nil); err != nil {
			s.logger.Warn("RCPT TO failed for recipient",
				zap.String("recipient", recipient),
				zap.Error(err))
			continue
		}
		recipientOK = true
	}
	if !recipientOK {
		return fmt.Errorf("all recipients were rejected")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send message data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		// the message has already been accepted
		s.logger.Warn("QUIT command failed", zap.Error(err))
	}
	return nil
}
