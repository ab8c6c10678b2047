package intake

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/mikey/mailpilot/internal/adapters/mailbox"
	"github.com/mikey/mailpilot/internal/config"
	"github.com/mikey/mailpilot/internal/core"
	"go.uber.org/zap"
)

// Evaluator is the part of the assistant the intake needs
type Evaluator interface {
	Evaluate(ctx context.Context, msg *core.Message) (*core.Decision, error)
}

// SMTPIntake is an SMTP content filter. Every message it receives is
// evaluated, annotated with the decision headers and relayed downstream.
type SMTPIntake struct {
	service Evaluator
	relay   mailbox.Sender
	cfg     config.ServerConfig
	logger  *zap.Logger

	mu       sync.Mutex
	server   *smtp.Server
	listener net.Listener
	now      func() time.Time
}

// NewSMTPIntake creates a new SMTP intake. relay may be nil when relaying is disabled.
func NewSMTPIntake(service Evaluator, relay mailbox.Sender, cfg config.ServerConfig, logger *zap.Logger) *SMTPIntake {
	return &SMTPIntake{
		service: service,
		relay:   relay,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Start listens on the configured address and serves in the background
func (f *SMTPIntake) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.server != nil {
		return fmt.Errorf("intake already started")
	}

	l, err := net.Listen("tcp", f.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", f.cfg.ListenAddress, err)
	}

	f.server = smtp.NewServer(&smtpBackend{intake: f})
	f.server.Domain = f.cfg.Domain
	f.server.ReadTimeout = 30 * time.Second
	f.server.WriteTimeout = 30 * time.Second
	f.server.MaxMessageBytes = f.cfg.MaxMessageBytes
	f.server.MaxRecipients = 50
	f.server.AllowInsecureAuth = true
	f.listener = l

	f.logger.Info("SMTP intake starting", zap.String("address", l.Addr().String()))

	server := f.server
	go func() {
		if err := server.Serve(l); err != nil && !errors.Is(err, smtp.ErrServerClosed) {
			f.logger.Error("SMTP server error", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the address the intake listens on, once started
func (f *SMTPIntake) Addr() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listener == nil {
		return ""
	}
	return f.listener.Addr().String()
}

// Stop closes the listener and every open session
func (f *SMTPIntake) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.server == nil {
		return nil
	}
	err := f.server.Close()
	f.server = nil
	f.listener = nil
	return err
}

// ProcessMessage evaluates a single message without any SMTP traffic
func (f *SMTPIntake) ProcessMessage(ctx context.Context, msg *core.Message) (*core.Decision, error) {
	return f.service.Evaluate(ctx, msg)
}

// handle evaluates raw message data and returns the annotated message
func (f *SMTPIntake) handle(sender string, recipients []string, raw []byte) ([]byte, error) {
	msg, err := ParseMessage(raw, sender, recipients, f.now())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.cfg.EvaluationTimeout)
	defer cancel()

	decision, evalErr := f.service.Evaluate(ctx, msg)
	if evalErr != nil {
		f.logger.Error("Failed to evaluate message",
			zap.String("message_id", msg.ID),
			zap.String("sender", msg.From),
			zap.Error(evalErr))
	}

	var annotated bytes.Buffer
	f.writeHeaders(&annotated, decision, evalErr)
	annotated.Write(raw)

	if decision != nil {
		f.logger.Info("Processed message",
			zap.String("message_id", msg.ID),
			zap.String("sender", msg.From),
			zap.String("action", string(core.KindOf(decision.Action))),
			zap.Float64("confidence", decision.Confidence),
			zap.String("outcome", string(decision.Outcome)))
	}
	return annotated.Bytes(), nil
}

func (f *SMTPIntake) writeHeaders(w io.Writer, d *core.Decision, evalErr error) {
	h := f.cfg.Headers
	if d != nil {
		fmt.Fprintf(w, "%s: %s\r\n", h.Action, core.KindOf(d.Action))
		fmt.Fprintf(w, "%s: %.4f\r\n", h.Confidence, d.Confidence)
		if len(d.Reasoning) > 0 {
			fmt.Fprintf(w, "%s: %s\r\n", h.Reason, headerValue(d.Reasoning[0]))
		}
		fmt.Fprintf(w, "%s: %s; outcome=%s\r\n", h.Decision, d.ID, d.Outcome)
	}
	if evalErr != nil {
		fmt.Fprintf(w, "X-MailPilot-Error: %s\r\n", headerValue(evalErr.Error()))
	}
}

// headerValue folds a free-form string into a single header line
func headerValue(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	for _, r := range s {
		if r > 127 {
			return mime.QEncoding.Encode("utf-8", s)
		}
	}
	return s
}

// smtpBackend implements the go-smtp Backend interface
type smtpBackend struct {
	intake *SMTPIntake
}

// NewSession creates a new SMTP session
func (b *smtpBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{intake: b.intake}, nil
}

// smtpSession implements the go-smtp Session interface
type smtpSession struct {
	intake     *SMTPIntake
	sender     string
	recipients []string
}

func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = nil
}

// AuthPlain is not supported by the intake
func (s *smtpSession) AuthPlain(_ []byte) error {
	return smtp.ErrAuthUnsupported
}

func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

// Data evaluates the message and relays it with the decision headers.
// Evaluation errors never block delivery.
func (s *smtpSession) Data(r io.Reader) error {
	f := s.intake
	raw, err := io.ReadAll(r)
	if err != nil {
		f.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	annotated, err := f.handle(s.sender, s.recipients, raw)
	if err != nil {
		f.logger.Error("Failed to parse message", zap.String("sender", s.sender), zap.Error(err))
		return &smtp.SMTPError{
			Code:         554,
			EnhancedCode: smtp.EnhancedCode{5, 6, 0},
			Message:      "Malformed message",
		}
	}

	if !f.cfg.RelayEnabled || f.relay == nil {
		f.logger.Warn("Relay disabled, message not forwarded", zap.String("sender", s.sender))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := f.relay.Send(ctx, s.sender, s.recipients, annotated); err != nil {
		f.logger.Error("Failed to relay message",
			zap.String("sender", s.sender),
			zap.Error(err))
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 4, 1},
			Message:      "Downstream relay unavailable, try again later",
		}
	}
	return nil
}

func (s *smtpSession) Logout() error {
	return nil
}
