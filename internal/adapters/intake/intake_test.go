package intake

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/mikey/mailpilot/internal/config"
	"github.com/mikey/mailpilot/internal/core"
	"github.com/mikey/mailpilot/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	_ ports.MailIntake = (*SMTPIntake)(nil)
	_ ports.MailIntake = (*CLIIntake)(nil)
)

const plainMessage = "From: Alice <alice@example.com>\r\n" +
	"To: me@home.test\r\n" +
	"Subject: =?utf-8?q?Caf=C3=A9_plans?=\r\n" +
	"Message-ID: <abc123@example.com>\r\n" +
	"References: <r1@example.com> <r2@example.com>\r\n" +
	"List-Unsubscribe: <ftp://old.example.com>, <https://lists.example.com/u/1>, <mailto:leave@example.com>\r\n" +
	"\r\n" +
	"Lunch on Friday?\r\n"

const multipartMessage = "From: bob@example.com\r\n" +
	"Subject: Invite\r\n" +
	"In-Reply-To: <x@example.com>\r\n" +
	"Content-Type: multipart/mixed; boundary=outer\r\n" +
	"\r\n" +
	"--outer\r\n" +
	"Content-Type: multipart/alternative; boundary=inner\r\n" +
	"\r\n" +
	"--inner\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Join the review.\r\n" +
	"--inner\r\n" +
	"Content-Type: text/html\r\n" +
	"\r\n" +
	"<p>Join the review.</p>\r\n" +
	"--inner\r\n" +
	"Content-Type: text/calendar; method=REQUEST\r\n" +
	"\r\n" +
	"BEGIN:VCALENDAR\r\n" +
	"END:VCALENDAR\r\n" +
	"--inner--\r\n" +
	"--outer\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: attachment; filename=\"agenda.pdf\"\r\n" +
	"\r\n" +
	"JVBERi0=\r\n" +
	"--outer--\r\n"

func TestParsePlainMessage(t *testing.T) {
	received := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	msg, err := ParseMessage([]byte(plainMessage), "bounce@example.com", []string{"me@home.test"}, received)
	require.NoError(t, err)

	assert.Equal(t, "abc123@example.com", msg.ID)
	assert.Equal(t, "<abc123@example.com>", msg.MessageIDHeader)
	assert.Equal(t, "alice@example.com", msg.From)
	assert.Equal(t, "Café plans", msg.Subject)
	assert.Equal(t, "Lunch on Friday?\r\n", msg.Body)
	assert.Equal(t, 3, msg.ThreadLength)
	assert.Equal(t, "https://lists.example.com/u/1", msg.ListUnsubscribe)
	assert.Equal(t, received, msg.ReceivedAt)
	assert.False(t, msg.HasAttachments)
	assert.False(t, msg.HasCalendarPart)
}

func TestParseMultipartMessage(t *testing.T) {
	msg, err := ParseMessage([]byte(multipartMessage), "", nil, time.Now())
	require.NoError(t, err)

	assert.Equal(t, "bob@example.com", msg.From)
	assert.Equal(t, "Join the review.", msg.Body)
	assert.True(t, msg.HasAttachments)
	assert.True(t, msg.HasCalendarPart)
	assert.Equal(t, 2, msg.ThreadLength)
	assert.NotEmpty(t, msg.ID)
}

func TestParseFallsBackToEnvelopeSender(t *testing.T) {
	raw := "Subject: no from\r\n\r\nbody\r\n"
	msg, err := ParseMessage([]byte(raw), "envelope@example.com", nil, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "envelope@example.com", msg.From)
	assert.Equal(t, 1, msg.ThreadLength)
	assert.Empty(t, msg.ListUnsubscribe)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := ParseMessage([]byte("this is not a message"), "", nil, time.Now())
	assert.Error(t, err)
}

type stubEvaluator struct {
	mu   sync.Mutex
	seen []*core.Message
	err  error
}

func (e *stubEvaluator) Evaluate(_ context.Context, msg *core.Message) (*core.Decision, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seen = append(e.seen, msg)
	if e.err != nil {
		return nil, e.err
	}
	return &core.Decision{
		ID:         "d-1",
		MessageID:  msg.ID,
		Action:     core.AutoArchive{},
		Confidence: 0.97,
		Reasoning:  []string{"low value\nnewsletter"},
		Outcome:    core.OutcomeSuggested,
	}, nil
}

type relayed struct {
	from string
	to   []string
	data string
}

type stubRelay struct {
	mu   sync.Mutex
	sent []relayed
	err  error
}

func (r *stubRelay) Send(_ context.Context, from string, to []string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, relayed{from, to, string(data)})
	return nil
}

func serverConfig() config.ServerConfig {
	return config.ServerConfig{
		ListenAddress:     "127.0.0.1:0",
		Domain:            "intake.test",
		MaxMessageBytes:   1 << 20,
		EvaluationTimeout: 5 * time.Second,
		RelayEnabled:      true,
		Headers: config.HeadersConfig{
			Action:     "X-MailPilot-Action",
			Confidence: "X-MailPilot-Confidence",
			Reason:     "X-MailPilot-Reason",
			Decision:   "X-MailPilot-Decision",
		},
	}
}

func TestHandleAnnotatesMessage(t *testing.T) {
	intake := NewSMTPIntake(&stubEvaluator{}, nil, serverConfig(), zap.NewNop())

	out, err := intake.handle("alice@example.com", []string{"me@home.test"}, []byte(plainMessage))
	require.NoError(t, err)

	s := string(out)
	assert.True(t, strings.HasPrefix(s, "X-MailPilot-Action: auto_archive\r\n"), s)
	assert.Contains(t, s, "X-MailPilot-Confidence: 0.9700\r\n")
	assert.Contains(t, s, "X-MailPilot-Reason: low value newsletter\r\n")
	assert.Contains(t, s, "X-MailPilot-Decision: d-1; outcome=suggested\r\n")
	assert.True(t, strings.HasSuffix(s, plainMessage))
}

func TestHandleKeepsMessageOnEvaluationError(t *testing.T) {
	intake := NewSMTPIntake(&stubEvaluator{err: errors.New("all scorers down")}, nil, serverConfig(), zap.NewNop())

	out, err := intake.handle("alice@example.com", nil, []byte(plainMessage))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "X-MailPilot-Error: all scorers down\r\n"))
	assert.True(t, strings.HasSuffix(string(out), plainMessage))
}

func sendOverSMTP(t *testing.T, addr string, from string, to []string, data string) error {
	t.Helper()
	c, err := smtp.Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Hello("client.test"))
	require.NoError(t, c.Mail(from, nil))
	for _, rcpt := range to {
		require.NoError(t, c.Rcpt(rcpt, nil))
	}
	wc, err := c.Data()
	require.NoError(t, err)
	_, err = io.Copy(wc, bytes.NewBufferString(data))
	require.NoError(t, err)
	if err := wc.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func TestSMTPIntakeRelaysAnnotatedMessage(t *testing.T) {
	evaluator := &stubEvaluator{}
	relay := &stubRelay{}
	intake := NewSMTPIntake(evaluator, relay, serverConfig(), zap.NewNop())
	require.NoError(t, intake.Start())
	defer intake.Stop()

	require.NoError(t, sendOverSMTP(t, intake.Addr(), "alice@example.com", []string{"me@home.test"}, plainMessage))

	relay.mu.Lock()
	defer relay.mu.Unlock()
	require.Len(t, relay.sent, 1)
	assert.Equal(t, "alice@example.com", relay.sent[0].from)
	assert.Equal(t, []string{"me@home.test"}, relay.sent[0].to)
	assert.Contains(t, relay.sent[0].data, "X-MailPilot-Action: auto_archive")
	assert.Contains(t, relay.sent[0].data, "Lunch on Friday?")

	evaluator.mu.Lock()
	defer evaluator.mu.Unlock()
	require.Len(t, evaluator.seen, 1)
	assert.Equal(t, []string{"me@home.test"}, evaluator.seen[0].To)
}

func TestSMTPIntakeRelayFailureIsTemporary(t *testing.T) {
	intake := NewSMTPIntake(&stubEvaluator{}, &stubRelay{err: errors.New("refused")}, serverConfig(), zap.NewNop())
	require.NoError(t, intake.Start())
	defer intake.Stop()

	err := sendOverSMTP(t, intake.Addr(), "alice@example.com", []string{"me@home.test"}, plainMessage)
	var smtpErr *smtp.SMTPError
	require.ErrorAs(t, err, &smtpErr)
	assert.Equal(t, 451, smtpErr.Code)
}

func TestSMTPIntakeStartTwice(t *testing.T) {
	intake := NewSMTPIntake(&stubEvaluator{}, nil, serverConfig(), zap.NewNop())
	require.NoError(t, intake.Start())
	defer intake.Stop()
	assert.Error(t, intake.Start())
}

func TestSMTPIntakeListenError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	cfg := serverConfig()
	cfg.ListenAddress = l.Addr().String()
	intake := NewSMTPIntake(&stubEvaluator{}, nil, cfg, zap.NewNop())
	assert.Error(t, intake.Start())
}

func TestCLIIntakePrintsDecision(t *testing.T) {
	var out bytes.Buffer
	cli := NewCLIIntake(&stubEvaluator{}, &out, zap.NewNop(), true)
	msg, err := ParseMessage([]byte(plainMessage), "", nil, time.Now())
	require.NoError(t, err)

	d, err := cli.ProcessMessage(context.Background(), msg)
	require.NoError(t, err)
	require.NotNil(t, d)

	s := out.String()
	assert.Contains(t, s, "Subject: Café plans")
	assert.Contains(t, s, "Action: archive")
	assert.Contains(t, s, "Confidence: 0.9700")
	assert.Contains(t, s, "Body preview:")
}

func TestCLIIntakeError(t *testing.T) {
	var out bytes.Buffer
	cli := NewCLIIntake(&stubEvaluator{err: errors.New("boom")}, &out, zap.NewNop(), false)
	_, err := cli.ProcessMessage(context.Background(), &core.Message{ID: "x"})
	assert.Error(t, err)
	assert.Contains(t, out.String(), "Error: boom")
}
