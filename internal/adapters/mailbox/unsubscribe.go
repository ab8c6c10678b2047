package mailbox

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mikey/mailpilot/internal/core"
	"go.uber.org/zap"
)

// unsubscriber follows List-Unsubscribe targets (RFC 2369, RFC 8058)
type unsubscriber struct {
	client *http.Client
	sender Sender
	from   string
	logger *zap.Logger
	now    func() time.Time
}

func newUnsubscriber(sender Sender, from string, timeout time.Duration, logger *zap.Logger) *unsubscriber {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &unsubscriber{
		client: &http.Client{Timeout: timeout},
		sender: sender,
		from:   from,
		logger: logger,
		now:    time.Now,
	}
}

func (u *unsubscriber) unsubscribe(ctx context.Context, msg *core.Message, target string) error {
	target = strings.Trim(strings.TrimSpace(target), "<>")
	parsed, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("invalid unsubscribe target %q: %w", target, err)
	}

	switch strings.ToLower(parsed.Scheme) {
	case "https", "http":
		return u.viaHTTP(ctx, msg, parsed)
	case "mailto":
		return u.viaMail(ctx, parsed)
	default:
		return fmt.Errorf("unsupported unsubscribe scheme %q", parsed.Scheme)
	}
}

func (u *unsubscriber) viaHTTP(ctx context.Context, msg *core.Message, target *url.URL) error {
	var req *http.Request
	var err error
	if oneClick(msg) {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, target.String(),
			strings.NewReader("List-Unsubscribe=One-Click"))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	}
	if err != nil {
		return fmt.Errorf("failed to build unsubscribe request: %w", err)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("unsubscribe request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unsubscribe request returned status %d", resp.StatusCode)
	}

	u.logger.Info("Unsubscribed via HTTP",
		zap.String("host", target.Host),
		zap.String("method", req.Method))
	return nil
}

func (u *unsubscriber) viaMail(ctx context.Context, target *url.URL) error {
	to := target.Opaque
	if to == "" {
		to = target.Path
	}
	if to == "" {
		return fmt.Errorf("mailto target has no address")
	}

	query := target.Query()
	subject := query.Get("subject")
	if subject == "" {
		subject = "unsubscribe"
	}
	body := query.Get("body")
	if body == "" {
		body = "unsubscribe"
	}

	out := outgoing{
		From:    u.from,
		To:      []string{to},
		Subject: subject,
		Body:    body,
		Date:    u.now(),
	}
	if err := u.sender.Send(ctx, u.from, out.To, out.bytes()); err != nil {
		return fmt.Errorf("failed to send unsubscribe mail: %w", err)
	}

	u.logger.Info("Unsubscribed via mail", zap.String("to", to))
	return nil
}

// oneClick reports whether the sender advertises RFC 8058 one-click unsubscribe
func oneClick(msg *core.Message) bool {
	return strings.Contains(strings.ToLower(firstHeader(msg, "List-Unsubscribe-Post")), "one-click")
}
