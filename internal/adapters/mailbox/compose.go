package mailbox

import (
	"bytes"
	"fmt"
	"mime"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mikey/mailpilot/internal/core"
)

// outgoing is a plain-text message about to be sent
type outgoing struct {
	From       string
	To         []string
	Subject    string
	InReplyTo  string
	References string
	Body       string
	Date       time.Time
}

// bytes renders the message as RFC 5322 text with CRLF line endings
func (o outgoing) bytes() []byte {
	var b bytes.Buffer
	domain := core.DomainOf(o.From)
	if domain == "" {
		domain = "localhost"
	}

	fmt.Fprintf(&b, "From: %s\r\n", o.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(o.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", o.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", o.Date.Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: <%s@%s>\r\n", uuid.NewString(), domain)
	if o.InReplyTo != "" {
		fmt.Fprintf(&b, "In-Reply-To: %s\r\n", o.InReplyTo)
	}
	if o.References != "" {
		fmt.Fprintf(&b, "References: %s\r\n", o.References)
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(o.Body, "\r\n", "\n"), "\n", "\r\n"))
	if !strings.HasSuffix(o.Body, "\n") {
		b.WriteString("\r\n")
	}
	return b.Bytes()
}

func prefixSubject(prefix, subject string) string {
	if strings.HasPrefix(strings.ToLower(subject), strings.ToLower(prefix)) {
		return subject
	}
	return prefix + " " + subject
}

// replyTo builds a reply to msg
func replyTo(from string, msg *core.Message, body string, now time.Time) (outgoing, error) {
	to, err := mail.ParseAddress(msg.From)
	if err != nil {
		return outgoing{}, fmt.Errorf("invalid sender address %q: %w", msg.From, err)
	}

	refs := strings.TrimSpace(firstHeader(msg, "References") + " " + msg.MessageIDHeader)
	return outgoing{
		From:       from,
		To:         []string{to.Address},
		Subject:    prefixSubject("Re:", msg.Subject),
		InReplyTo:  msg.MessageIDHeader,
		References: refs,
		Body:       body,
		Date:       now,
	}, nil
}

// forwardOf builds a forward of msg to a new recipient
func forwardOf(from string, msg *core.Message, to, note string, now time.Time) (outgoing, error) {
	addr, err := mail.ParseAddress(to)
	if err != nil {
		return outgoing{}, fmt.Errorf("invalid forward address %q: %w", to, err)
	}

	var body strings.Builder
	if note != "" {
		body.WriteString(note)
		body.WriteString("\n\n")
	}
	body.WriteString("---------- Forwarded message ----------\n")
	fmt.Fprintf(&body, "From: %s\n", msg.From)
	fmt.Fprintf(&body, "Date: %s\n", msg.ReceivedAt.Format(time.RFC1123Z))
	fmt.Fprintf(&body, "Subject: %s\n\n", msg.Subject)
	body.WriteString(msg.Body)

	return outgoing{
		From:    from,
		To:      []string{addr.Address},
		Subject: prefixSubject("Fwd:", msg.Subject),
		Body:    body.String(),
		Date:    now,
	}, nil
}

func firstHeader(msg *core.Message, key string) string {
	for k, values := range msg.Headers {
		if strings.EqualFold(k, key) && len(values) > 0 {
			return values[0]
		}
	}
	return ""
}
