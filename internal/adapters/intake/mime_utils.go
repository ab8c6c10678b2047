package intake

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mikey/mailpilot/internal/core"
)

const maxPartDepth = 5

var headerDecoder = &mime.WordDecoder{}

// ParseMessage converts raw RFC 5322 data into a core.Message. The envelope
// sender is used when the From header is missing or unparsable.
func ParseMessage(raw []byte, envelopeFrom string, recipients []string, receivedAt time.Time) (*core.Message, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	out := &core.Message{
		To:         recipients,
		ReceivedAt: receivedAt,
		Headers:    make(map[string][]string, len(msg.Header)),
	}
	for key, values := range msg.Header {
		out.Headers[key] = values
	}

	out.From = envelopeFrom
	if addr, err := mail.ParseAddress(msg.Header.Get("From")); err == nil {
		out.From = addr.Address
	}
	if len(out.To) == 0 {
		if list, err := msg.Header.AddressList("To"); err == nil {
			for _, a := range list {
				out.To = append(out.To, a.Address)
			}
		}
	}

	out.Subject = decodeHeader(msg.Header.Get("Subject"))
	out.MessageIDHeader = strings.TrimSpace(msg.Header.Get("Message-ID"))
	out.ID = strings.Trim(out.MessageIDHeader, "<>")
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	if date, err := msg.Header.Date(); err == nil && receivedAt.IsZero() {
		out.ReceivedAt = date
	}

	out.ThreadLength = threadLength(msg.Header)
	out.ListUnsubscribe = unsubscribeTarget(msg.Header.Get("List-Unsubscribe"))

	var body strings.Builder
	if err := walkPart(msg.Header, msg.Body, out, &body, 0); err != nil {
		return nil, err
	}
	out.Body = body.String()
	return out, nil
}

// partHeader is the subset of a MIME header the walker needs
type partHeader interface {
	Get(key string) string
}

func walkPart(h partHeader, r io.Reader, out *core.Message, body *strings.Builder, depth int) error {
	contentType := h.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
	}

	disposition, dparams, _ := mime.ParseMediaType(h.Get("Content-Disposition"))
	if disposition == "attachment" || dparams["filename"] != "" || (params["name"] != "" && !strings.HasPrefix(mediaType, "text/")) {
		out.HasAttachments = true
		if mediaType == "text/calendar" || mediaType == "application/ics" {
			out.HasCalendarPart = true
		}
		return nil
	}

	switch {
	case strings.HasPrefix(mediaType, "multipart/"):
		boundary := params["boundary"]
		if boundary == "" || depth >= maxPartDepth {
			return nil
		}
		mr := multipart.NewReader(r, boundary)
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				// keep whatever text was found before the broken part
				if body.Len() > 0 {
					return nil
				}
				return fmt.Errorf("failed to read multipart body: %w", err)
			}
			if err := walkPart(part.Header, part, out, body, depth+1); err != nil {
				return err
			}
		}
	case mediaType == "text/calendar":
		out.HasCalendarPart = true
	case mediaType == "text/plain":
		data, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("failed to read text part: %w", err)
		}
		if body.Len() > 0 {
			body.WriteString("\n")
		}
		body.Write(data)
	case mediaType == "text/html":
		// html alternatives are ignored when a plain part exists
	default:
		out.HasAttachments = true
	}
	return nil
}

func decodeHeader(v string) string {
	decoded, err := headerDecoder.DecodeHeader(v)
	if err != nil {
		return v
	}
	return decoded
}

// threadLength estimates the number of messages in the thread from the
// References and In-Reply-To headers
func threadLength(h mail.Header) int {
	if refs := strings.Fields(h.Get("References")); len(refs) > 0 {
		return len(refs) + 1
	}
	if h.Get("In-Reply-To") != "" {
		return 2
	}
	return 1
}

// unsubscribeTarget returns the first https or mailto target of a
// List-Unsubscribe header
func unsubscribeTarget(header string) string {
	for _, item := range strings.Split(header, ",") {
		item = strings.Trim(strings.TrimSpace(item), "<>")
		lower := strings.ToLower(item)
		if strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "mailto:") {
			return item
		}
	}
	return ""
}
