package message

import (
	"bytes"
	"fmt"
	"io"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

// ParseError reports a malformed raw message. It is fatal to that one
// message only; the rest of the cycle continues.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse message: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parsed is the structured form of one raw RFC 5322 message.
type Parsed struct {
	From        string
	To          []string
	Subject     string
	Text        string
	HTML        string
	Date        time.Time
	MessageID   string
	InReplyTo   string
	References  []string
	Attachments []Attachment
}

// Attachment is an extracted attachment with its content bytes.
type Attachment struct {
	Filename    string
	Content     []byte
	Size        int64
	ContentType string
}

// Parse turns raw message bytes into a Parsed message. It is a pure
// function of its input except that a missing Date header falls back to
// the current time and unnamed attachments get a time-derived filename.
func Parse(raw []byte) (*Parsed, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	defer mr.Close()

	h := mr.Header

	p := &Parsed{}

	if addrs, err := h.AddressList("From"); err == nil && len(addrs) > 0 {
		p.From = formatAddress(addrs[0])
	}
	p.To = recipientList(&h, "To")
	p.To = append(p.To, recipientList(&h, "Cc")...)

	p.Subject, _ = h.Subject()

	if date, err := h.Date(); err == nil && !date.IsZero() {
		p.Date = date
	} else {
		p.Date = time.Now()
	}

	p.MessageID, _ = h.MessageID()
	if ids, err := h.MsgIDList("In-Reply-To"); err == nil && len(ids) > 0 {
		p.InReplyTo = ids[0]
	}
	p.References, _ = h.MsgIDList("References")

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A broken part ends the walk; what was read so far stands.
			break
		}

		switch ph := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := ph.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			switch {
			case strings.HasPrefix(contentType, "text/plain"):
				if p.Text == "" {
					p.Text = string(body)
				}
			case strings.HasPrefix(contentType, "text/html"):
				if p.HTML == "" {
					p.HTML = string(body)
				}
			}

		case *mail.AttachmentHeader:
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			filename, _ := ph.Filename()
			if filename == "" {
				filename = fmt.Sprintf("attachment_%d", time.Now().UnixMilli())
			}
			contentType, _, _ := ph.ContentType()

			p.Attachments = append(p.Attachments, Attachment{
				Filename:    filename,
				Content:     body,
				Size:        int64(len(body)),
				ContentType: contentType,
			})
		}
	}

	return p, nil
}

// recipientList flattens all instances of an address header field into a
// plain list of addresses. Address groups are flattened to their members.
func recipientList(h *mail.Header, key string) []string {
	var out []string
	fields := h.FieldsByKey(key)
	for fields.Next() {
		text, err := fields.Text()
		if err != nil {
			continue
		}
		addrs, err := netmail.ParseAddressList(text)
		if err != nil {
			continue
		}
		for _, a := range addrs {
			out = append(out, a.Address)
		}
	}
	return out
}

func formatAddress(a *mail.Address) string {
	if a.Name != "" {
		return fmt.Sprintf("%s <%s>", a.Name, a.Address)
	}
	return a.Address
}
