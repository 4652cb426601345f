package notify

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"

	"github.com/go-faster/errors"
)

// Sender delivers one email.
type Sender interface {
	Send(ctx context.Context, p EmailRequestedPayload) error
}

var errNoRecipients = errors.New("no recipients")

// Permanent reports whether retrying the send cannot succeed: the message
// has no recipients or the relay answered with a 5xx reply.
func Permanent(err error) bool {
	if errors.Is(err, errNoRecipients) {
		return true
	}
	var reply *textproto.Error
	return errors.As(err, &reply) && reply.Code >= 500
}

// SMTPMailer relays mail through an SMTP server without authentication,
// as a local relay such as MailHog expects.
type SMTPMailer struct {
	Addr string
	From string
	Auth smtp.Auth

	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func (m *SMTPMailer) Send(ctx context.Context, p EmailRequestedPayload) error {
	if len(p.To) == 0 {
		return errNoRecipients
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := buildMessage(m.From, p)
	if err != nil {
		return errors.Wrap(err, "build message")
	}
	send := m.send
	if send == nil {
		send = smtp.SendMail
	}
	if err := send(m.Addr, m.Auth, m.From, p.To, msg); err != nil {
		return errors.Wrapf(err, "smtp send to %s", m.Addr)
	}
	return nil
}

// buildMessage renders a text message, or multipart/alternative when an
// HTML part is present.
func buildMessage(from string, p EmailRequestedPayload) ([]byte, error) {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(p.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", p.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")

	if p.HTML == "" {
		b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		b.WriteString(p.Body)
		return b.Bytes(), nil
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", mw.Boundary())
	for _, part := range []struct{ ctype, content string }{
		{"text/plain; charset=UTF-8", p.Body},
		{"text/html; charset=UTF-8", p.HTML},
	} {
		w, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {part.ctype}})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(part.content)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	b.Write(body.Bytes())
	return b.Bytes(), nil
}
