package email

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	gomail "github.com/wneessen/go-mail"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/shineum/mailkit/internal/metrics"
)

// defaultCharset is used when a draft does not set one.
const defaultCharset = "UTF-8"

// Build validates the draft and materializes it into a Message. A draft
// builds at most once: later calls fail with ErrAlreadyBuilt while the first
// Message stays available through Draft.Message. Any other failure leaves
// the draft unbuilt so it can be corrected and built again.
func (d *Draft) Build(ctx context.Context) (*Message, error) {
	if d.state == stateBuilt {
		metrics.MessagesBuiltTotal.WithLabelValues("already_built").Inc()
		return nil, ErrAlreadyBuilt
	}
	if d.from == nil {
		metrics.MessagesBuiltTotal.WithLabelValues("missing_sender").Inc()
		return nil, ErrMissingSender
	}
	if len(d.to)+len(d.cc)+len(d.bcc) == 0 {
		metrics.MessagesBuiltTotal.WithLabelValues("missing_recipient").Inc()
		return nil, ErrMissingRecipient
	}

	if d.pop.enabled {
		if err := popLogin(ctx, d.pop, d.connectTimeout); err != nil {
			metrics.MessagesBuiltTotal.WithLabelValues("pop_failed").Inc()
			return nil, fmt.Errorf("pop before smtp: %w", err)
		}
	}

	msg, err := d.materialize()
	if err != nil {
		metrics.MessagesBuiltTotal.WithLabelValues("render_failed").Inc()
		return nil, err
	}

	d.state = stateBuilt
	d.message = msg
	metrics.MessagesBuiltTotal.WithLabelValues("success").Inc()

	slog.Debug("message built",
		"message_id", msg.messageID,
		"recipients", len(msg.Recipients()),
		"content_type", msg.contentType,
	)
	return msg, nil
}

// materialize copies the draft into a go-mail message and renders it.
func (d *Draft) materialize() (*Message, error) {
	charset := d.charset
	if d.body.kind == bodyText {
		if cs := charsetParam(d.body.contentType); cs != "" && knownCharset(cs) {
			charset = cs
		}
	}
	if charset == "" {
		charset = defaultCharset
	}

	from := *d.from
	m := &Message{
		from:     &from,
		to:       cloneAddresses(d.to),
		cc:       cloneAddresses(d.cc),
		bcc:      cloneAddresses(d.bcc),
		replyTo:  cloneAddresses(d.replyTo),
		subject:  d.subject,
		headers:  d.Headers(),
		charset:  charset,
		sentDate: d.SentDate(),
		envelope: d.bounceAddress,
	}
	m.messageID = newMessageID(d.HostName())

	enc, err := newTextEncoder(charset)
	if err != nil {
		return nil, err
	}

	msg := gomail.NewMsg(gomail.WithCharset(gomail.Charset(charset)))

	if err := msg.From(m.from.String()); err != nil {
		return nil, fmt.Errorf("%w: from: %v", ErrInvalidAddress, err)
	}
	if m.envelope != "" {
		if err := msg.EnvelopeFrom(m.envelope); err != nil {
			return nil, fmt.Errorf("%w: bounce address: %v", ErrInvalidAddress, err)
		}
	}
	for _, a := range m.to {
		if err := msg.AddTo(a.String()); err != nil {
			return nil, fmt.Errorf("%w: to: %v", ErrInvalidAddress, err)
		}
	}
	for _, a := range m.cc {
		if err := msg.AddCc(a.String()); err != nil {
			return nil, fmt.Errorf("%w: cc: %v", ErrInvalidAddress, err)
		}
	}
	for _, a := range m.bcc {
		if err := msg.AddBcc(a.String()); err != nil {
			return nil, fmt.Errorf("%w: bcc: %v", ErrInvalidAddress, err)
		}
	}
	if len(m.replyTo) > 0 {
		// Address.String already applies RFC 2047 to display names.
		msg.SetGenHeaderPreformatted(gomail.HeaderReplyTo, strings.Join(addressStrings(m.replyTo), ", "))
	}

	if m.subject != "" {
		subject, err := enc.encode("subject", m.subject)
		if err != nil {
			return nil, err
		}
		msg.Subject(subject)
	}
	for _, name := range d.headerNames {
		value, err := enc.encode(name, d.headers[name])
		if err != nil {
			return nil, err
		}
		msg.SetGenHeader(gomail.Header(name), value)
	}
	msg.SetDateWithValue(m.sentDate)
	msg.SetMessageIDWithValue(m.messageID)

	if err := d.applyBody(msg, m, enc); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to render message: %w", err)
	}
	m.raw = buf.Bytes()
	m.msg = msg
	return m, nil
}

// applyBody resolves the pending body: a multipart wins, then an explicit
// content type, then plain text. The reported content type always matches
// the top-level Content-Type go-mail writes.
func (d *Draft) applyBody(msg *gomail.Msg, m *Message, enc textEncoder) error {
	switch d.body.kind {
	case bodyMultipart:
		mp := d.body.multipart
		if err := mp.validate(); err != nil {
			return err
		}
		m.contentType = mp.ContentType()
		m.parts = mp.Parts()
		m.attachments = mp.Attachments()
		if len(m.parts) == 1 && len(m.attachments) == 0 {
			m.contentType = withCharset(mediaType(m.contentType), m.charset)
		}
		for i, p := range m.parts {
			content, err := enc.encode("body part", p.Content)
			if err != nil {
				return err
			}
			ct := gomail.ContentType(mediaType(p.ContentType))
			if i == 0 {
				msg.SetBodyString(ct, content)
				continue
			}
			msg.AddAlternativeString(ct, content)
		}
		for _, a := range m.attachments {
			var opts []gomail.FileOption
			if a.ContentType != "" {
				opts = append(opts, gomail.WithFileContentType(gomail.ContentType(a.ContentType)))
			}
			if err := msg.AttachReader(a.Filename, bytes.NewReader(a.Content), opts...); err != nil {
				return fmt.Errorf("failed to attach %q: %w", a.Filename, err)
			}
		}
		return nil

	case bodyText:
		ct := d.body.contentType
		if mediaType(ct) == "" {
			ct = string(gomail.TypeTextPlain)
		}
		if cs := charsetParam(ct); cs != "" && !strings.EqualFold(cs, m.charset) {
			ct = mediaType(ct)
		}
		content, err := enc.encode("body", d.body.text)
		if err != nil {
			return err
		}
		m.contentType = withCharset(ct, m.charset)
		m.parts = []Part{{ContentType: m.contentType, Content: d.body.text}}
		msg.SetBodyString(gomail.ContentType(mediaType(ct)), content)
		return nil

	default:
		m.contentType = withCharset(string(gomail.TypeTextPlain), m.charset)
		m.parts = []Part{{ContentType: m.contentType}}
		msg.SetBodyString(gomail.TypeTextPlain, "")
		return nil
	}
}

// textEncoder converts UTF-8 text into the message charset before go-mail
// applies its transfer encoding. A nil encoder passes text through.
type textEncoder struct {
	charset string
	enc     encoding.Encoding
}

func newTextEncoder(charset string) (textEncoder, error) {
	e, err := htmlindex.Get(charset)
	if err != nil {
		return textEncoder{}, fmt.Errorf("%w: %q", ErrInvalidCharset, charset)
	}
	if name, _ := htmlindex.Name(e); name == "utf-8" {
		return textEncoder{charset: charset}, nil
	}
	return textEncoder{charset: charset, enc: e}, nil
}

func (t textEncoder) encode(field, s string) (string, error) {
	if t.enc == nil || s == "" {
		return s, nil
	}
	out, err := t.enc.NewEncoder().String(s)
	if err != nil {
		return "", fmt.Errorf("%w: %s not representable in %s: %v", ErrInvalidCharset, field, t.charset, err)
	}
	return out, nil
}

// newMessageID returns a unique Message-ID scoped to host.
func newMessageID(host string) string {
	if host == "" {
		host = "mailkit.localdomain"
	}
	return uuid.NewString() + "@" + host
}
