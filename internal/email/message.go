package email

import (
	"bytes"
	"io"
	"maps"
	"net/mail"
	"slices"
	"sync"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// Message is the immutable result of building a Draft. Its rendered form is
// fixed at build time, so WriteTo always produces the same bytes.
type Message struct {
	from        *mail.Address
	to          []*mail.Address
	cc          []*mail.Address
	bcc         []*mail.Address
	replyTo     []*mail.Address
	subject     string
	headers     map[string]string
	contentType string
	charset     string
	parts       []Part
	attachments []Attachment
	sentDate    time.Time
	messageID   string
	envelope    string
	raw         []byte

	// mu guards msg: go-mail records delivery state on it while sending.
	mu  sync.Mutex
	msg *gomail.Msg
}

// From returns the sender.
func (m *Message) From() *mail.Address {
	c := *m.from
	return &c
}

// To returns the "To" recipients.
func (m *Message) To() []*mail.Address { return cloneAddresses(m.to) }

// Cc returns the "Cc" recipients.
func (m *Message) Cc() []*mail.Address { return cloneAddresses(m.cc) }

// Bcc returns the "Bcc" recipients.
func (m *Message) Bcc() []*mail.Address { return cloneAddresses(m.bcc) }

// ReplyTo returns the "Reply-To" addresses.
func (m *Message) ReplyTo() []*mail.Address { return cloneAddresses(m.replyTo) }

// Subject returns the subject line.
func (m *Message) Subject() string { return m.subject }

// ContentType returns the top-level content type, including the charset
// parameter for text bodies.
func (m *Message) ContentType() string { return m.contentType }

// Charset returns the charset the message was encoded with.
func (m *Message) Charset() string { return m.charset }

// SentDate returns the value of the Date header.
func (m *Message) SentDate() time.Time { return m.sentDate }

// MessageID returns the Message-ID without angle brackets.
func (m *Message) MessageID() string { return m.messageID }

// EnvelopeFrom returns the SMTP envelope sender: the bounce address when one
// was set, otherwise the From address.
func (m *Message) EnvelopeFrom() string {
	if m.envelope != "" {
		return m.envelope
	}
	return m.from.Address
}

// Headers returns a copy of the custom headers.
func (m *Message) Headers() map[string]string {
	return maps.Clone(m.headers)
}

// Parts returns the inline body parts in order.
func (m *Message) Parts() []Part {
	return slices.Clone(m.parts)
}

// Attachments returns the attachments.
func (m *Message) Attachments() []Attachment {
	out := make([]Attachment, 0, len(m.attachments))
	for _, a := range m.attachments {
		a.Content = bytes.Clone(a.Content)
		out = append(out, a)
	}
	return out
}

// TextBody returns the first text/plain part, if any.
func (m *Message) TextBody() string {
	return m.firstPart("text/plain")
}

// HTMLBody returns the first text/html part, if any.
func (m *Message) HTMLBody() string {
	return m.firstPart("text/html")
}

func (m *Message) firstPart(mt string) string {
	for _, p := range m.parts {
		if mediaType(p.ContentType) == mt {
			return p.Content
		}
	}
	return ""
}

// Recipients returns the bare addresses of every To, Cc and Bcc recipient.
func (m *Message) Recipients() []string {
	var out []string
	out = append(out, bareAddresses(m.to)...)
	out = append(out, bareAddresses(m.cc)...)
	out = append(out, bareAddresses(m.bcc)...)
	return out
}

// Bytes returns a copy of the rendered RFC 5322 message.
func (m *Message) Bytes() []byte {
	return bytes.Clone(m.raw)
}

// WriteTo writes the rendered message to w.
func (m *Message) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(m.raw)
	return int64(n), err
}

// withMsg runs fn with exclusive access to the underlying go-mail message.
func (m *Message) withMsg(fn func(*gomail.Msg) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.msg)
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
