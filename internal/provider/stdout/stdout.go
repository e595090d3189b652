// Package stdout implements a Provider that prints messages instead of
// delivering them.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shineum/mailkit/internal/email"
	"github.com/shineum/mailkit/internal/metrics"
	"github.com/shineum/mailkit/internal/parser"
	"github.com/shineum/mailkit/internal/provider"
)

const (
	providerName = "stdout"
	separator    = "========================================\n"
)

// Provider writes a readable summary of each message, or the rendered
// MIME when raw is set.
type Provider struct {
	mu     sync.Mutex
	writer io.Writer
	raw    bool
}

// New creates a Provider that writes summaries to os.Stdout.
func New() *Provider {
	return &Provider{writer: os.Stdout}
}

// NewWithWriter creates a Provider that writes to w. When raw is true the
// rendered message is written unchanged.
func NewWithWriter(w io.Writer, raw bool) *Provider {
	return &Provider{writer: w, raw: raw}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return providerName
}

// Send prints msg. The summary is decoded from the rendered bytes, so it
// shows what a recipient would see; Bcc comes from the envelope.
func (p *Provider) Send(_ context.Context, msg *email.Message) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveDelivery(providerName, start, err) }()

	var out string
	if p.raw {
		out = string(msg.Bytes())
	} else {
		out, err = summary(msg)
		if err != nil {
			return err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := io.WriteString(p.writer, out); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func summary(msg *email.Message) (string, error) {
	parsed, err := parser.Parse(msg.Bytes())
	if err != nil {
		return "", fmt.Errorf("failed to decode rendered message: %w", err)
	}

	var b strings.Builder
	b.WriteString(separator)
	fmt.Fprintf(&b, "Message-ID: %s\n", parsed.MessageID)
	fmt.Fprintf(&b, "Date: %s\n", parsed.Date.Format(time.RFC1123Z))
	fmt.Fprintf(&b, "From: %s\n", parsed.From)
	if from := msg.EnvelopeFrom(); from != msg.From().Address {
		fmt.Fprintf(&b, "Envelope-From: %s\n", from)
	}
	fmt.Fprintf(&b, "To: %s\n", strings.Join(parsed.To, ", "))
	if len(parsed.Cc) > 0 {
		fmt.Fprintf(&b, "Cc: %s\n", strings.Join(parsed.Cc, ", "))
	}
	if bcc := provider.Addresses(msg.Bcc()); len(bcc) > 0 {
		fmt.Fprintf(&b, "Bcc: %s\n", strings.Join(bcc, ", "))
	}
	if len(parsed.ReplyTo) > 0 {
		fmt.Fprintf(&b, "Reply-To: %s\n", strings.Join(parsed.ReplyTo, ", "))
	}
	fmt.Fprintf(&b, "Subject: %s\n", parsed.Subject)

	headers := msg.Headers()
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(&b, "%s: %s\n", name, headers[name])
	}

	b.WriteString("Body:\n")
	body := parsed.TextBody
	if body == "" {
		body = parsed.HTMLBody
	}
	b.WriteString(strings.TrimRight(body, "\r\n") + "\n")

	if len(parsed.Attachments) > 0 {
		atts := make([]string, 0, len(parsed.Attachments))
		for _, att := range parsed.Attachments {
			atts = append(atts, fmt.Sprintf("%s (%s)", att.Filename, formatSize(len(att.Content))))
		}
		fmt.Fprintf(&b, "Attachments: %s\n", strings.Join(atts, ", "))
	}
	b.WriteString(separator)
	return b.String(), nil
}

// formatSize formats a byte count for humans.
func formatSize(bytes int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
