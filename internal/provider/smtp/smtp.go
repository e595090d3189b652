// Package smtp implements a Provider that relays built messages to an SMTP
// server through an email.Session.
package smtp

import (
	"context"
	"log/slog"
	"time"

	"github.com/shineum/mailkit/internal/email"
	"github.com/shineum/mailkit/internal/metrics"
)

const providerName = "smtp"

// Provider delivers messages over SMTP. The session's own timeouts apply;
// failed deliveries are not retried.
type Provider struct {
	session *email.Session
}

// New creates a Provider for session.
func New(session *email.Session) *Provider {
	return &Provider{session: session}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return providerName
}

// Session returns the session messages are sent through.
func (p *Provider) Session() *email.Session {
	return p.session
}

// Send delivers msg to every recipient, Bcc included. The envelope sender
// is the message's bounce address when one was set.
func (p *Provider) Send(ctx context.Context, msg *email.Message) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveDelivery(providerName, start, err) }()

	if err := p.session.Send(ctx, msg); err != nil {
		return err
	}

	slog.Info("message sent via SMTP",
		"message_id", msg.MessageID(),
		"host", p.session.Host(),
		"port", p.session.Port(),
		"envelope_from", msg.EnvelopeFrom(),
		"recipients", len(msg.Recipients()),
	)
	return nil
}
