// Package provider defines the delivery backends a built message can be
// handed to.
package provider

import (
	"context"

	"github.com/shineum/mailkit/internal/email"
)

// Provider delivers built messages. Implementations must be safe for
// concurrent use.
type Provider interface {
	// Send delivers msg to every recipient it names, Bcc included.
	Send(ctx context.Context, msg *email.Message) error

	// Name returns the provider name used in logs and metrics.
	Name() string
}
