// Package resend implements a Provider that sends messages through the
// Resend HTTP API.
package resend

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"

	"github.com/shineum/mailkit/internal/email"
	"github.com/shineum/mailkit/internal/metrics"
	"github.com/shineum/mailkit/internal/provider"
)

const providerName = "resend"

// Config holds the settings for creating a Provider.
type Config struct {
	APIKey string
	// BaseURL overrides the API endpoint. It must end with a slash.
	BaseURL string
}

// Provider sends messages via the Resend API.
type Provider struct {
	client *resend.Client
	retry  provider.RetryPolicy
}

// New creates a Provider from cfg.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("resend API key is required")
	}

	httpClient := &http.Client{
		Timeout:   30 * time.Second,
		Transport: statusTransport{next: http.DefaultTransport},
	}
	client := resend.NewCustomClient(httpClient, cfg.APIKey)
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid resend base URL: %w", err)
		}
		client.BaseURL = u
	}

	return &Provider{client: client, retry: provider.DefaultRetryPolicy()}, nil
}

// SetRetryPolicy replaces the default retry policy.
func (r *Provider) SetRetryPolicy(p provider.RetryPolicy) {
	r.retry = p
}

// Name returns the provider name.
func (r *Provider) Name() string {
	return providerName
}

// Send maps msg onto a Resend request and submits it. Rejections other
// than 429 in the 4xx range are not retried.
func (r *Provider) Send(ctx context.Context, msg *email.Message) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveDelivery(providerName, start, err) }()

	params := buildRequest(msg)

	var id string
	err = r.retry.Do(ctx, providerName, func(ctx context.Context) error {
		status := new(int)
		sent, err := r.client.Emails.SendWithContext(context.WithValue(ctx, statusKey{}, status), params)
		if err != nil {
			err = fmt.Errorf("resend send failed: %w", err)
			if permanentStatus(*status) {
				return provider.Permanent(err)
			}
			return err
		}
		id = sent.Id
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("message sent via Resend",
		"message_id", msg.MessageID(),
		"resend_id", id,
		"recipients", len(msg.Recipients()),
	)
	return nil
}

type statusKey struct{}

// statusTransport records the response status into the *int stored under
// statusKey in the request context.
type statusTransport struct {
	next http.RoundTripper
}

func (t statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if resp != nil {
		if status, ok := req.Context().Value(statusKey{}).(*int); ok {
			*status = resp.StatusCode
		}
	}
	return resp, err
}

func permanentStatus(code int) bool {
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests
}

// buildRequest converts msg into the Resend request schema. Resend takes
// a single Reply-To, so multiple addresses are joined.
func buildRequest(msg *email.Message) *resend.SendEmailRequest {
	params := &resend.SendEmailRequest{
		From:    msg.From().String(),
		To:      provider.Addresses(msg.To()),
		Cc:      provider.Addresses(msg.Cc()),
		Bcc:     provider.Addresses(msg.Bcc()),
		Subject: msg.Subject(),
		Html:    msg.HTMLBody(),
		Text:    msg.TextBody(),
	}
	if replyTo := provider.Addresses(msg.ReplyTo()); len(replyTo) > 0 {
		params.ReplyTo = strings.Join(replyTo, ", ")
	}

	headers := msg.Headers()
	if len(headers) > 0 {
		params.Headers = headers
	}

	for _, att := range msg.Attachments() {
		params.Attachments = append(params.Attachments, &resend.Attachment{
			Filename:    att.Filename,
			Content:     att.Content,
			ContentType: att.ContentType,
		})
	}
	return params
}
