// Package graph implements a Provider that sends messages through the
// Microsoft Graph sendMail API.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shineum/mailkit/internal/email"
	"github.com/shineum/mailkit/internal/metrics"
	"github.com/shineum/mailkit/internal/provider"
)

const providerName = "msgraph"

// Config holds the settings for creating a Provider.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	// Sender is the mailbox (UPN or object ID) the message is sent as.
	Sender          string
	SaveToSentItems bool
}

// Provider sends messages via Microsoft Graph using OAuth2 client
// credentials.
type Provider struct {
	sendURL         string
	saveToSentItems bool
	httpClient      *http.Client
	token           *tokenSource
	retry           provider.RetryPolicy
}

// New creates a Provider for the Azure AD tenant in cfg.
func New(cfg Config) *Provider {
	tokenURL := fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", url.PathEscape(cfg.TenantID))
	sendURL := fmt.Sprintf("https://graph.microsoft.com/v1.0/users/%s/sendMail", url.PathEscape(cfg.Sender))
	return newWithURLs(cfg, sendURL, tokenURL, &http.Client{Timeout: 30 * time.Second})
}

func newWithURLs(cfg Config, sendURL, tokenURL string, client *http.Client) *Provider {
	return &Provider{
		sendURL:         sendURL,
		saveToSentItems: cfg.SaveToSentItems,
		httpClient:      client,
		token:           newTokenSource(tokenURL, cfg.ClientID, cfg.ClientSecret, client),
		retry:           provider.DefaultRetryPolicy(),
	}
}

// SetRetryPolicy replaces the default retry policy.
func (g *Provider) SetRetryPolicy(r provider.RetryPolicy) {
	g.retry = r
}

// Name returns the provider name.
func (g *Provider) Name() string {
	return providerName
}

// Send delivers msg. 5xx and 429 responses are retried, honoring
// Retry-After; a 401 drops the cached token once before retrying; any
// other error status fails immediately.
func (g *Provider) Send(ctx context.Context, msg *email.Message) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveDelivery(providerName, start, err) }()

	body, err := json.Marshal(buildSendMailRequest(msg, g.saveToSentItems))
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	tokenRefreshed := false
	err = g.retry.Do(ctx, providerName, func(ctx context.Context) error {
		err := g.doSendRequest(ctx, body)
		if err == nil {
			return nil
		}

		serr, ok := err.(*sendError)
		if !ok {
			return err
		}
		switch {
		case serr.statusCode == http.StatusUnauthorized:
			if tokenRefreshed {
				return provider.Permanent(serr)
			}
			slog.Info("refreshing Graph API token after 401")
			g.token.reset()
			tokenRefreshed = true
			return serr
		case serr.transient:
			return serr
		default:
			return provider.Permanent(serr)
		}
	})
	if err != nil {
		return err
	}

	slog.Info("message sent via Graph",
		"message_id", msg.MessageID(),
		"recipients", len(msg.Recipients()),
	)
	return nil
}

// doSendRequest performs one POST to the sendMail endpoint.
func (g *Provider) doSendRequest(ctx context.Context, body []byte) error {
	token, err := g.token.Token(ctx)
	if err != nil {
		return provider.Permanent(fmt.Errorf("failed to get access token: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.sendURL, bytes.NewReader(body))
	if err != nil {
		return provider.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return &sendError{message: fmt.Sprintf("HTTP request failed: %v", err), transient: true}
	}
	defer resp.Body.Close()

	// sendMail answers 202 Accepted.
	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
		return nil
	}

	raw, _ := io.ReadAll(resp.Body)
	message := string(raw)
	var errResp graphErrorResponse
	if json.Unmarshal(raw, &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}
	return classifyError(resp.StatusCode, message, resp.Header.Get("Retry-After"))
}

// sendError is a failed sendMail response.
type sendError struct {
	message    string
	statusCode int
	transient  bool
	retryAfter time.Duration
}

func (e *sendError) Error() string {
	return fmt.Sprintf("Graph API error (HTTP %d): %s", e.statusCode, e.message)
}

// RetryAfter returns the delay requested by the server, if any.
func (e *sendError) RetryAfter() time.Duration {
	return e.retryAfter
}

// classifyError decides whether a status is worth retrying.
func classifyError(statusCode int, message, retryAfter string) *sendError {
	err := &sendError{message: message, statusCode: statusCode}

	switch {
	case statusCode == http.StatusUnauthorized:
		err.transient = true
	case statusCode == http.StatusTooManyRequests:
		err.transient = true
		err.retryAfter = parseRetryAfter(retryAfter)
	case statusCode >= 500:
		err.transient = true
		err.retryAfter = parseRetryAfter(retryAfter)
	}
	return err
}

// parseRetryAfter accepts the delay-seconds form of Retry-After.
func parseRetryAfter(v string) time.Duration {
	seconds, err := strconv.Atoi(v)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
