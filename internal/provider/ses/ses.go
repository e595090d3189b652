// Package ses implements a Provider that delivers built messages through
// AWS SES v2 as raw MIME.
package ses

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/shineum/mailkit/internal/email"
	"github.com/shineum/mailkit/internal/metrics"
	"github.com/shineum/mailkit/internal/provider"
)

const providerName = "ses"

// Config holds the settings for creating a Provider.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// ConfigurationSet names an SES configuration set applied to every send.
	ConfigurationSet string
}

// SendEmailAPI is the subset of the SES v2 client used here.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Provider sends messages via the SES v2 SendEmail API.
type Provider struct {
	client           SendEmailAPI
	configurationSet string
	retry            provider.RetryPolicy
}

// New creates a Provider from cfg. Static credentials are used when both
// keys are set, otherwise the default AWS credential chain applies.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	p := NewWithClient(sesv2.NewFromConfig(awsCfg))
	p.configurationSet = cfg.ConfigurationSet
	return p, nil
}

// NewWithClient creates a Provider around an existing client.
func NewWithClient(client SendEmailAPI) *Provider {
	return &Provider{
		client: client,
		retry:  provider.DefaultRetryPolicy(),
	}
}

// SetRetryPolicy replaces the default retry policy.
func (p *Provider) SetRetryPolicy(r provider.RetryPolicy) {
	p.retry = r
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return providerName
}

// Send submits the rendered message. Recipients are passed explicitly so
// Bcc addresses, which are absent from the headers, are delivered too.
func (p *Provider) Send(ctx context.Context, msg *email.Message) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveDelivery(providerName, start, err) }()

	input := buildInput(msg, p.configurationSet)

	var messageID string
	err = p.retry.Do(ctx, providerName, func(ctx context.Context) error {
		out, err := p.client.SendEmail(ctx, input)
		if err != nil {
			return err
		}
		messageID = aws.ToString(out.MessageId)
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("message sent via SES",
		"message_id", msg.MessageID(),
		"ses_message_id", messageID,
		"recipients", len(msg.Recipients()),
	)
	return nil
}

// buildInput maps msg onto a raw SendEmail request.
func buildInput(msg *email.Message, configurationSet string) *sesv2.SendEmailInput {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From().String()),
		Destination: &types.Destination{
			ToAddresses:  provider.Addresses(msg.To()),
			CcAddresses:  provider.Addresses(msg.Cc()),
			BccAddresses: provider.Addresses(msg.Bcc()),
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: msg.Bytes()},
		},
	}
	if from := msg.EnvelopeFrom(); from != msg.From().Address {
		input.FeedbackForwardingEmailAddress = aws.String(from)
	}
	if replyTo := provider.Addresses(msg.ReplyTo()); len(replyTo) > 0 {
		input.ReplyToAddresses = replyTo
	}
	if configurationSet != "" {
		input.ConfigurationSetName = aws.String(configurationSet)
	}
	return input
}
