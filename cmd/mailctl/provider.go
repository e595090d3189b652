package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/shineum/mailkit/internal/config"
	"github.com/shineum/mailkit/internal/email"
	"github.com/shineum/mailkit/internal/provider"
	"github.com/shineum/mailkit/internal/provider/graph"
	"github.com/shineum/mailkit/internal/provider/resend"
	"github.com/shineum/mailkit/internal/provider/ses"
	"github.com/shineum/mailkit/internal/provider/smtp"
	"github.com/shineum/mailkit/internal/provider/stdout"
)

// selectProvider chooses the delivery backend. An explicit provider name
// wins; otherwise the first configured backend is used, falling back to
// stdout. The SMTP backend takes its session from d.
func selectProvider(ctx context.Context, cfg *config.Config, d *email.Draft) (provider.Provider, error) {
	name := cfg.Provider
	if name == "" {
		name = detectProvider(cfg)
		slog.Debug("auto-detected provider", "provider", name)
	}

	switch name {
	case "smtp":
		session, err := d.MailSession()
		if err != nil {
			return nil, fmt.Errorf("failed to create SMTP session: %w", err)
		}
		slog.Info("using SMTP provider",
			"host", session.Host(),
			"port", session.Port(),
		)
		return smtp.New(session), nil

	case "ses":
		slog.Info("using AWS SES provider", "region", cfg.SES.Region)
		p, err := ses.New(ctx, ses.Config{
			Region:           cfg.SES.Region,
			AccessKeyID:      cfg.SES.AccessKeyID,
			SecretAccessKey:  cfg.SES.SecretAccessKey,
			ConfigurationSet: cfg.SES.ConfigurationSet,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create SES provider: %w", err)
		}
		return p, nil

	case "graph":
		slog.Info("using Microsoft Graph provider", "sender", cfg.Graph.Sender)
		return graph.New(graph.Config{
			TenantID:        cfg.Graph.TenantID,
			ClientID:        cfg.Graph.ClientID,
			ClientSecret:    cfg.Graph.ClientSecret,
			Sender:          cfg.Graph.Sender,
			SaveToSentItems: cfg.Graph.SaveToSentItems,
		}), nil

	case "resend":
		slog.Info("using Resend provider")
		return resend.New(resend.Config{APIKey: cfg.Resend.APIKey})

	case "stdout":
		slog.Info("using stdout provider")
		return stdout.NewWithWriter(os.Stdout, false), nil

	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

func detectProvider(cfg *config.Config) string {
	switch {
	case cfg.SMTPConfigured():
		return "smtp"
	case cfg.GraphConfigured():
		return "graph"
	case cfg.SESConfigured():
		return "ses"
	case cfg.Resend.APIKey != "":
		return "resend"
	default:
		return "stdout"
	}
}
