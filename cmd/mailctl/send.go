package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lithammer/dedent"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newSendCmd())
}

var sendExample = dedent.Dedent(`
	# Send a plain text message through the configured SMTP server
	SMTP_HOST=mail.example.com mailctl send -f me@example.com -t you@example.com -s "Hi" -b "Hello"

	# Send HTML read from a file with an attachment, copying two people
	mailctl send -c mailctl.yaml -t you@example.com --cc a@example.com,b@example.com \
		--html --body-file report.html -a report.pdf

	# Deliver through Resend regardless of other configured backends
	MAIL_PROVIDER=resend RESEND_API_KEY=re_123 mailctl send -t you@example.com -b "Hello"`,
)

func newSendCmd() *cobra.Command {
	var (
		flags   messageFlags
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:     "send",
		Short:   "Build a message and deliver it",
		Example: sendExample,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			setupLogger(cfg.Logging.Level, cfg.Logging.Format)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			d, err := flags.buildDraft(cfg)
			if err != nil {
				return err
			}
			prov, err := selectProvider(ctx, cfg, d)
			if err != nil {
				return err
			}

			msg, err := d.Build(ctx)
			if err != nil {
				return fmt.Errorf("failed to build message: %w", err)
			}
			if err := prov.Send(ctx, msg); err != nil {
				return fmt.Errorf("delivery via %s failed: %w", prov.Name(), err)
			}

			slog.Debug("message delivered",
				"provider", prov.Name(),
				"message_id", msg.MessageID(),
				"recipients", len(msg.Recipients()),
			)
			green.Fprintf(cmd.ErrOrStderr(), "Sent %s via %s to %d recipient(s)\n",
				msg.MessageID(), prov.Name(), len(msg.Recipients()))
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall delivery timeout (0 disables)")
	return cmd
}
