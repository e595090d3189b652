package main

import (
	"fmt"

	"github.com/lithammer/dedent"
	"github.com/spf13/cobra"

	"github.com/shineum/mailkit/internal/provider/stdout"
)

func init() {
	rootCmd.AddCommand(newPreviewCmd())
}

var previewExample = dedent.Dedent(`
	# Show the headers and body mailctl would send
	mailctl preview -f me@example.com -t you@example.com -s "Hi" -b "Hello"

	# Print the rendered MIME message instead of a summary
	mailctl preview --raw -f me@example.com -t you@example.com -a notes.txt`,
)

func newPreviewCmd() *cobra.Command {
	var (
		flags messageFlags
		raw   bool
	)

	cmd := &cobra.Command{
		Use:     "preview",
		Short:   "Build a message and print it without delivering",
		Example: previewExample,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			setupLogger(cfg.Logging.Level, cfg.Logging.Format)

			d, err := flags.buildDraft(cfg)
			if err != nil {
				return err
			}
			msg, err := d.Build(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to build message: %w", err)
			}

			if !raw {
				cyan.Fprintf(cmd.OutOrStdout(), "Preview of %s\n", msg.MessageID())
			}
			return stdout.NewWithWriter(cmd.OutOrStdout(), raw).Send(cmd.Context(), msg)
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&raw, "raw", false, "print the rendered MIME message")
	return cmd
}
