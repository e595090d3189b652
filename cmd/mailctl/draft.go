package main

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shineum/mailkit/internal/config"
	"github.com/shineum/mailkit/internal/email"
)

// messageFlags are the message fields shared by send and preview.
type messageFlags struct {
	from        string
	fromName    string
	to          []string
	cc          []string
	bcc         []string
	replyTo     []string
	subject     string
	body        string
	bodyFile    string
	html        bool
	charset     string
	headers     []string
	attachments []string
}

func (f *messageFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.from, "from", "f", "", "sender address (defaults to message.from)")
	fs.StringVar(&f.fromName, "from-name", "", "sender display name")
	fs.StringSliceVarP(&f.to, "to", "t", nil, "To recipients")
	fs.StringSliceVar(&f.cc, "cc", nil, "Cc recipients")
	fs.StringSliceVar(&f.bcc, "bcc", nil, "Bcc recipients")
	fs.StringSliceVar(&f.replyTo, "reply-to", nil, "Reply-To addresses")
	fs.StringVarP(&f.subject, "subject", "s", "", "message subject")
	fs.StringVarP(&f.body, "body", "b", "", "message body")
	fs.StringVar(&f.bodyFile, "body-file", "", "read the message body from a file (- for stdin)")
	fs.BoolVar(&f.html, "html", false, "send the body as text/html")
	fs.StringVar(&f.charset, "charset", "", "body charset (defaults to message.charset or UTF-8)")
	fs.StringArrayVarP(&f.headers, "header", "H", nil, `extra header as "Name: value"`)
	fs.StringArrayVarP(&f.attachments, "attach", "a", nil, "file to attach")
}

// buildDraft layers the configured defaults and then the flags onto a new
// draft. The draft is not built.
func (f *messageFlags) buildDraft(cfg *config.Config) (*email.Draft, error) {
	d := email.NewDraft()
	if err := cfg.ApplyTo(d); err != nil {
		return nil, err
	}

	if f.from != "" {
		if err := d.SetFromNamed(f.from, f.fromName); err != nil {
			return nil, err
		}
	}
	if err := d.AddTo(f.to...); err != nil {
		return nil, err
	}
	if err := d.AddCc(f.cc...); err != nil {
		return nil, err
	}
	if err := d.AddBcc(f.bcc...); err != nil {
		return nil, err
	}
	for _, addr := range f.replyTo {
		if err := d.AddReplyTo(addr); err != nil {
			return nil, err
		}
	}
	for _, h := range f.headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return nil, fmt.Errorf("%w: %q is not Name: value", email.ErrInvalidHeader, h)
		}
		if err := d.AddHeader(strings.TrimSpace(name), strings.TrimSpace(value)); err != nil {
			return nil, err
		}
	}
	if f.charset != "" {
		if err := d.SetCharset(f.charset); err != nil {
			return nil, err
		}
	}
	d.SetSubject(f.subject)
	d.SetSentDate(time.Now())

	body, err := f.readBody()
	if err != nil {
		return nil, err
	}
	contentType := "text/plain"
	if f.html {
		contentType = "text/html"
	}

	if len(f.attachments) == 0 {
		d.SetContent(body, contentType)
		return d, nil
	}

	m := email.NewMultipart().AddPart(contentType, body)
	for _, path := range f.attachments {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment: %w", err)
		}
		m.Attach(filepath.Base(path), attachmentType(path), data)
	}
	d.SetMultipart(m)
	return d, nil
}

func (f *messageFlags) readBody() (string, error) {
	switch f.bodyFile {
	case "":
		return f.body, nil
	case "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read body from stdin: %w", err)
		}
		return string(data), nil
	default:
		data, err := os.ReadFile(f.bodyFile)
		if err != nil {
			return "", fmt.Errorf("failed to read body file: %w", err)
		}
		return string(data), nil
	}
}

func attachmentType(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
