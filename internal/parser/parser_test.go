package parser

import (
	"context"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/shineum/mailkit/internal/email"
)

func msgLines(lines ...string) []byte {
	return []byte(strings.Join(lines, "\r\n"))
}

func TestParseHeaderFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		raw       []byte
		from      string
		to        []string
		cc        []string
		bcc       []string
		subject   string
		messageID string
		textBody  string
	}{
		{
			name: "plain text",
			raw: msgLines(
				"From: billing@shop.example",
				"To: customer@example.org",
				"Subject: Your invoice",
				"Message-Id: <inv-2041@shop.example>",
				"Content-Type: text/plain",
				"",
				"Invoice 2041 is attached to your account.",
			),
			from:      "billing@shop.example",
			to:        []string{"customer@example.org"},
			subject:   "Your invoice",
			messageID: "<inv-2041@shop.example>",
			textBody:  "Invoice 2041 is attached to your account.",
		},
		{
			name: "several recipients with bcc",
			raw: msgLines(
				"From: ops@example.net",
				"To: ana@example.net, ben@example.net, cho@example.net",
				"Cc: lead@example.net",
				"Bcc: audit@example.net",
				"Subject: Rota",
				"",
				"Week 12 rota",
			),
			from:     "ops@example.net",
			to:       []string{"ana@example.net", "ben@example.net", "cho@example.net"},
			cc:       []string{"lead@example.net"},
			bcc:      []string{"audit@example.net"},
			subject:  "Rota",
			textBody: "Week 12 rota",
		},
		{
			name: "no recipient headers",
			raw: msgLines(
				"From: robot@example.com",
				"Subject: Heartbeat",
				"",
				"ok",
			),
			from:     "robot@example.com",
			subject:  "Heartbeat",
			textBody: "ok",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			msg, err := Parse(tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if msg.From != tt.from {
				t.Errorf("From: got %q, want %q", msg.From, tt.from)
			}
			if !slices.Equal(msg.To, tt.to) {
				t.Errorf("To: got %v, want %v", msg.To, tt.to)
			}
			if !slices.Equal(msg.Cc, tt.cc) {
				t.Errorf("Cc: got %v, want %v", msg.Cc, tt.cc)
			}
			if !slices.Equal(msg.Bcc, tt.bcc) {
				t.Errorf("Bcc: got %v, want %v", msg.Bcc, tt.bcc)
			}
			if msg.Subject != tt.subject {
				t.Errorf("Subject: got %q, want %q", msg.Subject, tt.subject)
			}
			if msg.MessageID != tt.messageID {
				t.Errorf("MessageID: got %q, want %q", msg.MessageID, tt.messageID)
			}
			if msg.TextBody != tt.textBody {
				t.Errorf("TextBody: got %q, want %q", msg.TextBody, tt.textBody)
			}
			if msg.HTMLBody != "" || len(msg.Attachments) != 0 {
				t.Errorf("unexpected html %q or attachments %d", msg.HTMLBody, len(msg.Attachments))
			}
		})
	}
}

func TestParseCustomHeaders(t *testing.T) {
	t.Parallel()

	msg, err := Parse(msgLines(
		"From: a@example.com",
		"To: b@example.com",
		"X-Ticket: 8812",
		"X-Ticket: 8813",
		"List-Unsubscribe: <mailto:leave@example.com>",
		"",
		"body",
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := msg.Headers["X-Ticket"]; !slices.Equal(got, []string{"8812", "8813"}) {
		t.Errorf("X-Ticket: got %v", got)
	}
	if got := msg.Headers["List-Unsubscribe"]; len(got) != 1 || got[0] != "<mailto:leave@example.com>" {
		t.Errorf("List-Unsubscribe: got %v", got)
	}
}

func TestParseMultipartTextAndHTML(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: sender@example.com",
		"To: alice@example.com, bob@example.com",
		"Cc: carol@example.com",
		"Subject: Multipart Test",
		"Content-Type: multipart/alternative; boundary=boundary123",
		"",
		"--boundary123",
		"Content-Type: text/plain",
		"",
		"Plain text body",
		"--boundary123",
		"Content-Type: text/html",
		"",
		"<html><body><p>HTML body</p></body></html>",
		"--boundary123--",
	}, "\r\n"))

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if msg.From != "sender@example.com" {
		t.Errorf("From: got %q, want %q", msg.From, "sender@example.com")
	}
	if len(msg.To) != 2 {
		t.Fatalf("To: got %d recipients, want 2", len(msg.To))
	}
	if msg.To[0] != "alice@example.com" {
		t.Errorf("To[0]: got %q, want %q", msg.To[0], "alice@example.com")
	}
	if msg.To[1] != "bob@example.com" {
		t.Errorf("To[1]: got %q, want %q", msg.To[1], "bob@example.com")
	}
	if len(msg.Cc) != 1 || msg.Cc[0] != "carol@example.com" {
		t.Errorf("Cc: got %v, want [carol@example.com]", msg.Cc)
	}
	if msg.TextBody != "Plain text body" {
		t.Errorf("TextBody: got %q, want %q", msg.TextBody, "Plain text body")
	}
	if msg.HTMLBody != "<html><body><p>HTML body</p></body></html>" {
		t.Errorf("HTMLBody: got %q, want %q", msg.HTMLBody, "<html><body><p>HTML body</p></body></html>")
	}
}

func TestParseAttachments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		raw         []byte
		filename    string
		contentType string
		content     string
	}{
		{
			name: "named base64 attachment",
			raw: msgLines(
				"From: a@example.com",
				"To: b@example.com",
				"Content-Type: multipart/mixed; boundary=sep",
				"",
				"--sep",
				"Content-Type: text/plain",
				"",
				"minutes attached",
				"--sep",
				"Content-Type: application/pdf; name=\"minutes.pdf\"",
				"Content-Disposition: attachment; filename=\"minutes.pdf\"",
				"Content-Transfer-Encoding: base64",
				"",
				"bWludXRlcw==",
				"--sep--",
			),
			filename:    "minutes.pdf",
			contentType: "application/pdf",
			content:     "minutes",
		},
		{
			name: "base64 wrapped across lines",
			raw: msgLines(
				"From: a@example.com",
				"To: b@example.com",
				"Content-Type: multipart/mixed; boundary=sep",
				"",
				"--sep",
				"Content-Type: text/csv; name=\"q1.csv\"",
				"Content-Disposition: attachment; filename=\"q1.csv\"",
				"Content-Transfer-Encoding: base64",
				"",
				"cmVn",
				"aW9u",
				"LHRv",
				"dGFs",
				"--sep--",
			),
			filename:    "q1.csv",
			contentType: "text/csv",
			content:     "region,total",
		},
		{
			name: "attachment without filename",
			raw: msgLines(
				"From: a@example.com",
				"To: b@example.com",
				"Content-Type: multipart/mixed; boundary=sep",
				"",
				"--sep",
				"Content-Type: image/png",
				"Content-Disposition: attachment",
				"Content-Transfer-Encoding: base64",
				"",
				"cG5nZGF0YQ==",
				"--sep--",
			),
			filename:    "attachment.png",
			contentType: "image/png",
			content:     "pngdata",
		},
		{
			name: "inline part named by content type",
			raw: msgLines(
				"From: a@example.com",
				"To: b@example.com",
				"Content-Type: multipart/mixed; boundary=sep",
				"",
				"--sep",
				"Content-Type: application/json; name=\"payload.json\"",
				"",
				"{}",
				"--sep--",
			),
			filename:    "payload.json",
			contentType: "application/json",
			content:     "{}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			msg, err := Parse(tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(msg.Attachments) != 1 {
				t.Fatalf("Attachments: got %d, want 1", len(msg.Attachments))
			}
			att := msg.Attachments[0]
			if att.Filename != tt.filename {
				t.Errorf("Filename: got %q, want %q", att.Filename, tt.filename)
			}
			if att.ContentType != tt.contentType {
				t.Errorf("ContentType: got %q, want %q", att.ContentType, tt.contentType)
			}
			if string(att.Content) != tt.content {
				t.Errorf("Content: got %q, want %q", att.Content, tt.content)
			}
		})
	}
}

func TestParseMalformedMIME(t *testing.T) {
	t.Parallel()

	t.Run("completely invalid message", func(t *testing.T) {
		t.Parallel()
		raw := []byte("not a valid email at all\x00\x01\x02")
		_, err := Parse(raw)
		if err == nil {
			t.Error("expected error for completely invalid message, got nil")
		}
	})

	t.Run("missing content type defaults to text/plain", func(t *testing.T) {
		t.Parallel()
		raw := []byte(strings.Join([]string{
			"From: sender@example.com",
			"To: recipient@example.com",
			"Subject: No Content Type",
			"",
			"Body without content type header",
		}, "\r\n"))

		msg, err := Parse(raw)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if msg.TextBody != "Body without content type header" {
			t.Errorf("TextBody: got %q, want %q", msg.TextBody, "Body without content type header")
		}
	})

	t.Run("multipart missing boundary", func(t *testing.T) {
		t.Parallel()
		raw := []byte(strings.Join([]string{
			"From: sender@example.com",
			"To: recipient@example.com",
			"Content-Type: multipart/mixed",
			"",
			"some body",
		}, "\r\n"))

		_, err := Parse(raw)
		if err == nil {
			t.Error("expected error for multipart missing boundary, got nil")
		}
	})
}

func TestParseNestedMultipart(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: sender@example.com",
		"To: recipient@example.com",
		"Subject: Nested Multipart",
		"Content-Type: multipart/mixed; boundary=outer",
		"",
		"--outer",
		"Content-Type: multipart/alternative; boundary=inner",
		"",
		"--inner",
		"Content-Type: text/plain",
		"",
		"Plain text part",
		"--inner",
		"Content-Type: text/html",
		"",
		"<p>HTML part</p>",
		"--inner--",
		"--outer",
		"Content-Type: application/octet-stream; name=\"data.bin\"",
		"Content-Disposition: attachment; filename=\"data.bin\"",
		"",
		"binarydata",
		"--outer--",
	}, "\r\n"))

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if msg.TextBody != "Plain text part" {
		t.Errorf("TextBody: got %q, want %q", msg.TextBody, "Plain text part")
	}
	if msg.HTMLBody != "<p>HTML part</p>" {
		t.Errorf("HTMLBody: got %q, want %q", msg.HTMLBody, "<p>HTML part</p>")
	}
	if len(msg.Attachments) != 1 {
		t.Fatalf("Attachments: got %d, want 1", len(msg.Attachments))
	}
	if msg.Attachments[0].Filename != "data.bin" {
		t.Errorf("Attachment Filename: got %q, want %q", msg.Attachments[0].Filename, "data.bin")
	}
}

func TestParseQuotedPrintableBody(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: sender@example.com",
		"To: recipient@example.com",
		"Subject: =?UTF-8?q?Gr=C3=BC=C3=9Fe?=",
		"Content-Type: text/plain; charset=UTF-8",
		"Content-Transfer-Encoding: quoted-printable",
		"",
		"caf=C3=A9 au lait, a soft=",
		" break",
	}, "\r\n"))

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Subject != "Grüße" {
		t.Errorf("Subject: got %q, want %q", msg.Subject, "Grüße")
	}
	if msg.TextBody != "café au lait, a soft break" {
		t.Errorf("TextBody: got %q, want %q", msg.TextBody, "café au lait, a soft break")
	}
}

func TestParseReplyToAndDate(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: Sender <sender@example.com>",
		"To: recipient@example.com",
		"Reply-To: Support <support@example.com>, help@example.com",
		"Date: Mon, 02 Jan 2006 15:04:05 +0000",
		"Content-Type: text/plain",
		"",
		"Body",
	}, "\r\n"))

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msg.ReplyTo) != 2 || msg.ReplyTo[0] != "support@example.com" || msg.ReplyTo[1] != "help@example.com" {
		t.Errorf("ReplyTo: got %v, want [support@example.com help@example.com]", msg.ReplyTo)
	}
	want := time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC)
	if !msg.Date.Equal(want) {
		t.Errorf("Date: got %v, want %v", msg.Date, want)
	}
	if msg.From != "Sender <sender@example.com>" {
		t.Errorf("From: got %q, want %q", msg.From, "Sender <sender@example.com>")
	}
}

func TestParseBuiltMessage(t *testing.T) {
	t.Parallel()

	d := email.NewDraft()
	if err := d.SetFrom("sender@example.com"); err != nil {
		t.Fatalf("SetFrom: %v", err)
	}
	if err := d.AddTo("alice@example.com", "bob@example.com"); err != nil {
		t.Fatalf("AddTo: %v", err)
	}
	if err := d.AddHeader("X-Campaign", "spring"); err != nil {
		t.Fatalf("AddHeader: %v", err)
	}
	d.SetSubject("Quarterly report")
	d.SetMultipart(email.NewAlternative().
		AddPart("text/plain", "See attached.").
		AddPart("text/html", "<p>See attached.</p>").
		Attach("report.csv", "text/csv", []byte("a,b\n1,2\n")))

	built, err := d.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	msg, err := Parse(built.Bytes())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Subject != "Quarterly report" {
		t.Errorf("Subject: got %q, want %q", msg.Subject, "Quarterly report")
	}
	if len(msg.To) != 2 {
		t.Errorf("To: got %v, want 2 recipients", msg.To)
	}
	if !strings.Contains(msg.TextBody, "See attached.") {
		t.Errorf("TextBody: got %q", msg.TextBody)
	}
	if !strings.Contains(msg.HTMLBody, "<p>See attached.</p>") {
		t.Errorf("HTMLBody: got %q", msg.HTMLBody)
	}
	if len(msg.Attachments) != 1 || msg.Attachments[0].Filename != "report.csv" {
		t.Fatalf("Attachments: got %+v, want report.csv", msg.Attachments)
	}
	if string(msg.Attachments[0].Content) != "a,b\n1,2\n" {
		t.Errorf("Attachment Content: got %q", msg.Attachments[0].Content)
	}
	if got := msg.Headers["X-Campaign"]; len(got) != 1 || got[0] != "spring" {
		t.Errorf("X-Campaign: got %v, want [spring]", got)
	}
	if msg.MessageID != "<"+built.MessageID()+">" {
		t.Errorf("MessageID: got %q, want <%s>", msg.MessageID, built.MessageID())
	}
}
