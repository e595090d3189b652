// Package parser decodes rendered RFC 5322 messages back into their
// headers, bodies and attachments. It is used to preview built messages and
// to hand their content to HTTP based providers.
package parser

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"
)

// Attachment is a decoded file part.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Parsed is the decoded view of a message.
type Parsed struct {
	From      string
	To        []string
	Cc        []string
	Bcc       []string
	ReplyTo   []string
	Subject   string
	MessageID string
	Date      time.Time

	// Headers holds every header as it appeared, keyed canonically.
	Headers map[string][]string

	TextBody    string
	HTMLBody    string
	Attachments []Attachment
}

var wordDecoder = &mime.WordDecoder{}

// Parse decodes raw. Plain, multipart (including nested) and base64 or
// quoted-printable encoded content is supported. Parts that cannot be
// understood are logged and skipped.
func Parse(raw []byte) (*Parsed, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	p := &Parsed{
		Headers:   make(map[string][]string, len(msg.Header)),
		From:      decodeHeader(msg.Header.Get("From")),
		Subject:   decodeHeader(msg.Header.Get("Subject")),
		MessageID: msg.Header.Get("Message-Id"),
		To:        addressList(msg.Header.Get("To")),
		Cc:        addressList(msg.Header.Get("Cc")),
		Bcc:       addressList(msg.Header.Get("Bcc")),
		ReplyTo:   addressList(msg.Header.Get("Reply-To")),
	}
	for key, values := range msg.Header {
		p.Headers[key] = values
	}
	if date, err := msg.Header.Date(); err == nil {
		p.Date = date
	}

	contentType := msg.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	encoding := msg.Header.Get("Content-Transfer-Encoding")

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		slog.Warn("failed to parse content type, treating as plain text",
			"content_type", contentType,
			"error", err,
		)
		body, err := decodeBody(msg.Body, encoding)
		if err != nil {
			return nil, fmt.Errorf("failed to read message body: %w", err)
		}
		p.TextBody = string(body)
		return p, nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return nil, fmt.Errorf("multipart message missing boundary")
		}
		if err := p.walk(msg.Body, boundary); err != nil {
			return nil, fmt.Errorf("failed to parse multipart message: %w", err)
		}
		return p, nil
	}

	body, err := decodeBody(msg.Body, encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to read message body: %w", err)
	}
	switch mediaType {
	case "text/html":
		p.HTMLBody = string(body)
	case "text/plain":
		p.TextBody = string(body)
	default:
		slog.Warn("unrecognized top-level content type", "content_type", mediaType)
		p.TextBody = string(body)
	}
	return p, nil
}

// walk visits the parts below boundary, recursing into nested multiparts.
func (p *Parsed) walk(body io.Reader, boundary string) error {
	// Raw parts keep their transfer encoding for decodeBody.
	reader := multipart.NewReader(body, boundary)

	for {
		part, err := reader.NextRawPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read next part: %w", err)
		}

		partType := part.Header.Get("Content-Type")
		if partType == "" {
			partType = "text/plain"
		}
		mediaType, params, err := mime.ParseMediaType(partType)
		if err != nil {
			slog.Warn("failed to parse part content type, skipping",
				"content_type", partType,
				"error", err,
			)
			continue
		}

		if strings.HasPrefix(mediaType, "multipart/") {
			nested := params["boundary"]
			if nested == "" {
				slog.Warn("nested multipart missing boundary, skipping")
				continue
			}
			if err := p.walk(part, nested); err != nil {
				slog.Warn("failed to parse nested multipart", "error", err)
			}
			continue
		}

		content, err := decodeBody(part, part.Header.Get("Content-Transfer-Encoding"))
		if err != nil {
			slog.Warn("failed to read part content",
				"content_type", mediaType,
				"error", err,
			)
			continue
		}

		disposition := part.Header.Get("Content-Disposition")
		filename := partFilename(part, params)
		if strings.HasPrefix(disposition, "attachment") {
			if filename == "" {
				filename = fallbackFilename(mediaType)
			}
			p.attach(filename, mediaType, content)
			continue
		}

		switch {
		case mediaType == "text/plain" && p.TextBody == "":
			p.TextBody = string(content)
		case mediaType == "text/html" && p.HTMLBody == "":
			p.HTMLBody = string(content)
		case filename != "":
			p.attach(filename, mediaType, content)
		default:
			slog.Warn("unrecognized MIME part, skipping",
				"content_type", mediaType,
				"disposition", disposition,
			)
		}
	}
}

func (p *Parsed) attach(filename, contentType string, content []byte) {
	p.Attachments = append(p.Attachments, Attachment{
		Filename:    filename,
		ContentType: contentType,
		Content:     content,
	})
}

// decodeBody reads r and undoes its transfer encoding.
func decodeBody(r io.Reader, encoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		return io.ReadAll(quotedprintable.NewReader(r))
	case "base64":
		raw, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		cleaned := strings.NewReplacer("\r", "", "\n", "", " ", "").Replace(string(raw))
		decoded, err := base64.StdEncoding.DecodeString(cleaned)
		if err != nil {
			decoded, err = base64.RawStdEncoding.DecodeString(cleaned)
			if err != nil {
				return nil, fmt.Errorf("failed to decode base64 content: %w", err)
			}
		}
		return decoded, nil
	default:
		return io.ReadAll(r)
	}
}

// partFilename looks at Content-Disposition first, then the Content-Type
// name parameter.
func partFilename(part *multipart.Part, params map[string]string) string {
	if fn := part.FileName(); fn != "" {
		return fn
	}
	return decodeHeader(params["name"])
}

// fallbackFilename names an attachment that carries no filename, since
// some APIs require one.
func fallbackFilename(mediaType string) string {
	if _, sub, ok := strings.Cut(mediaType, "/"); ok && sub != "" {
		return "attachment." + sub
	}
	return "attachment"
}

// decodeHeader undoes RFC 2047 encoded words, returning the input when it
// cannot be decoded.
func decodeHeader(v string) string {
	if v == "" {
		return ""
	}
	decoded, err := wordDecoder.DecodeHeader(v)
	if err != nil {
		return v
	}
	return decoded
}

// addressList returns the bare addresses of a header value. Unparseable
// lists fall back to a comma split.
func addressList(raw string) []string {
	if raw == "" {
		return nil
	}

	addrs, err := mail.ParseAddressList(raw)
	if err != nil {
		var out []string
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}

	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Address)
	}
	return out
}
