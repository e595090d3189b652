package email

import (
	"fmt"
	"mime"
	"strings"
)

// bodyKind tags which variant of pendingBody is populated.
type bodyKind int

const (
	bodyNone bodyKind = iota
	bodyText
	bodyMultipart
)

// pendingBody holds the content a Draft will render at build time.
type pendingBody struct {
	kind        bodyKind
	text        string
	contentType string
	multipart   *Multipart
}

// Part is a single inline body part of a message.
type Part struct {
	ContentType string
	Content     string
}

// Attachment is a file carried by a multipart body.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Multipart is a pre-assembled body. When a Draft has one, it is used as the
// top-level content and any plain content set with SetContent is ignored.
type Multipart struct {
	subtype     string
	parts       []Part
	attachments []Attachment
}

// NewMultipart returns an empty multipart/mixed body.
func NewMultipart() *Multipart {
	return &Multipart{subtype: "mixed"}
}

// NewAlternative returns an empty multipart/alternative body, used for a
// text part with an HTML rendering of the same content.
func NewAlternative() *Multipart {
	return &Multipart{subtype: "alternative"}
}

// AddPart appends an inline part.
func (m *Multipart) AddPart(contentType, content string) *Multipart {
	m.parts = append(m.parts, Part{ContentType: contentType, Content: content})
	return m
}

// Attach appends an attachment.
func (m *Multipart) Attach(filename, contentType string, content []byte) *Multipart {
	data := make([]byte, len(content))
	copy(data, content)
	m.attachments = append(m.attachments, Attachment{
		Filename:    filename,
		ContentType: contentType,
		Content:     data,
	})
	return m
}

// ContentType returns the top-level media type the multipart renders as.
// Attachments wrap the body in multipart/mixed, several inline parts render
// as multipart/alternative, and a lone inline part renders as itself.
func (m *Multipart) ContentType() string {
	switch {
	case len(m.attachments) > 0:
		return "multipart/mixed"
	case len(m.parts) > 1:
		return "multipart/alternative"
	case len(m.parts) == 1:
		return m.parts[0].ContentType
	}
	return "multipart/" + m.subtype
}

// validate rejects shapes that cannot be rendered as described.
func (m *Multipart) validate() error {
	if len(m.parts) == 0 {
		return fmt.Errorf("%w: at least one inline part required", ErrInvalidMultipart)
	}
	if m.subtype == "mixed" && len(m.parts) > 1 {
		return fmt.Errorf("%w: multipart/mixed takes one inline part, use NewAlternative for several", ErrInvalidMultipart)
	}
	return nil
}

// Parts returns a copy of the inline parts.
func (m *Multipart) Parts() []Part {
	return append([]Part(nil), m.parts...)
}

// Attachments returns a copy of the attachments.
func (m *Multipart) Attachments() []Attachment {
	out := make([]Attachment, 0, len(m.attachments))
	for _, a := range m.attachments {
		data := make([]byte, len(a.Content))
		copy(data, a.Content)
		a.Content = data
		out = append(out, a)
	}
	return out
}

func (m *Multipart) clone() *Multipart {
	return &Multipart{
		subtype:     m.subtype,
		parts:       m.Parts(),
		attachments: m.Attachments(),
	}
}

// mediaType strips parameters from a content type. Values that do not parse
// as a media type are returned trimmed, as-is.
func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		if i := strings.Index(contentType, ";"); i >= 0 {
			return strings.TrimSpace(contentType[:i])
		}
		return strings.TrimSpace(contentType)
	}
	return mt
}

// charsetParam extracts a charset= parameter from a content type. It scans
// by hand so that fragments such as "; charset=UTF-8" are understood.
func charsetParam(contentType string) string {
	lower := strings.ToLower(contentType)
	i := strings.Index(lower, "charset=")
	if i < 0 {
		return ""
	}
	v := contentType[i+len("charset="):]
	if j := strings.IndexAny(v, "; "); j >= 0 {
		v = v[:j]
	}
	return strings.Trim(v, `"`)
}

// withCharset appends a charset parameter to text content types that lack one.
func withCharset(contentType, charset string) string {
	if charset == "" || contentType == "" {
		return contentType
	}
	if !strings.HasPrefix(strings.ToLower(contentType), "text/") {
		return contentType
	}
	if charsetParam(contentType) != "" {
		return contentType
	}
	return contentType + "; charset=" + charset
}
