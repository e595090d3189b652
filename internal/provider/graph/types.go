package graph

import (
	"encoding/base64"
	"maps"
	"net/mail"
	"slices"
	"strings"

	"github.com/shineum/mailkit/internal/email"
)

// sendMailRequest is the body of POST /users/{id}/sendMail.
type sendMailRequest struct {
	Message         sendMailMessage `json:"message"`
	SaveToSentItems bool            `json:"saveToSentItems"`
}

type sendMailMessage struct {
	Subject                string            `json:"subject"`
	Body                   messageBody       `json:"body"`
	From                   *recipient        `json:"from,omitempty"`
	ToRecipients           []recipient       `json:"toRecipients,omitempty"`
	CcRecipients           []recipient       `json:"ccRecipients,omitempty"`
	BccRecipients          []recipient       `json:"bccRecipients,omitempty"`
	ReplyTo                []recipient       `json:"replyTo,omitempty"`
	InternetMessageID      string            `json:"internetMessageId,omitempty"`
	InternetMessageHeaders []internetHeader  `json:"internetMessageHeaders,omitempty"`
	Attachments            []graphAttachment `json:"attachments,omitempty"`
}

type messageBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type recipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

type emailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

type internetHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type graphAttachment struct {
	ODataType    string `json:"@odata.type"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentBytes string `json:"contentBytes"`
}

type graphErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// buildSendMailRequest maps a built message onto the Graph JSON schema.
// Graph only accepts custom headers prefixed with "X-"; others are dropped.
func buildSendMailRequest(msg *email.Message, saveToSentItems bool) *sendMailRequest {
	body := messageBody{ContentType: "text", Content: msg.TextBody()}
	if html := msg.HTMLBody(); html != "" {
		body = messageBody{ContentType: "html", Content: html}
	}

	from := toRecipient(msg.From())
	m := sendMailMessage{
		Subject:           msg.Subject(),
		Body:              body,
		From:              &from,
		ToRecipients:      recipients(msg.To()),
		CcRecipients:      recipients(msg.Cc()),
		BccRecipients:     recipients(msg.Bcc()),
		ReplyTo:           recipients(msg.ReplyTo()),
		InternetMessageID: "<" + msg.MessageID() + ">",
	}

	headers := msg.Headers()
	for _, name := range slices.Sorted(maps.Keys(headers)) {
		if !strings.HasPrefix(strings.ToLower(name), "x-") {
			continue
		}
		m.InternetMessageHeaders = append(m.InternetMessageHeaders, internetHeader{Name: name, Value: headers[name]})
	}

	for _, att := range msg.Attachments() {
		ct := att.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		m.Attachments = append(m.Attachments, graphAttachment{
			ODataType:    "#microsoft.graph.fileAttachment",
			Name:         att.Filename,
			ContentType:  ct,
			ContentBytes: base64.StdEncoding.EncodeToString(att.Content),
		})
	}

	return &sendMailRequest{Message: m, SaveToSentItems: saveToSentItems}
}

func toRecipient(a *mail.Address) recipient {
	return recipient{EmailAddress: emailAddress{Address: a.Address, Name: a.Name}}
}

func recipients(addrs []*mail.Address) []recipient {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]recipient, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, toRecipient(a))
	}
	return out
}
