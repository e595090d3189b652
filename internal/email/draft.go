// Package email assembles MIME messages from a mutable Draft and derives the
// SMTP session settings needed to deliver them. Encoding and the SMTP
// conversation itself are delegated to github.com/wneessen/go-mail.
package email

import (
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/htmlindex"
)

// Default session settings.
const (
	DefaultSMTPPort       = 25
	DefaultSSLPort        = 465
	DefaultPOPPort        = 110
	DefaultSocketTimeout  = 60 * time.Second
	DefaultConnectTimeout = 60 * time.Second
)

type draftState int

const (
	stateDrafting draftState = iota
	stateBuilt
)

// popBeforeSMTP holds the POP3 login performed ahead of a build.
type popBeforeSMTP struct {
	enabled  bool
	host     string
	username string
	password string
}

// Draft accumulates the parts of an email before it is built. A Draft is
// owned by a single caller and is not safe for concurrent use.
type Draft struct {
	from    *mail.Address
	to      []*mail.Address
	cc      []*mail.Address
	bcc     []*mail.Address
	replyTo []*mail.Address

	headerNames []string
	headers     map[string]string

	subject     string
	charset     string
	contentType string
	body        pendingBody
	sentDate    time.Time

	hostName               string
	smtpPort               int
	sslSMTPPort            int
	sslOnConnect           bool
	startTLSEnabled        bool
	startTLSRequired       bool
	sslCheckServerIdentity bool
	trustedCAFile          string
	bounceAddress          string
	authenticator          Authenticator
	connectTimeout         time.Duration
	socketTimeout          time.Duration
	pop                    popBeforeSMTP
	session                *Session

	state   draftState
	message *Message
}

// NewDraft returns an empty Draft with default session settings.
func NewDraft() *Draft {
	return &Draft{
		headers:        make(map[string]string),
		smtpPort:       DefaultSMTPPort,
		sslSMTPPort:    DefaultSSLPort,
		connectTimeout: DefaultConnectTimeout,
		socketTimeout:  DefaultSocketTimeout,
	}
}

// SetFrom sets the sender address.
func (d *Draft) SetFrom(address string) error {
	return d.SetFromNamed(address, "")
}

// SetFromNamed sets the sender address with a display name.
func (d *Draft) SetFromNamed(address, name string) error {
	addr, err := parseAddress(address, name)
	if err != nil {
		return fmt.Errorf("set from: %w", err)
	}
	d.from = addr
	return nil
}

// AddTo appends "To" recipients. Calling it with no addresses is a no-op.
func (d *Draft) AddTo(addresses ...string) error {
	return appendAddresses(&d.to, "to", addresses)
}

// AddCc appends "Cc" recipients. Calling it with no addresses is a no-op.
func (d *Draft) AddCc(addresses ...string) error {
	return appendAddresses(&d.cc, "cc", addresses)
}

// AddBcc appends "Bcc" recipients. Calling it with no addresses is a no-op.
func (d *Draft) AddBcc(addresses ...string) error {
	return appendAddresses(&d.bcc, "bcc", addresses)
}

// AddToNamed appends a single "To" recipient with a display name.
func (d *Draft) AddToNamed(address, name string) error {
	return appendNamed(&d.to, "to", address, name)
}

// AddCcNamed appends a single "Cc" recipient with a display name.
func (d *Draft) AddCcNamed(address, name string) error {
	return appendNamed(&d.cc, "cc", address, name)
}

// AddBccNamed appends a single "Bcc" recipient with a display name.
func (d *Draft) AddBccNamed(address, name string) error {
	return appendNamed(&d.bcc, "bcc", address, name)
}

// AddReplyTo appends a "Reply-To" address.
func (d *Draft) AddReplyTo(address string) error {
	return appendNamed(&d.replyTo, "reply-to", address, "")
}

// AddReplyToNamed appends a "Reply-To" address with a display name.
func (d *Draft) AddReplyToNamed(address, name string) error {
	return appendNamed(&d.replyTo, "reply-to", address, name)
}

func appendAddresses(dst *[]*mail.Address, field string, raws []string) error {
	addrs, err := parseAddresses(raws)
	if err != nil {
		return fmt.Errorf("add %s: %w", field, err)
	}
	*dst = append(*dst, addrs...)
	return nil
}

func appendNamed(dst *[]*mail.Address, field, raw, name string) error {
	addr, err := parseAddress(raw, name)
	if err != nil {
		return fmt.Errorf("add %s: %w", field, err)
	}
	*dst = append(*dst, addr)
	return nil
}

// AddHeader sets a custom header, replacing any previous value for name.
func (d *Draft) AddHeader(name, value string) error {
	if err := validateHeader(name, value); err != nil {
		return err
	}
	d.putHeader(name, value)
	return nil
}

// SetHeaders replaces all custom headers. Every entry is validated before
// any change is made. Entries are applied in sorted name order.
func (d *Draft) SetHeaders(headers map[string]string) error {
	for name, value := range headers {
		if err := validateHeader(name, value); err != nil {
			return err
		}
	}

	d.headerNames = nil
	d.headers = make(map[string]string, len(headers))
	for _, name := range sortedKeys(headers) {
		d.putHeader(name, headers[name])
	}
	return nil
}

func (d *Draft) putHeader(name, value string) {
	if _, ok := d.headers[name]; !ok {
		d.headerNames = append(d.headerNames, name)
	}
	d.headers[name] = value
}

func validateHeader(name, value string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: name can not be empty", ErrInvalidHeader)
	case strings.ContainsAny(name, ": \t\r\n"):
		return fmt.Errorf("%w: name %q contains illegal characters", ErrInvalidHeader, name)
	case value == "":
		return fmt.Errorf("%w: value for %q can not be empty", ErrInvalidHeader, name)
	case strings.ContainsAny(value, "\r\n"):
		return fmt.Errorf("%w: value for %q contains a line break", ErrInvalidHeader, name)
	}
	return nil
}

// SetSubject sets the subject line.
func (d *Draft) SetSubject(subject string) {
	d.subject = subject
}

// SetCharset sets the charset used for the subject and text content.
func (d *Draft) SetCharset(charset string) error {
	if charset == "" {
		d.charset = ""
		return nil
	}
	if !knownCharset(charset) {
		return fmt.Errorf("%w: %q", ErrInvalidCharset, charset)
	}
	d.charset = charset
	return nil
}

func knownCharset(name string) bool {
	_, err := htmlindex.Get(name)
	return err == nil
}

// SetContent sets a textual body with an explicit content type.
func (d *Draft) SetContent(content, contentType string) {
	d.UpdateContentType(contentType)
	d.body.text = content
	d.body.contentType = d.contentType
	if d.body.kind != bodyMultipart {
		d.body.kind = bodyText
	}
}

// SetMsg sets a plain text body.
func (d *Draft) SetMsg(text string) {
	d.SetContent(text, "text/plain")
}

// SetMultipart sets a pre-assembled body. It takes precedence over
// SetContent. The multipart is copied; later changes to it are not seen.
func (d *Draft) SetMultipart(m *Multipart) {
	if m == nil {
		if d.body.kind == bodyMultipart {
			d.body.multipart = nil
			d.body.kind = bodyNone
			if d.body.contentType != "" || d.body.text != "" {
				d.body.kind = bodyText
			}
		}
		return
	}
	d.body.kind = bodyMultipart
	d.body.multipart = m.clone()
}

// UpdateContentType stores contentType as given. A charset parameter naming
// a known charset is adopted as the draft charset; an unknown one leaves the
// draft charset unchanged. A text type without a charset gets the current
// charset appended. An empty value clears the content type.
func (d *Draft) UpdateContentType(contentType string) {
	if contentType == "" {
		d.contentType = ""
		return
	}
	d.contentType = contentType

	if cs := charsetParam(contentType); cs != "" {
		if knownCharset(cs) {
			d.charset = cs
		}
		return
	}
	d.contentType = withCharset(contentType, d.charset)
}

// SetSentDate overrides the Date header. A zero time resets it to "now".
func (d *Draft) SetSentDate(t time.Time) {
	d.sentDate = t
}

// SetHostName sets the SMTP host.
func (d *Draft) SetHostName(host string) {
	d.hostName = host
}

// SetSmtpPort sets the plain/STARTTLS SMTP port.
func (d *Draft) SetSmtpPort(port int) error {
	if err := validatePort(port); err != nil {
		return err
	}
	d.smtpPort = port
	return nil
}

// SetSslSmtpPort sets the port used when SSL is on connect.
func (d *Draft) SetSslSmtpPort(port int) error {
	if err := validatePort(port); err != nil {
		return err
	}
	d.sslSMTPPort = port
	return nil
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}
	return nil
}

// SetSSLOnConnect enables implicit TLS on connect.
func (d *Draft) SetSSLOnConnect(enabled bool) {
	d.sslOnConnect = enabled
}

// SetStartTLSEnabled enables STARTTLS when the server offers it.
func (d *Draft) SetStartTLSEnabled(enabled bool) {
	d.startTLSEnabled = enabled
}

// SetStartTLSRequired makes STARTTLS mandatory. Requiring it implies
// enabling it.
func (d *Draft) SetStartTLSRequired(required bool) {
	d.startTLSRequired = required
	if required {
		d.startTLSEnabled = true
	}
}

// SetSSLCheckServerIdentity turns on hostname verification of the server
// certificate.
func (d *Draft) SetSSLCheckServerIdentity(check bool) {
	d.sslCheckServerIdentity = check
}

// SetSSLTrustedCAFile adds a PEM bundle of extra roots to trust.
func (d *Draft) SetSSLTrustedCAFile(path string) {
	d.trustedCAFile = path
}

// SetBounceAddress sets the envelope sender used for bounces.
func (d *Draft) SetBounceAddress(address string) error {
	if address == "" {
		d.bounceAddress = ""
		return nil
	}
	addr, err := parseAddress(address, "")
	if err != nil {
		return fmt.Errorf("set bounce address: %w", err)
	}
	d.bounceAddress = addr.Address
	return nil
}

// SetAuthenticator sets the SMTP AUTH credential supplier.
func (d *Draft) SetAuthenticator(a Authenticator) {
	d.authenticator = a
}

// SetAuthentication installs a PasswordAuthenticator.
func (d *Draft) SetAuthentication(username, password string) {
	d.authenticator = NewPasswordAuthenticator(username, password)
}

// SetSocketConnectionTimeout sets the dial timeout.
func (d *Draft) SetSocketConnectionTimeout(t time.Duration) {
	d.connectTimeout = t
}

// SetSocketTimeout sets the I/O timeout of an established connection.
func (d *Draft) SetSocketTimeout(t time.Duration) {
	d.socketTimeout = t
}

// SetPopBeforeSmtp configures a POP3 login to run before the message is built.
func (d *Draft) SetPopBeforeSmtp(enabled bool, host, username, password string) {
	d.pop = popBeforeSMTP{
		enabled:  enabled,
		host:     host,
		username: username,
		password: password,
	}
}

// SetMailSession supplies a ready session; MailSession returns it as-is.
func (d *Draft) SetMailSession(s *Session) {
	d.session = s
}

// HostName returns the host of the supplied session, or the draft host.
func (d *Draft) HostName() string {
	if d.session != nil {
		return d.session.Host()
	}
	return d.hostName
}

// SmtpPort returns the SMTP port as a string.
func (d *Draft) SmtpPort() string {
	return strconv.Itoa(d.smtpPort)
}

// SslSmtpPort returns the implicit TLS port as a string.
func (d *Draft) SslSmtpPort() string {
	return strconv.Itoa(d.sslSMTPPort)
}

// SocketConnectionTimeout returns the dial timeout.
func (d *Draft) SocketConnectionTimeout() time.Duration {
	return d.connectTimeout
}

// SocketTimeout returns the connection I/O timeout.
func (d *Draft) SocketTimeout() time.Duration {
	return d.socketTimeout
}

// SentDate returns the date set with SetSentDate, or the current time.
func (d *Draft) SentDate() time.Time {
	if d.sentDate.IsZero() {
		return time.Now()
	}
	return d.sentDate
}

// Subject returns the subject line.
func (d *Draft) Subject() string { return d.subject }

// Charset returns the charset, empty when unset.
func (d *Draft) Charset() string { return d.charset }

// ContentType returns the content type as last set.
func (d *Draft) ContentType() string { return d.contentType }

// BounceAddress returns the envelope sender used for bounces.
func (d *Draft) BounceAddress() string { return d.bounceAddress }

// FromAddress returns the sender, or nil.
func (d *Draft) FromAddress() *mail.Address {
	if d.from == nil {
		return nil
	}
	c := *d.from
	return &c
}

// ToAddresses returns a copy of the "To" recipients.
func (d *Draft) ToAddresses() []*mail.Address { return cloneAddresses(d.to) }

// CcAddresses returns a copy of the "Cc" recipients.
func (d *Draft) CcAddresses() []*mail.Address { return cloneAddresses(d.cc) }

// BccAddresses returns a copy of the "Bcc" recipients.
func (d *Draft) BccAddresses() []*mail.Address { return cloneAddresses(d.bcc) }

// ReplyToAddresses returns a copy of the "Reply-To" addresses.
func (d *Draft) ReplyToAddresses() []*mail.Address { return cloneAddresses(d.replyTo) }

// Headers returns a copy of the custom headers.
func (d *Draft) Headers() map[string]string {
	out := make(map[string]string, len(d.headers))
	for k, v := range d.headers {
		out[k] = v
	}
	return out
}

// Message returns the built message, or nil before a successful Build.
func (d *Draft) Message() *Message {
	return d.message
}

// Built reports whether Build has succeeded.
func (d *Draft) Built() bool {
	return d.state == stateBuilt
}
