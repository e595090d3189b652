package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	gomail "github.com/wneessen/go-mail"

	mailtls "github.com/shineum/mailkit/internal/tls"
)

// SessionConfig describes an SMTP session. Only Host is required; zero
// values fall back to the package defaults.
type SessionConfig struct {
	Host                   string
	Port                   int
	SSLPort                int
	SSLOnConnect           bool
	StartTLSEnabled        bool
	StartTLSRequired       bool
	SSLCheckServerIdentity bool
	TrustedCAFile          string
	BounceAddress          string
	Authenticator          Authenticator
	ConnectTimeout         time.Duration
	SocketTimeout          time.Duration

	// DialContext replaces the network dialer. Used by tests.
	DialContext func(ctx context.Context, network, address string) (net.Conn, error)
}

// Session is an immutable set of SMTP connection settings. It is safe for
// concurrent use; every Send opens its own connection.
type Session struct {
	cfg SessionConfig
}

// NewSession validates cfg and returns a Session.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Host == "" {
		return nil, ErrMissingHostName
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultSMTPPort
	}
	if cfg.SSLPort == 0 {
		cfg.SSLPort = DefaultSSLPort
	}
	if err := validatePort(cfg.Port); err != nil {
		return nil, err
	}
	if err := validatePort(cfg.SSLPort); err != nil {
		return nil, err
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.SocketTimeout <= 0 {
		cfg.SocketTimeout = DefaultSocketTimeout
	}
	if cfg.StartTLSRequired {
		cfg.StartTLSEnabled = true
	}
	return &Session{cfg: cfg}, nil
}

// MailSession returns the session supplied with SetMailSession, or builds
// one from the draft's settings.
func (d *Draft) MailSession() (*Session, error) {
	if d.session != nil {
		return d.session, nil
	}
	if d.hostName == "" {
		return nil, ErrMissingHostName
	}

	s, err := NewSession(SessionConfig{
		Host:                   d.hostName,
		Port:                   d.smtpPort,
		SSLPort:                d.sslSMTPPort,
		SSLOnConnect:           d.sslOnConnect,
		StartTLSEnabled:        d.startTLSEnabled,
		StartTLSRequired:       d.startTLSRequired,
		SSLCheckServerIdentity: d.sslCheckServerIdentity,
		TrustedCAFile:          d.trustedCAFile,
		BounceAddress:          d.bounceAddress,
		Authenticator:          d.authenticator,
		ConnectTimeout:         d.connectTimeout,
		SocketTimeout:          d.socketTimeout,
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("mail session created",
		"host", s.cfg.Host,
		"port", s.Port(),
		"ssl_on_connect", s.cfg.SSLOnConnect,
		"starttls", s.cfg.StartTLSEnabled,
		"auth", s.cfg.Authenticator != nil,
	)
	return s, nil
}

// Host returns the SMTP host.
func (s *Session) Host() string { return s.cfg.Host }

// Port returns the port that will be dialed.
func (s *Session) Port() int {
	if s.cfg.SSLOnConnect {
		return s.cfg.SSLPort
	}
	return s.cfg.Port
}

// Properties reports the effective settings under the conventional
// mail.smtp.* keys.
func (s *Session) Properties() map[string]string {
	c := s.cfg
	props := map[string]string{
		"mail.transport.protocol":           "smtp",
		"mail.smtp.host":                    c.Host,
		"mail.smtp.port":                    strconv.Itoa(c.Port),
		"mail.smtp.connectiontimeout":       strconv.FormatInt(c.ConnectTimeout.Milliseconds(), 10),
		"mail.smtp.timeout":                 strconv.FormatInt(c.SocketTimeout.Milliseconds(), 10),
		"mail.smtp.auth":                    strconv.FormatBool(c.Authenticator != nil),
		"mail.smtp.starttls.enable":         strconv.FormatBool(c.StartTLSEnabled),
		"mail.smtp.starttls.required":       strconv.FormatBool(c.StartTLSRequired),
		"mail.smtp.ssl.checkserveridentity": strconv.FormatBool(c.SSLCheckServerIdentity),
	}
	if c.SSLOnConnect {
		props["mail.smtp.port"] = strconv.Itoa(c.SSLPort)
		props["mail.smtp.ssl.enable"] = "true"
		props["mail.smtp.socketFactory.port"] = strconv.Itoa(c.SSLPort)
	}
	if c.TrustedCAFile != "" {
		props["mail.smtp.ssl.trust.file"] = c.TrustedCAFile
	}
	if c.BounceAddress != "" {
		props["mail.smtp.from"] = c.BounceAddress
	}
	return props
}

// tlsPolicy maps the STARTTLS flags onto go-mail's policy.
func (s *Session) tlsPolicy() gomail.TLSPolicy {
	switch {
	case s.cfg.StartTLSRequired:
		return gomail.TLSMandatory
	case s.cfg.StartTLSEnabled:
		return gomail.TLSOpportunistic
	default:
		return gomail.NoTLS
	}
}

// Client creates a go-mail client for this session. Credentials are
// resolved from the authenticator at this point.
func (s *Session) Client(ctx context.Context) (*gomail.Client, error) {
	c := s.cfg

	tlsConfig, err := mailtls.ClientConfig(c.Host, c.SSLCheckServerIdentity, c.TrustedCAFile)
	if err != nil {
		return nil, fmt.Errorf("failed to configure TLS: %w", err)
	}

	opts := []gomail.Option{
		gomail.WithPort(s.Port()),
		gomail.WithTimeout(c.SocketTimeout),
		gomail.WithTLSConfig(tlsConfig),
		gomail.WithDialContextFunc(s.dialer(tlsConfig)),
	}
	if c.SSLOnConnect {
		// The handshake happens in the dialer; STARTTLS must not be attempted
		// on top of it.
		opts = append(opts, gomail.WithSSL(), gomail.WithTLSPolicy(gomail.NoTLS))
	} else {
		opts = append(opts, gomail.WithTLSPolicy(s.tlsPolicy()))
	}

	if c.Authenticator != nil {
		user, pass, err := c.Authenticator.Credentials(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to obtain SMTP credentials: %w", err)
		}
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(user),
			gomail.WithPassword(pass),
		)
	}

	client, err := gomail.NewClient(c.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}
	return client, nil
}

// dialer applies the connection timeout to the TCP dial and, for SSL on
// connect, performs the TLS handshake within the same deadline. go-mail
// skips its own SSL dialing once a dial function is supplied.
func (s *Session) dialer(tlsConfig *tls.Config) gomail.DialContextFunc {
	return func(ctx context.Context, network, address string) (net.Conn, error) {
		ctx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
		defer cancel()

		var conn net.Conn
		var err error
		if s.cfg.DialContext != nil {
			conn, err = s.cfg.DialContext(ctx, network, address)
		} else {
			d := &net.Dialer{Timeout: s.cfg.ConnectTimeout}
			conn, err = d.DialContext(ctx, network, address)
		}
		if err != nil || !s.cfg.SSLOnConnect {
			return conn, err
		}

		tlsConn := tls.Client(conn, tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("TLS handshake with %s failed: %w", address, err)
		}
		return tlsConn, nil
	}
}

// Send delivers msg over a fresh connection.
func (s *Session) Send(ctx context.Context, msg *Message) error {
	client, err := s.Client(ctx)
	if err != nil {
		return err
	}

	return msg.withMsg(func(m *gomail.Msg) error {
		if err := client.DialAndSendWithContext(ctx, m); err != nil {
			return fmt.Errorf("failed to send message %s via %s: %w", msg.messageID, net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.Port())), err)
		}
		return nil
	})
}

// Send builds the draft and delivers it through MailSession. It returns the
// Message-ID of the sent message.
func (d *Draft) Send(ctx context.Context) (string, error) {
	session, err := d.MailSession()
	if err != nil {
		return "", err
	}
	msg, err := d.Build(ctx)
	if err != nil {
		return "", err
	}
	if err := session.Send(ctx, msg); err != nil {
		return "", err
	}
	return msg.MessageID(), nil
}
