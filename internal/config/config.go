// Package config loads mailctl settings from a YAML file and environment
// variables and applies them to a draft.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shineum/mailkit/internal/email"
)

// Config holds all configuration for mailctl.
type Config struct {
	Provider string        `yaml:"provider"`
	SMTP     SMTPConfig    `yaml:"smtp"`
	Message  MessageConfig `yaml:"message"`
	SES      SESConfig     `yaml:"ses"`
	Graph    GraphConfig   `yaml:"graph"`
	Resend   ResendConfig  `yaml:"resend"`
	Logging  LoggingConfig `yaml:"logging"`
}

// SMTPConfig describes the outbound SMTP session.
type SMTPConfig struct {
	Host                   string        `yaml:"host"`
	Port                   int           `yaml:"port"`
	SSLPort                int           `yaml:"ssl_port"`
	SSLOnConnect           bool          `yaml:"ssl_on_connect"`
	StartTLSEnabled        bool          `yaml:"starttls_enabled"`
	StartTLSRequired       bool          `yaml:"starttls_required"`
	SSLCheckServerIdentity bool          `yaml:"ssl_check_server_identity"`
	TrustedCAFile          string        `yaml:"trusted_ca_file"`
	Username               string        `yaml:"username"`
	Password               string        `yaml:"password"`
	BounceAddress          string        `yaml:"bounce_address"`
	ConnectionTimeout      time.Duration `yaml:"connection_timeout"`
	SocketTimeout          time.Duration `yaml:"socket_timeout"`
	PopBeforeSMTP          PopConfig     `yaml:"pop_before_smtp"`
}

// PopConfig enables a POP3 login before SMTP delivery when Host is set.
type PopConfig struct {
	Host     string `yaml:"host"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MessageConfig holds defaults applied to every draft.
type MessageConfig struct {
	From    string `yaml:"from"`
	Charset string `yaml:"charset"`
}

// SESConfig holds the Amazon SES region and optional static credentials.
type SESConfig struct {
	Region           string `yaml:"region"`
	AccessKeyID      string `yaml:"access_key_id"`
	SecretAccessKey  string `yaml:"secret_access_key"`
	ConfigurationSet string `yaml:"configuration_set"`
}

// GraphConfig holds the Microsoft Graph app registration used for sending.
type GraphConfig struct {
	TenantID        string `yaml:"tenant_id"`
	ClientID        string `yaml:"client_id"`
	ClientSecret    string `yaml:"client_secret"`
	Sender          string `yaml:"sender"`
	SaveToSentItems bool   `yaml:"save_to_sent_items"`
}

// ResendConfig holds the Resend API key.
type ResendConfig struct {
	APIKey string `yaml:"api_key"`
}

// LoggingConfig selects the slog level and handler format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load returns configuration built from defaults and environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	applyEnvVars(cfg)
	return cfg, nil
}

// LoadFromFile reads a YAML config file, then lets environment variables
// override it.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	applyDefaults(cfg)

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvVars(cfg)
	return cfg, nil
}

// GraphConfigured returns true if all required Graph fields are set.
func (c *Config) GraphConfigured() bool {
	return c.Graph.TenantID != "" && c.Graph.ClientID != "" &&
		c.Graph.ClientSecret != "" && c.Graph.Sender != ""
}

// SESConfigured returns true if the SES region is set. Credentials may come
// from the default AWS chain.
func (c *Config) SESConfigured() bool {
	return c.SES.Region != ""
}

// SMTPConfigured returns true if an SMTP host is set.
func (c *Config) SMTPConfigured() bool {
	return c.SMTP.Host != ""
}

// AuthEnabled returns true if SMTP credentials are configured.
func (c *Config) AuthEnabled() bool {
	return c.SMTP.Username != "" && c.SMTP.Password != ""
}

// Validate checks that the selected provider has what it needs.
func (c *Config) Validate() error {
	switch c.Provider {
	case "", "stdout":
	case "smtp":
		if !c.SMTPConfigured() {
			return fmt.Errorf("smtp provider requires smtp.host")
		}
	case "ses":
		if !c.SESConfigured() {
			return fmt.Errorf("ses provider requires ses.region")
		}
	case "graph":
		if !c.GraphConfigured() {
			return fmt.Errorf("graph provider requires tenant_id, client_id, client_secret and sender")
		}
	case "resend":
		if c.Resend.APIKey == "" {
			return fmt.Errorf("resend provider requires resend.api_key")
		}
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	return nil
}

// ApplyTo copies the message defaults and SMTP session settings onto d.
func (c *Config) ApplyTo(d *email.Draft) error {
	if c.Message.From != "" {
		if err := d.SetFrom(c.Message.From); err != nil {
			return fmt.Errorf("message.from: %w", err)
		}
	}
	if c.Message.Charset != "" {
		if err := d.SetCharset(c.Message.Charset); err != nil {
			return fmt.Errorf("message.charset: %w", err)
		}
	}

	s := c.SMTP
	if s.Host != "" {
		d.SetHostName(s.Host)
	}
	if s.Port != 0 {
		if err := d.SetSmtpPort(s.Port); err != nil {
			return fmt.Errorf("smtp.port: %w", err)
		}
	}
	if s.SSLPort != 0 {
		if err := d.SetSslSmtpPort(s.SSLPort); err != nil {
			return fmt.Errorf("smtp.ssl_port: %w", err)
		}
	}
	d.SetSSLOnConnect(s.SSLOnConnect)
	d.SetStartTLSEnabled(s.StartTLSEnabled)
	if s.StartTLSRequired {
		d.SetStartTLSRequired(true)
	}
	d.SetSSLCheckServerIdentity(s.SSLCheckServerIdentity)
	if s.TrustedCAFile != "" {
		d.SetSSLTrustedCAFile(s.TrustedCAFile)
	}
	if c.AuthEnabled() {
		d.SetAuthentication(s.Username, s.Password)
	}
	if s.BounceAddress != "" {
		if err := d.SetBounceAddress(s.BounceAddress); err != nil {
			return fmt.Errorf("smtp.bounce_address: %w", err)
		}
	}
	if s.ConnectionTimeout > 0 {
		d.SetSocketConnectionTimeout(s.ConnectionTimeout)
	}
	if s.SocketTimeout > 0 {
		d.SetSocketTimeout(s.SocketTimeout)
	}
	if p := s.PopBeforeSMTP; p.Host != "" {
		d.SetPopBeforeSmtp(true, p.Host, p.Username, p.Password)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	cfg.SMTP.Port = email.DefaultSMTPPort
	cfg.SMTP.SSLPort = email.DefaultSSLPort
	cfg.SMTP.ConnectionTimeout = email.DefaultConnectTimeout
	cfg.SMTP.SocketTimeout = email.DefaultSocketTimeout
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"
}

func applyEnvVars(cfg *Config) {
	if v := os.Getenv("MAIL_PROVIDER"); v != "" {
		cfg.Provider = strings.ToLower(v)
	}

	setString(&cfg.SMTP.Host, "SMTP_HOST")
	setInt(&cfg.SMTP.Port, "SMTP_PORT")
	setInt(&cfg.SMTP.SSLPort, "SMTP_SSL_PORT")
	setBool(&cfg.SMTP.SSLOnConnect, "SMTP_SSL_ON_CONNECT")
	setBool(&cfg.SMTP.StartTLSEnabled, "SMTP_STARTTLS")
	setBool(&cfg.SMTP.StartTLSRequired, "SMTP_STARTTLS_REQUIRED")
	setBool(&cfg.SMTP.SSLCheckServerIdentity, "SMTP_CHECK_SERVER_IDENTITY")
	setString(&cfg.SMTP.TrustedCAFile, "SMTP_TRUSTED_CA_FILE")
	setString(&cfg.SMTP.Username, "SMTP_USERNAME")
	setString(&cfg.SMTP.Password, "SMTP_PASSWORD")
	setString(&cfg.SMTP.BounceAddress, "SMTP_BOUNCE_ADDRESS")
	setDuration(&cfg.SMTP.ConnectionTimeout, "SMTP_CONNECTION_TIMEOUT")
	setDuration(&cfg.SMTP.SocketTimeout, "SMTP_SOCKET_TIMEOUT")
	setString(&cfg.SMTP.PopBeforeSMTP.Host, "POP_HOST")
	setString(&cfg.SMTP.PopBeforeSMTP.Username, "POP_USERNAME")
	setString(&cfg.SMTP.PopBeforeSMTP.Password, "POP_PASSWORD")

	setString(&cfg.Message.From, "MAIL_FROM")
	setString(&cfg.Message.Charset, "MAIL_CHARSET")

	setString(&cfg.SES.Region, "SES_REGION")
	setString(&cfg.SES.AccessKeyID, "SES_ACCESS_KEY_ID")
	setString(&cfg.SES.SecretAccessKey, "SES_SECRET_ACCESS_KEY")
	setString(&cfg.SES.ConfigurationSet, "SES_CONFIGURATION_SET")

	setString(&cfg.Graph.TenantID, "GRAPH_TENANT_ID")
	setString(&cfg.Graph.ClientID, "GRAPH_CLIENT_ID")
	setString(&cfg.Graph.ClientSecret, "GRAPH_CLIENT_SECRET")
	setString(&cfg.Graph.Sender, "GRAPH_SENDER")
	setBool(&cfg.Graph.SaveToSentItems, "GRAPH_SAVE_TO_SENT_ITEMS")

	setString(&cfg.Resend.APIKey, "RESEND_API_KEY")

	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Invalid numeric and boolean values are ignored, keeping the current value.

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// setDuration accepts Go durations ("30s") or bare milliseconds ("30000").
func setDuration(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		*dst = time.Duration(ms) * time.Millisecond
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}
