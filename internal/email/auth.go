package email

import "context"

// Authenticator supplies SMTP AUTH credentials when a session dials.
type Authenticator interface {
	Credentials(ctx context.Context) (username, password string, err error)
}

// PasswordAuthenticator is an Authenticator with fixed credentials.
type PasswordAuthenticator struct {
	Username string
	Password string
}

// NewPasswordAuthenticator creates a PasswordAuthenticator.
func NewPasswordAuthenticator(username, password string) *PasswordAuthenticator {
	return &PasswordAuthenticator{Username: username, Password: password}
}

// Credentials returns the configured username and password.
func (a *PasswordAuthenticator) Credentials(context.Context) (string, string, error) {
	return a.Username, a.Password, nil
}

// AuthenticatorFunc adapts a function to the Authenticator interface.
type AuthenticatorFunc func(ctx context.Context) (string, string, error)

// Credentials calls f.
func (f AuthenticatorFunc) Credentials(ctx context.Context) (string, string, error) {
	return f(ctx)
}
