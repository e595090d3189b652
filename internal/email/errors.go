package email

import "errors"

// Validation failures. They are returned wrapped with call-site context, so
// callers should match them with errors.Is.
var (
	ErrInvalidAddress   = errors.New("invalid email address")
	ErrInvalidHeader    = errors.New("invalid header")
	ErrInvalidPort      = errors.New("invalid port number")
	ErrInvalidCharset   = errors.New("unsupported charset")
	ErrInvalidMultipart = errors.New("invalid multipart body")
	ErrMissingSender    = errors.New("from address required")
	ErrMissingRecipient = errors.New("at least one receiver address required")
	ErrMissingHostName  = errors.New("cannot find valid hostname for mail session")
	ErrAlreadyBuilt     = errors.New("the message has already been built")
)
