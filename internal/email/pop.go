package email

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

// popLogin authenticates against a POP3 server with USER/PASS and quits.
// Some relays only accept SMTP from clients that did this recently.
func popLogin(ctx context.Context, cfg popBeforeSMTP, timeout time.Duration) error {
	if cfg.host == "" {
		return fmt.Errorf("%w: pop host is empty", ErrMissingHostName)
	}

	address := cfg.host
	if _, _, err := net.SplitHostPort(address); err != nil {
		address = net.JoinHostPort(address, strconv.Itoa(DefaultPOPPort))
	}

	d := &net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set deadline: %w", err)
	}

	tp := textproto.NewConn(conn)
	if _, err := popResponse(tp); err != nil {
		return fmt.Errorf("greeting: %w", err)
	}
	if err := popCommand(tp, "USER "+cfg.username); err != nil {
		return fmt.Errorf("USER: %w", err)
	}
	if err := popCommand(tp, "PASS "+cfg.password); err != nil {
		return fmt.Errorf("PASS: %w", err)
	}
	if err := popCommand(tp, "QUIT"); err != nil {
		slog.Debug("pop quit failed", "host", address, "error", err)
	}

	slog.Debug("pop before smtp login succeeded", "host", address, "user", cfg.username)
	return nil
}

func popCommand(tp *textproto.Conn, line string) error {
	if err := tp.PrintfLine("%s", line); err != nil {
		return err
	}
	_, err := popResponse(tp)
	return err
}

// popResponse reads a single-line reply and fails unless it starts with +OK.
func popResponse(tp *textproto.Conn) (string, error) {
	line, err := tp.ReadLine()
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(line, "+OK") {
		return strings.TrimSpace(strings.TrimPrefix(line, "+OK")), nil
	}
	return "", fmt.Errorf("server replied %q", line)
}
