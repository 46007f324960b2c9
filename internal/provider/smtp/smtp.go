// Package smtp implements a Provider that submits messages to an SMTP relay
// over a single authenticated STARTTLS session.
package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"

	"github.com/shineum/bulk-mailer/internal/email"
	"github.com/shineum/bulk-mailer/internal/provider"
)

// ErrStartTLSUnsupported is returned when the server does not offer STARTTLS.
// Credentials are never sent over an unencrypted connection.
var ErrStartTLSUnsupported = errors.New("server does not support STARTTLS")

// Config holds the connection settings for an SMTP relay.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string

	// LocalName is sent with EHLO. Empty means net/smtp's default.
	LocalName string

	// TLSConfig is used for the STARTTLS upgrade. When nil the server
	// certificate is verified against the system roots and Host.
	TLSConfig *tls.Config
}

// Dialer opens authenticated sessions to one relay.
type Dialer struct {
	config Config
}

// NewDialer creates a Dialer for the given relay.
func NewDialer(cfg Config) *Dialer {
	return &Dialer{config: cfg}
}

// Dial connects, upgrades with STARTTLS and authenticates. Any failure
// closes the connection before returning.
func (d *Dialer) Dial(ctx context.Context) (provider.Provider, error) {
	addr := net.JoinHostPort(d.config.Host, strconv.Itoa(d.config.Port))

	var nd net.Dialer
	conn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	client, err := smtp.NewClient(conn, d.config.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to start SMTP session with %s: %w", addr, err)
	}

	if err := d.handshake(client); err != nil {
		client.Close()
		return nil, err
	}

	slog.Debug("SMTP session established",
		"addr", addr,
		"username", d.config.Username,
	)

	return &Session{client: client, addr: addr}, nil
}

// handshake runs EHLO, STARTTLS and AUTH on a fresh client.
func (d *Dialer) handshake(client *smtp.Client) error {
	if d.config.LocalName != "" {
		if err := client.Hello(d.config.LocalName); err != nil {
			return fmt.Errorf("EHLO failed: %w", err)
		}
	}

	if ok, _ := client.Extension("STARTTLS"); !ok {
		return ErrStartTLSUnsupported
	}

	tlsConfig := d.config.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	} else {
		tlsConfig = tlsConfig.Clone()
	}
	if tlsConfig.ServerName == "" {
		tlsConfig.ServerName = d.config.Host
	}

	if err := client.StartTLS(tlsConfig); err != nil {
		return fmt.Errorf("STARTTLS failed: %w", err)
	}

	if d.config.Username == "" {
		return nil
	}

	auth := smtp.PlainAuth("", d.config.Username, d.config.Password, d.config.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	return nil
}

// Session is an open, authenticated SMTP connection.
type Session struct {
	client *smtp.Client
	addr   string
}

// Send submits one message. On failure the transaction is reset so the
// session can carry the next message.
func (s *Session) Send(ctx context.Context, msg *email.Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := msg.Raw()
	if err != nil {
		return fmt.Errorf("failed to render message: %w", err)
	}

	if err := s.transact(msg, raw); err != nil {
		if resetErr := s.client.Reset(); resetErr != nil {
			slog.Warn("failed to reset SMTP transaction",
				"addr", s.addr,
				"error", resetErr,
			)
		}
		return err
	}
	return nil
}

func (s *Session) transact(msg *email.Email, raw []byte) error {
	if err := s.client.Mail(msg.From); err != nil {
		return fmt.Errorf("MAIL FROM rejected: %w", err)
	}

	for _, rcpt := range append(append([]string(nil), msg.To...), msg.Cc...) {
		if err := s.client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO <%s> rejected: %w", rcpt, err)
		}
	}

	w, err := s.client.Data()
	if err != nil {
		return fmt.Errorf("DATA rejected: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("message rejected: %w", err)
	}
	return nil
}

// Name returns the provider name.
func (s *Session) Name() string {
	return "smtp"
}

// Close sends QUIT, falling back to closing the connection.
func (s *Session) Close() error {
	if err := s.client.Quit(); err != nil {
		s.client.Close()
		return fmt.Errorf("failed to close SMTP session: %w", err)
	}
	return nil
}
