// Package smtptest provides an in-process ESMTP server for tests.
//
// The server speaks enough of RFC 5321 for a submission client: EHLO/HELO,
// STARTTLS, AUTH PLAIN and LOGIN, MAIL, RCPT, DATA, RSET, NOOP and QUIT.
// Accepted messages are recorded in memory and can be inspected after the
// client is done.
package smtptest

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/shineum/bulk-mailer/internal/email"
	"github.com/shineum/bulk-mailer/internal/parser"
	smtptls "github.com/shineum/bulk-mailer/internal/tls"
)

// closeTimeout bounds how long Close waits for sessions to finish.
const closeTimeout = 5 * time.Second

// Config configures a Server.
type Config struct {
	// Hostname is announced in the greeting and EHLO reply.
	Hostname string

	// Username and Password enable AUTH. When both are empty MAIL is
	// accepted without authentication.
	Username string
	Password string

	// DisableTLS stops the server from advertising STARTTLS.
	DisableTLS bool

	// RejectRecipients lists addresses refused at RCPT with a 550 reply.
	RejectRecipients []string
}

// Message is one message accepted by the server.
type Message struct {
	From   string
	To     []string
	Raw    []byte
	Parsed *email.Email
}

// Server is a running in-process SMTP server.
type Server struct {
	config    Config
	creds     credentials
	listener  net.Listener
	cert      *tls.Certificate
	tlsConfig *tls.Config
	rejected  map[string]bool

	mu       sync.Mutex
	messages []Message
	sessions int
	authFail int
	conns    map[net.Conn]struct{}
	closed   bool

	wg sync.WaitGroup
}

// NewServer starts a server on a random loopback port.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Hostname == "" {
		cfg.Hostname = "localhost"
	}

	cert, err := smtptls.GenerateSelfSignedCert()
	if err != nil {
		return nil, fmt.Errorf("failed to generate certificate: %w", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	rejected := make(map[string]bool, len(cfg.RejectRecipients))
	for _, addr := range cfg.RejectRecipients {
		rejected[addr] = true
	}

	s := &Server{
		config:   cfg,
		creds:    credentials{username: cfg.Username, password: cfg.Password},
		listener: ln,
		cert:     cert,
		rejected: rejected,
		conns:    make(map[net.Conn]struct{}),
	}
	if !cfg.DisableTLS {
		s.tlsConfig = smtptls.ServerConfig(cert)
	}

	s.wg.Add(1)
	go s.serve()

	return s, nil
}

func (s *Server) serve() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.sessions++
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			newSession(s, conn).handle()

			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
		}()
	}
}

// Close stops accepting connections, drops open sessions and waits for
// their goroutines to return.
func (s *Server) Close() error {
	err := s.listener.Close()

	s.mu.Lock()
	s.closed = true
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(closeTimeout):
		slog.Warn("smtptest: sessions still running after close timeout")
	}
	return err
}

// Addr returns the listener address as host:port.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Host returns the listener IP address.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.Addr())
	return host
}

// Port returns the listener port.
func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.Addr())
	n, _ := strconv.Atoi(port)
	return n
}

// Certificate returns the server's self-signed certificate.
func (s *Server) Certificate() *tls.Certificate {
	return s.cert
}

// CertPEM returns the server certificate in PEM form, for use as a CA file.
func (s *Server) CertPEM() []byte {
	return smtptls.EncodeCertPEM(s.cert)
}

// ClientTLSConfig returns a client configuration that trusts the server.
func (s *Server) ClientTLSConfig() *tls.Config {
	pool := x509.NewCertPool()
	pool.AddCert(s.cert.Leaf)
	return &tls.Config{
		ServerName: s.Host(),
		RootCAs:    pool,
		MinVersion: tls.VersionTLS12,
	}
}

// Messages returns a copy of every accepted message in arrival order.
func (s *Server) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

// Sessions returns the number of connections accepted so far.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions
}

// AuthFailures returns the number of rejected AUTH attempts.
func (s *Server) AuthFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authFail
}

func (s *Server) record(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

func (s *Server) recordAuthFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authFail++
}

// parse decodes a DATA payload. A payload that does not parse is still
// recorded, with a nil Parsed field.
func parse(raw []byte) *email.Email {
	msg, err := parser.Parse(raw)
	if err != nil {
		slog.Debug("smtptest: failed to parse message", "error", err)
		return nil
	}
	return msg
}
