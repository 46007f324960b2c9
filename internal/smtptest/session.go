package smtptest

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"
)

// Session states for the SMTP state machine.
const (
	stateConnected = iota
	stateGreeted
	stateAuthOK
	stateMailFrom
	stateRcptTo
)

// idleTimeout is the maximum time a session can remain idle before being closed.
const idleTimeout = 10 * time.Second

// session is one client connection.
type session struct {
	server    *Server
	conn      net.Conn
	reader    *bufio.Reader
	writer    *bufio.Writer
	state     int
	tlsActive bool

	mailFrom string
	rcptTo   []string
}

func newSession(server *Server, conn net.Conn) *session {
	return &session{
		server: server,
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		state:  stateConnected,
	}
}

// handle runs the command loop until QUIT, EOF or a read error.
func (s *session) handle() {
	defer s.conn.Close()

	s.reply("220 %s ESMTP smtptest", s.server.config.Hostname)

	for {
		if err := s.conn.SetDeadline(time.Now().Add(idleTimeout)); err != nil {
			return
		}

		line, err := s.readLine()
		if err != nil {
			if err != io.EOF {
				slog.Debug("smtptest: connection read error", "error", err)
			}
			return
		}
		if line == "" {
			continue
		}

		verb, arg, _ := strings.Cut(line, " ")
		if s.dispatch(strings.ToUpper(verb), arg) {
			return
		}
	}
}

// dispatch runs one command and reports whether the session is over.
func (s *session) dispatch(verb, arg string) bool {
	switch verb {
	case "EHLO", "HELO":
		s.hello(verb, arg)
	case "STARTTLS":
		return s.startTLS()
	case "AUTH":
		s.authenticate(arg)
	case "MAIL":
		s.mail(arg)
	case "RCPT":
		s.rcpt(arg)
	case "DATA":
		return s.data()
	case "RSET":
		s.reset()
		s.reply("250 OK")
	case "NOOP":
		s.reply("250 OK")
	case "QUIT":
		s.reply("221 Bye")
		return true
	default:
		s.reply("500 Unrecognized command")
	}
	return false
}

func (s *session) hello(verb, arg string) {
	if arg == "" {
		s.reply("501 Syntax: %s hostname", verb)
		return
	}

	s.state = stateGreeted
	s.reset()

	if verb == "HELO" {
		s.reply("250 %s Hello %s", s.server.config.Hostname, arg)
		return
	}

	lines := []string{fmt.Sprintf("%s Hello %s", s.server.config.Hostname, arg)}
	if s.server.tlsConfig != nil && !s.tlsActive {
		lines = append(lines, "STARTTLS")
	}
	if s.server.creds.enabled() {
		lines = append(lines, "AUTH PLAIN LOGIN")
	}
	lines = append(lines, "8BITMIME")
	for i, l := range lines {
		sep := "-"
		if i == len(lines)-1 {
			sep = " "
		}
		s.reply("250%s%s", sep, l)
	}
}

// startTLS upgrades the connection. A failed handshake ends the session.
func (s *session) startTLS() bool {
	if s.server.tlsConfig == nil {
		s.reply("454 TLS not available")
		return false
	}
	if s.tlsActive {
		s.reply("503 TLS already active")
		return false
	}

	s.reply("220 Ready to start TLS")

	tlsConn := tls.Server(s.conn, s.server.tlsConfig)
	if err := tlsConn.Handshake(); err != nil {
		slog.Debug("smtptest: TLS handshake failed", "error", err)
		return true
	}

	s.conn = tlsConn
	s.reader = bufio.NewReader(tlsConn)
	s.writer = bufio.NewWriter(tlsConn)
	s.tlsActive = true
	s.state = stateConnected
	s.reset()
	return false
}

func (s *session) authenticate(arg string) {
	if s.state < stateGreeted {
		s.reply("503 Send EHLO/HELO first")
		return
	}
	if !s.server.creds.enabled() {
		s.reply("503 AUTH not available")
		return
	}
	if s.state >= stateAuthOK {
		s.reply("503 Already authenticated")
		return
	}

	mechanism, initial, _ := strings.Cut(arg, " ")

	var err error
	switch strings.ToUpper(mechanism) {
	case "PLAIN":
		if initial == "" {
			if initial, err = s.challenge(""); err != nil {
				return
			}
		}
		if initial == "*" {
			s.reply("501 Authentication cancelled")
			return
		}
		err = s.server.creds.verifyPlain(initial)
	case "LOGIN":
		var user, pass string
		if user, err = s.challenge("VXNlcm5hbWU6"); err != nil {
			return
		}
		if pass, err = s.challenge("UGFzc3dvcmQ6"); err != nil {
			return
		}
		if user == "*" || pass == "*" {
			s.reply("501 Authentication cancelled")
			return
		}
		err = s.server.creds.verifyLogin(user, pass)
	default:
		s.reply("504 Unrecognized authentication type")
		return
	}

	if err != nil {
		s.server.recordAuthFailure()
		s.reply("535 5.7.8 Authentication credentials invalid")
		return
	}

	s.state = stateAuthOK
	s.reply("235 2.7.0 Authentication successful")
}

// challenge sends a 334 prompt and returns the client's answer line.
func (s *session) challenge(prompt string) (string, error) {
	if prompt == "" {
		s.reply("334 ")
	} else {
		s.reply("334 %s", prompt)
	}
	return s.readLine()
}

func (s *session) mail(arg string) {
	if s.state < stateGreeted {
		s.reply("503 Send EHLO/HELO first")
		return
	}
	if s.server.creds.enabled() && s.state < stateAuthOK {
		s.reply("530 5.7.0 Authentication required")
		return
	}
	if s.state >= stateMailFrom {
		s.reply("503 Nested MAIL command")
		return
	}

	addr, ok := pathArgument(arg, "FROM:")
	if !ok {
		s.reply("501 Syntax: MAIL FROM:<address>")
		return
	}

	s.mailFrom = addr
	s.rcptTo = nil
	s.state = stateMailFrom
	s.reply("250 OK")
}

func (s *session) rcpt(arg string) {
	if s.state < stateMailFrom {
		s.reply("503 Send MAIL FROM first")
		return
	}

	addr, ok := pathArgument(arg, "TO:")
	if !ok || addr == "" {
		s.reply("501 Syntax: RCPT TO:<address>")
		return
	}
	if s.server.rejected[addr] {
		s.reply("550 5.1.1 <%s>: Recipient address rejected", addr)
		return
	}

	s.rcptTo = append(s.rcptTo, addr)
	s.state = stateRcptTo
	s.reply("250 OK")
}

// data reads the message until the lone-dot terminator and records it.
func (s *session) data() bool {
	if s.state < stateRcptTo {
		s.reply("503 Send RCPT TO first")
		return false
	}

	s.reply("354 Start mail input; end with <CRLF>.<CRLF>")

	var buf strings.Builder
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			slog.Debug("smtptest: error reading DATA", "error", err)
			return true
		}

		if strings.TrimRight(line, "\r\n") == "." {
			break
		}
		if strings.HasPrefix(line, ".") {
			line = line[1:]
		}
		buf.WriteString(line)
	}

	raw := []byte(buf.String())
	s.server.record(Message{
		From:   s.mailFrom,
		To:     append([]string(nil), s.rcptTo...),
		Raw:    raw,
		Parsed: parse(raw),
	})

	s.reset()
	s.reply("250 OK message accepted")
	return false
}

// reset clears the mail transaction without touching greeting or auth.
func (s *session) reset() {
	s.mailFrom = ""
	s.rcptTo = nil
	if s.state > stateAuthOK {
		if s.server.creds.enabled() {
			s.state = stateAuthOK
		} else {
			s.state = stateGreeted
		}
	}
}

func (s *session) readLine() (string, error) {
	line, err := s.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (s *session) reply(format string, args ...any) {
	if _, err := fmt.Fprintf(s.writer, format+"\r\n", args...); err != nil {
		slog.Debug("smtptest: failed to write reply", "error", err)
		return
	}
	if err := s.writer.Flush(); err != nil {
		slog.Debug("smtptest: failed to flush reply", "error", err)
	}
}

// pathArgument extracts the address from "FROM:<addr> PARAMS" style
// arguments. The bracketed form and the bare form are both accepted, and
// ESMTP parameters after the path are ignored.
func pathArgument(arg, prefix string) (string, bool) {
	if len(arg) < len(prefix) || !strings.EqualFold(arg[:len(prefix)], prefix) {
		return "", false
	}
	rest := strings.TrimSpace(arg[len(prefix):])

	if strings.HasPrefix(rest, "<") {
		end := strings.Index(rest, ">")
		if end < 0 {
			return "", false
		}
		return rest[1:end], true
	}

	addr, _, _ := strings.Cut(rest, " ")
	return addr, addr != ""
}
