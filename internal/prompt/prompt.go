// Package prompt asks the operator for values that were not configured.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrNoInput is returned when input ends before an answer is given.
var ErrNoInput = errors.New("no input")

// Prompter reads answers line by line. Secrets are read without echo when
// the input is a terminal.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
	fd  int
	tty bool
}

// New creates a Prompter reading from in and writing prompts to out.
func New(in io.Reader, out io.Writer) *Prompter {
	p := &Prompter{in: bufio.NewReader(in), out: out}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.fd = int(f.Fd())
		p.tty = true
	}
	return p
}

// Ask prints label and returns the trimmed answer.
func (p *Prompter) Ask(label string) (string, error) {
	fmt.Fprint(p.out, label)
	return p.readLine()
}

// AskSecret prints label and returns the answer without echoing it on a
// terminal. On other inputs it behaves like Ask.
func (p *Prompter) AskSecret(label string) (string, error) {
	if !p.tty {
		return p.Ask(label)
	}

	fmt.Fprint(p.out, label)
	secret, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	return strings.TrimSpace(string(secret)), nil
}

func (p *Prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return "", ErrNoInput
		}
		return "", fmt.Errorf("failed to read answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}
