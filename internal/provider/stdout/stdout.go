// Package stdout implements a Provider that prints emails instead of sending
// them. It backs the --dry-run mode.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/shineum/bulk-mailer/internal/email"
	"github.com/shineum/bulk-mailer/internal/provider"
)

const separator = "========================================\n"

// Provider prints email messages in a human-readable format.
type Provider struct {
	// writer is the output destination, defaulting to os.Stdout.
	writer io.Writer
}

// New creates a new stdout Provider that writes to os.Stdout.
func New() *Provider {
	return &Provider{writer: os.Stdout}
}

// NewWithWriter creates a new stdout Provider that writes to the given writer.
func NewWithWriter(w io.Writer) *Provider {
	return &Provider{writer: w}
}

// NewDialer returns a Dialer whose sessions print to w.
func NewDialer(w io.Writer) provider.Dialer {
	return provider.DialFunc(func(context.Context) (provider.Provider, error) {
		return NewWithWriter(w), nil
	})
}

// Send prints the email message.
func (p *Provider) Send(_ context.Context, msg *email.Email) error {
	var b strings.Builder

	b.WriteString(separator)
	fmt.Fprintf(&b, "From: %s\n", msg.From)
	fmt.Fprintf(&b, "To: %s\n", strings.Join(msg.To, ", "))

	if len(msg.Cc) > 0 {
		fmt.Fprintf(&b, "Cc: %s\n", strings.Join(msg.Cc, ", "))
	}

	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)
	b.WriteString("Body:\n")

	body := msg.TextBody
	if body == "" {
		body = msg.HtmlBody
	}
	b.WriteString(body + "\n")

	if len(msg.Attachments) > 0 {
		attachments := make([]string, 0, len(msg.Attachments))
		for _, att := range msg.Attachments {
			attachments = append(attachments, fmt.Sprintf("%s (%s)", att.Filename, humanize.IBytes(uint64(len(att.Content)))))
		}
		fmt.Fprintf(&b, "Attachments: %s\n", strings.Join(attachments, ", "))
	}

	b.WriteString(separator)

	if _, err := io.WriteString(p.writer, b.String()); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "stdout"
}

// Close is a no-op.
func (p *Provider) Close() error {
	return nil
}
