// Package email defines the message model shared by the dispatcher and every
// delivery provider.
package email

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OctetStream is the content type given to every file attachment.
const OctetStream = "application/octet-stream"

// Email represents one outgoing message with all its components.
type Email struct {
	From        string
	To          []string
	Cc          []string
	Subject     string
	TextBody    string
	HtmlBody    string
	Attachments []Attachment
	MessageID   string
	Date        time.Time
}

// Attachment represents a file attached to an email message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// New builds a plain-text message addressed to a single recipient. The
// attachment slice is shared, not copied, so every message built from the
// same attachment carries the same bytes.
func New(from, to, subject, body string, attachments ...Attachment) *Email {
	return &Email{
		From:        from,
		To:          []string{to},
		Subject:     subject,
		TextBody:    body,
		Attachments: attachments,
		MessageID:   newMessageID(from),
		Date:        time.Now(),
	}
}

// LoadAttachment reads the file at path into memory. The attachment keeps the
// file's base name and is always typed as a generic octet stream.
func LoadAttachment(path string) (Attachment, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Attachment{}, fmt.Errorf("failed to read attachment: %w", err)
	}

	return Attachment{
		Filename:    filepath.Base(path),
		ContentType: OctetStream,
		Content:     content,
	}, nil
}

// AttachmentNames returns the filenames of all attachments in order.
func (e *Email) AttachmentNames() []string {
	names := make([]string, 0, len(e.Attachments))
	for _, att := range e.Attachments {
		names = append(names, att.Filename)
	}
	return names
}

// newMessageID returns an RFC 5322 Message-ID scoped to the sender's domain.
func newMessageID(from string) string {
	domain := "localhost"
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		domain = strings.TrimRight(from[at+1:], ">")
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}
