// Package parser decodes RFC 5322 messages back into email.Email values.
//
// It understands what email.Email.Raw produces (single text parts and
// multipart/mixed with base64 attachments) plus nested multiparts, which is
// enough to inspect messages captured on the wire.
package parser

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"

	"github.com/shineum/bulk-mailer/internal/email"
)

var wordDecoder = new(mime.WordDecoder)

// Parse parses a raw message into an Email.
func Parse(raw []byte) (*email.Email, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	result := &email.Email{
		From:      msg.Header.Get("From"),
		To:        parseAddressList(msg.Header.Get("To")),
		Cc:        parseAddressList(msg.Header.Get("Cc")),
		Subject:   decodeHeader(msg.Header.Get("Subject")),
		MessageID: msg.Header.Get("Message-Id"),
	}
	if date, err := msg.Header.Date(); err == nil {
		result.Date = date
	}

	header := textproto.MIMEHeader(msg.Header)
	if err := parseEntity(header, msg.Body, result); err != nil {
		return nil, err
	}
	return result, nil
}

// parseEntity decodes one MIME entity into result. Multipart entities are
// walked recursively.
func parseEntity(header textproto.MIMEHeader, body io.Reader, result *email.Email) error {
	contentType := header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		slog.Warn("failed to parse content type, treating as plain text",
			"content_type", contentType,
			"error", err,
		)
		mediaType, params = "text/plain", nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return fmt.Errorf("multipart entity missing boundary")
		}
		reader := multipart.NewReader(body, boundary)
		for {
			part, err := reader.NextRawPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to read next part: %w", err)
			}
			if err := parseEntity(part.Header, part, result); err != nil {
				return err
			}
		}
	}

	content, err := decodeContent(header.Get("Content-Transfer-Encoding"), body)
	if err != nil {
		return err
	}

	if filename := attachmentName(header, params); filename != "" {
		result.Attachments = append(result.Attachments, email.Attachment{
			Filename:    filename,
			ContentType: mediaType,
			Content:     content,
		})
		return nil
	}

	switch mediaType {
	case "text/html":
		if result.HtmlBody == "" {
			result.HtmlBody = string(content)
		}
	case "text/plain":
		if result.TextBody == "" {
			result.TextBody = string(content)
		}
	default:
		slog.Warn("unrecognized MIME part, skipping", "content_type", mediaType)
	}
	return nil
}

// decodeContent reads body and reverses its Content-Transfer-Encoding.
func decodeContent(encoding string, body io.Reader) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		raw, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("failed to read part: %w", err)
		}
		cleaned := strings.NewReplacer("\r", "", "\n", "").Replace(string(raw))
		decoded, err := base64.StdEncoding.DecodeString(cleaned)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 content: %w", err)
		}
		return decoded, nil
	case "quoted-printable":
		decoded, err := io.ReadAll(quotedprintable.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to decode quoted-printable content: %w", err)
		}
		return decoded, nil
	default:
		raw, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("failed to read part: %w", err)
		}
		return raw, nil
	}
}

// attachmentName returns the filename of an attachment entity, or "" when
// the entity is inline body text.
func attachmentName(header textproto.MIMEHeader, params map[string]string) string {
	disposition, dispParams, err := mime.ParseMediaType(header.Get("Content-Disposition"))
	if err == nil && disposition == "attachment" {
		if name := dispParams["filename"]; name != "" {
			return name
		}
		if name := params["name"]; name != "" {
			return name
		}
		return "attachment"
	}
	return params["name"]
}

func decodeHeader(value string) string {
	decoded, err := wordDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

// parseAddressList splits a comma-separated address list into bare addresses.
func parseAddressList(raw string) []string {
	if raw == "" {
		return nil
	}

	addresses, err := mail.ParseAddressList(raw)
	if err != nil {
		var result []string
		for _, p := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}

	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		result = append(result, addr.Address)
	}
	return result
}
