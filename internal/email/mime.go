package email

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"
	"time"
)

// Raw renders the message as an RFC 5322 document. Messages with attachments
// become multipart/mixed; messages without are a single text part.
func (e *Email) Raw() ([]byte, error) {
	var buf bytes.Buffer

	writeHeader(&buf, "From", e.From)
	if len(e.To) > 0 {
		writeHeader(&buf, "To", strings.Join(e.To, ", "))
	}
	if len(e.Cc) > 0 {
		writeHeader(&buf, "Cc", strings.Join(e.Cc, ", "))
	}
	writeHeader(&buf, "Subject", mime.QEncoding.Encode("UTF-8", e.Subject))

	date := e.Date
	if date.IsZero() {
		date = time.Now()
	}
	writeHeader(&buf, "Date", date.Format(time.RFC1123Z))
	if e.MessageID != "" {
		writeHeader(&buf, "Message-ID", e.MessageID)
	}
	writeHeader(&buf, "MIME-Version", "1.0")

	if len(e.Attachments) == 0 {
		writeHeader(&buf, "Content-Type", e.bodyContentType())
		writeHeader(&buf, "Content-Transfer-Encoding", "quoted-printable")
		buf.WriteString("\r\n")
		if err := writeQuotedPrintable(&buf, e.bodyText()); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	writer := multipart.NewWriter(&buf)
	writeHeader(&buf, "Content-Type", mime.FormatMediaType("multipart/mixed", map[string]string{
		"boundary": writer.Boundary(),
	}))
	buf.WriteString("\r\n")

	bodyHeader := make(textproto.MIMEHeader)
	bodyHeader.Set("Content-Type", e.bodyContentType())
	bodyHeader.Set("Content-Transfer-Encoding", "quoted-printable")
	part, err := writer.CreatePart(bodyHeader)
	if err != nil {
		return nil, fmt.Errorf("failed to create body part: %w", err)
	}
	if err := writeQuotedPrintable(part, e.bodyText()); err != nil {
		return nil, err
	}

	for _, att := range e.Attachments {
		contentType := att.ContentType
		if contentType == "" {
			contentType = OctetStream
		}

		attHeader := make(textproto.MIMEHeader)
		attHeader.Set("Content-Type", mime.FormatMediaType(contentType, map[string]string{"name": att.Filename}))
		attHeader.Set("Content-Transfer-Encoding", "base64")
		attHeader.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": att.Filename}))

		part, err := writer.CreatePart(attHeader)
		if err != nil {
			return nil, fmt.Errorf("failed to create attachment part: %w", err)
		}
		if _, err := part.Write([]byte(encodeBase64WithLineBreaks(att.Content))); err != nil {
			return nil, fmt.Errorf("failed to write attachment %q: %w", att.Filename, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *Email) bodyContentType() string {
	if e.HtmlBody != "" {
		return "text/html; charset=UTF-8"
	}
	return "text/plain; charset=UTF-8"
}

func (e *Email) bodyText() string {
	if e.HtmlBody != "" {
		return e.HtmlBody
	}
	return e.TextBody
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	fmt.Fprintf(buf, "%s: %s\r\n", key, value)
}

func writeQuotedPrintable(w io.Writer, text string) error {
	qp := quotedprintable.NewWriter(w)
	if _, err := qp.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to encode body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return fmt.Errorf("failed to encode body: %w", err)
	}
	return nil
}

// encodeBase64WithLineBreaks encodes bytes to base64 with 76-character line breaks per RFC 2045.
func encodeBase64WithLineBreaks(data []byte) string {
	encoded := base64.StdEncoding.EncodeToString(data)
	var lines []string
	for i := 0; i < len(encoded); i += 76 {
		end := min(i+76, len(encoded))
		lines = append(lines, encoded[i:end])
	}
	return strings.Join(lines, "\r\n")
}
