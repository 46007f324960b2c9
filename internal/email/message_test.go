package email

import (
	"bytes"
	"encoding/base64"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	t.Parallel()

	att := Attachment{Filename: "resume.docx", ContentType: OctetStream, Content: []byte{0x50, 0x4b}}
	msg := New("me@example.com", "hr@example.com", "Hello", "Body text", att)

	if msg.From != "me@example.com" {
		t.Errorf("From: got %q, want %q", msg.From, "me@example.com")
	}
	if len(msg.To) != 1 || msg.To[0] != "hr@example.com" {
		t.Errorf("To: got %v, want [hr@example.com]", msg.To)
	}
	if msg.Subject != "Hello" {
		t.Errorf("Subject: got %q, want %q", msg.Subject, "Hello")
	}
	if msg.TextBody != "Body text" {
		t.Errorf("TextBody: got %q, want %q", msg.TextBody, "Body text")
	}
	if len(msg.Attachments) != 1 || msg.Attachments[0].Filename != "resume.docx" {
		t.Errorf("Attachments: got %v", msg.AttachmentNames())
	}
	if !strings.HasSuffix(msg.MessageID, "@example.com>") || !strings.HasPrefix(msg.MessageID, "<") {
		t.Errorf("MessageID: got %q, want <...@example.com>", msg.MessageID)
	}
	if msg.Date.IsZero() {
		t.Error("Date should be set")
	}
}

func TestNew_UniqueMessageIDs(t *testing.T) {
	t.Parallel()

	a := New("me@example.com", "a@x.com", "s", "b")
	b := New("me@example.com", "b@x.com", "s", "b")
	if a.MessageID == b.MessageID {
		t.Errorf("message IDs should differ, both %q", a.MessageID)
	}
}

func TestNewMessageID_NoDomain(t *testing.T) {
	t.Parallel()

	id := newMessageID("not-an-address")
	if !strings.HasSuffix(id, "@localhost>") {
		t.Errorf("got %q, want localhost fallback", id)
	}
}

func TestLoadAttachment(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "RESUME.docx")
	content := []byte{0x00, 0x01, 0xfe, 0xff, 'P', 'K'}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("failed to write attachment: %v", err)
	}

	att, err := LoadAttachment(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if att.Filename != "RESUME.docx" {
		t.Errorf("Filename: got %q, want %q", att.Filename, "RESUME.docx")
	}
	if att.ContentType != OctetStream {
		t.Errorf("ContentType: got %q, want %q", att.ContentType, OctetStream)
	}
	if !bytes.Equal(att.Content, content) {
		t.Errorf("Content: got %v, want %v", att.Content, content)
	}
}

func TestLoadAttachment_Missing(t *testing.T) {
	t.Parallel()

	_, err := LoadAttachment(filepath.Join(t.TempDir(), "missing.pdf"))
	if err == nil {
		t.Fatal("expected error for missing attachment, got nil")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestRaw_PlainText(t *testing.T) {
	t.Parallel()

	msg := &Email{
		From:      "me@example.com",
		To:        []string{"hr@example.com"},
		Subject:   "Plain",
		TextBody:  "Dear team,\nplease find my application.",
		MessageID: "<id-1@example.com>",
		Date:      time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	raw, err := msg.Raw()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	parsed, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("rendered message does not parse: %v", err)
	}
	if got := parsed.Header.Get("Subject"); got != "Plain" {
		t.Errorf("Subject: got %q, want %q", got, "Plain")
	}
	if got := parsed.Header.Get("Message-Id"); got != "<id-1@example.com>" {
		t.Errorf("Message-ID: got %q", got)
	}
	if got := parsed.Header.Get("Date"); got != "Fri, 01 Mar 2024 10:00:00 +0000" {
		t.Errorf("Date: got %q", got)
	}
	if got := parsed.Header.Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Errorf("Content-Type: got %q, want text/plain", got)
	}
}

func TestRaw_WithAttachment(t *testing.T) {
	t.Parallel()

	content := bytes.Repeat([]byte{0xde, 0xad, 0xbe, 0xef}, 100)
	msg := New("me@example.com", "hr@example.com", "Applying for the position of QA Engineer",
		"Hello,\r\nplease see attached.", Attachment{Filename: "RESUME.docx", ContentType: OctetStream, Content: content})

	raw, err := msg.Raw()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	parsed, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("rendered message does not parse: %v", err)
	}
	if got := parsed.Header.Get("To"); got != "hr@example.com" {
		t.Errorf("To: got %q, want %q", got, "hr@example.com")
	}

	mediaType, params, err := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
	if err != nil {
		t.Fatalf("invalid content type: %v", err)
	}
	if mediaType != "multipart/mixed" {
		t.Fatalf("media type: got %q, want multipart/mixed", mediaType)
	}

	reader := multipart.NewReader(parsed.Body, params["boundary"])

	bodyPart, err := reader.NextPart()
	if err != nil {
		t.Fatalf("missing body part: %v", err)
	}
	body, _ := io.ReadAll(bodyPart)
	if string(body) != "Hello,\r\nplease see attached." {
		t.Errorf("body: got %q", string(body))
	}

	attPart, err := reader.NextPart()
	if err != nil {
		t.Fatalf("missing attachment part: %v", err)
	}
	if got := attPart.FileName(); got != "RESUME.docx" {
		t.Errorf("attachment filename: got %q, want %q", got, "RESUME.docx")
	}
	if got := attPart.Header.Get("Content-Type"); !strings.HasPrefix(got, OctetStream) {
		t.Errorf("attachment content type: got %q", got)
	}
	encoded, _ := io.ReadAll(attPart)
	decoded, err := base64.StdEncoding.DecodeString(strings.NewReplacer("\r", "", "\n", "").Replace(string(encoded)))
	if err != nil {
		t.Fatalf("attachment is not base64: %v", err)
	}
	if !bytes.Equal(decoded, content) {
		t.Error("attachment content mismatch after round trip")
	}
}

func TestRaw_NonASCIISubject(t *testing.T) {
	t.Parallel()

	msg := &Email{From: "me@example.com", To: []string{"hr@example.com"}, Subject: "Bewerbung für QA", TextBody: "x"}
	raw, err := msg.Raw()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(raw), "Subject: =?UTF-8?q?") {
		t.Errorf("subject should be Q-encoded, got:\n%s", raw)
	}
}

func TestEncodeBase64WithLineBreaks(t *testing.T) {
	t.Parallel()

	encoded := encodeBase64WithLineBreaks(bytes.Repeat([]byte("a"), 200))
	for i, line := range strings.Split(encoded, "\r\n") {
		if len(line) > 76 {
			t.Errorf("line %d has %d characters, want <= 76", i, len(line))
		}
	}
}
