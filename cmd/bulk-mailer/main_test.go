package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/shineum/bulk-mailer/internal/config"
	"github.com/shineum/bulk-mailer/internal/smtptest"
)

var mailerEnv = []string{
	"PROVIDER",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_CA_FILE", "SMTP_LOCAL_NAME",
	"MAIL_FROM", "MAIL_SUBJECT", "MAIL_RECIPIENTS", "MAIL_COLUMN", "MAIL_SHEET", "MAIL_BODY", "MAIL_ATTACHMENT",
	"SES_REGION", "SES_ENDPOINT", "GRAPH_TENANT_ID", "GRAPH_CLIENT_ID", "GRAPH_CLIENT_SECRET", "LOG_LEVEL",
}

// inputs writes a recipients CSV, body and attachment into a temp dir.
func inputs(t *testing.T) (recipients, body, attachment string) {
	t.Helper()
	for _, env := range mailerEnv {
		t.Setenv(env, "")
	}

	dir := t.TempDir()
	recipients = filepath.Join(dir, "hr_emails.csv")
	body = filepath.Join(dir, "input.txt")
	attachment = filepath.Join(dir, "RESUME.docx")

	files := map[string]string{
		recipients: "Email\na@x.com\n\nb@x.com\n",
		body:       "Dear hiring manager,\n",
		attachment: "resume bytes",
	}
	for path, content := range files {
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("failed to write %s: %v", path, err)
		}
	}
	return recipients, body, attachment
}

func TestRun_DryRun(t *testing.T) {
	recipients, body, attachment := inputs(t)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), options{
		recipients: recipients,
		body:       body,
		attachment: attachment,
		from:       "me@x.com",
		dryRun:     true,
		noColor:    true,
	}, strings.NewReader(""), &stdout, &stderr)

	if code != 0 {
		t.Fatalf("exit code: got %d, want 0\nstderr: %s", code, stderr.String())
	}
	out := stdout.String()
	for _, want := range []string{
		"To: a@x.com",
		"To: b@x.com",
		"Subject: Applying for the position of QA Engineer",
		"Email sent to a@x.com with attachment 'RESUME.docx'",
		"Email sent to b@x.com with attachment 'RESUME.docx'",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("stdout missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "app password") {
		t.Error("dry run should not prompt for a password")
	}
}

func TestRun_SMTPWithPrompts(t *testing.T) {
	recipients, body, attachment := inputs(t)

	srv, err := smtptest.NewServer(smtptest.Config{Username: "me@x.com", Password: "app-password"})
	if err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	defer srv.Close()

	caFile := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(caFile, srv.CertPEM(), 0o600); err != nil {
		t.Fatalf("failed to write CA file: %v", err)
	}
	t.Setenv("SMTP_HOST", srv.Host())
	t.Setenv("SMTP_PORT", strconv.Itoa(srv.Port()))
	t.Setenv("SMTP_CA_FILE", caFile)

	stdin := strings.NewReader("me@x.com\napp-password\n" + attachment + "\n")
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), options{
		recipients: recipients,
		body:       body,
		noColor:    true,
	}, stdin, &stdout, &stderr)

	if code != 0 {
		t.Fatalf("exit code: got %d, want 0\nstderr: %s", code, stderr.String())
	}

	out := stdout.String()
	for _, want := range []string{
		"Enter the sender's email address: ",
		"Enter the sender's app password: ",
		"Enter the path to the attachment file (RESUME.docx): ",
		"Email sent to a@x.com with attachment 'RESUME.docx'",
		"Email sent to b@x.com with attachment 'RESUME.docx'",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("stdout missing %q:\n%s", want, out)
		}
	}
	if got := len(srv.Messages()); got != 2 {
		t.Errorf("messages: got %d, want 2", got)
	}
}

func TestRun_AbortedRunExitsZero(t *testing.T) {
	_, body, attachment := inputs(t)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), options{
		recipients: filepath.Join(t.TempDir(), "missing.xlsx"),
		body:       body,
		attachment: attachment,
		from:       "me@x.com",
		dryRun:     true,
		noColor:    true,
	}, strings.NewReader(""), &stdout, &stderr)

	if code != 0 {
		t.Fatalf("exit code: got %d, want 0", code)
	}
	if !strings.Contains(stdout.String(), "was not found") {
		t.Errorf("stdout: got %q, want not-found report", stdout.String())
	}
}

func TestRun_StartupFailures(t *testing.T) {
	recipients, body, attachment := inputs(t)

	tests := []struct {
		name  string
		opts  options
		stdin string
	}{
		{
			name:  "invalid sender",
			opts:  options{recipients: recipients, body: body, attachment: attachment, from: "nobody", dryRun: true},
			stdin: "",
		},
		{
			name:  "prompt input ends",
			opts:  options{recipients: recipients, body: body, attachment: attachment},
			stdin: "",
		},
		{
			name:  "missing config file",
			opts:  options{configPath: filepath.Join(t.TempDir(), "missing.yaml")},
			stdin: "",
		},
		{
			name:  "missing env file",
			opts:  options{envFile: filepath.Join(t.TempDir(), "missing.env")},
			stdin: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := run(context.Background(), tt.opts, strings.NewReader(tt.stdin), &stdout, &stderr); code != 1 {
				t.Errorf("exit code: got %d, want 1", code)
			}
		})
	}
}

func TestApplyFlags(t *testing.T) {
	cfg := &config.Config{Provider: config.ProviderSMTP}
	cfg.Mail.Subject = "default subject"

	applyFlags(cfg, options{
		recipients: "list.csv",
		column:     "Address",
		from:       "me@x.com",
		provider:   config.ProviderSES,
		dryRun:     true,
	})

	if cfg.Mail.Recipients != "list.csv" || cfg.Mail.Column != "Address" || cfg.Mail.From != "me@x.com" {
		t.Errorf("mail: got %+v", cfg.Mail)
	}
	if cfg.Mail.Subject != "default subject" {
		t.Errorf("empty flag should keep subject, got %q", cfg.Mail.Subject)
	}
	if cfg.Provider != config.ProviderStdout {
		t.Errorf("dry run should force stdout, got %q", cfg.Provider)
	}
}

func TestSelectProvider_Unknown(t *testing.T) {
	cfg := &config.Config{Provider: "fax"}
	if _, err := selectProvider(cfg, &bytes.Buffer{}); err == nil {
		t.Error("expected error for unknown provider")
	}
}
