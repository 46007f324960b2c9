// Package dispatch sends one message per recipient over a single delivery
// session.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/shineum/bulk-mailer/internal/email"
	"github.com/shineum/bulk-mailer/internal/loader"
	"github.com/shineum/bulk-mailer/internal/provider"
)

// Run-level failures. A run that fails with one of these sends nothing.
var (
	ErrInput      = errors.New("failed to fetch valid emails or email body")
	ErrAttachment = errors.New("failed to load attachment")
	ErrSession    = errors.New("failed to open delivery session")
)

// Reporter receives the outcome of every recipient and of aborted runs.
type Reporter interface {
	Sent(recipient, filename string)
	Failed(recipient string, err error)
	Aborted(err error)
}

// Job names the inputs of a run. Empty Column and Sheet fall back to the
// loader defaults.
type Job struct {
	RecipientsPath string
	Column         string
	Sheet          string
	BodyPath       string
	AttachmentPath string
	Subject        string
	From           string
}

// Batch is a run with its recipients and body already loaded.
type Batch struct {
	Recipients     []string
	Body           string
	Subject        string
	From           string
	AttachmentPath string
}

// Failure is one recipient whose send failed.
type Failure struct {
	Recipient string
	Err       error
}

// Report summarizes a run that reached the send loop.
type Report struct {
	Attempted int
	Sent      []string
	Failures  []Failure
}

// Dispatcher runs batches against one provider.
type Dispatcher struct {
	dialer   provider.Dialer
	reporter Reporter
}

// New creates a Dispatcher.
func New(dialer provider.Dialer, reporter Reporter) *Dispatcher {
	return &Dispatcher{dialer: dialer, reporter: reporter}
}

// Run loads the recipients and body named by job, then sends the batch.
// Both loaders always run so a single abort can name every bad input.
func (d *Dispatcher) Run(ctx context.Context, job Job) (*Report, error) {
	recipients, recipientsErr := loader.LoadRecipients(job.RecipientsPath,
		loader.WithColumn(job.Column),
		loader.WithSheet(job.Sheet),
	)
	body, bodyErr := loader.LoadBody(job.BodyPath)

	if err := errors.Join(recipientsErr, bodyErr); err != nil {
		return nil, d.abort(fmt.Errorf("%w: %w", ErrInput, err))
	}

	slog.Info("inputs loaded",
		"recipients", len(recipients),
		"recipients_file", job.RecipientsPath,
		"body_file", job.BodyPath,
	)

	return d.Send(ctx, Batch{
		Recipients:     recipients,
		Body:           body,
		Subject:        job.Subject,
		From:           job.From,
		AttachmentPath: job.AttachmentPath,
	})
}

// Send loads the attachment, opens one session and sends one message per
// recipient in order. A failed recipient is reported and the loop moves on.
func (d *Dispatcher) Send(ctx context.Context, batch Batch) (*Report, error) {
	att, err := email.LoadAttachment(batch.AttachmentPath)
	if err != nil {
		return nil, d.abort(fmt.Errorf("%w: %w", ErrAttachment, err))
	}

	session, err := d.dialer.Dial(ctx)
	if err != nil {
		return nil, d.abort(fmt.Errorf("%w: %w", ErrSession, err))
	}
	defer func() {
		if err := session.Close(); err != nil {
			slog.Warn("failed to close delivery session",
				"provider", session.Name(),
				"error", err,
			)
		}
	}()

	slog.Info("sending batch",
		"provider", session.Name(),
		"recipients", len(batch.Recipients),
		"attachment", att.Filename,
		"attachment_size", humanize.Bytes(uint64(len(att.Content))),
	)

	report := &Report{}
	for _, recipient := range batch.Recipients {
		report.Attempted++

		msg := email.New(batch.From, recipient, batch.Subject, batch.Body, att)
		if err := session.Send(ctx, msg); err != nil {
			slog.Warn("failed to send email",
				"provider", session.Name(),
				"recipient", recipient,
				"error", err,
			)
			report.Failures = append(report.Failures, Failure{Recipient: recipient, Err: err})
			d.reporter.Failed(recipient, err)
			continue
		}

		slog.Debug("email sent",
			"provider", session.Name(),
			"recipient", recipient,
			"message_id", msg.MessageID,
		)
		report.Sent = append(report.Sent, recipient)
		d.reporter.Sent(recipient, att.Filename)
	}

	slog.Info("batch finished",
		"attempted", report.Attempted,
		"sent", len(report.Sent),
		"failed", len(report.Failures),
	)
	return report, nil
}

func (d *Dispatcher) abort(err error) error {
	slog.Error("run aborted", "error", err)
	d.reporter.Aborted(err)
	return err
}
