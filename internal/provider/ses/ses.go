// Package ses implements a Provider that sends emails via AWS SES v2.
package ses

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/shineum/bulk-mailer/internal/email"
	"github.com/shineum/bulk-mailer/internal/provider"
)

// Config holds the configuration for creating an SES Provider.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // overrides the regional SES endpoint when set
}

// Provider sends emails via the AWS SES v2 API.
type Provider struct {
	client API
}

// API is the subset of the SES v2 client used by Provider.
// Used for testing with mock implementations.
type API interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	GetAccount(ctx context.Context, params *sesv2.GetAccountInput, optFns ...func(*sesv2.Options)) (*sesv2.GetAccountOutput, error)
}

// New creates a new Provider with the given configuration and verifies the
// credentials against the account before returning. Static credentials are
// used when both keys are set; otherwise the default AWS credential chain
// applies. Each message is attempted exactly once.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithRetryMaxAttempts(1),
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return Connect(ctx, client)
}

// Connect checks that client can reach the SES account and returns a
// Provider using it. A rejected or unreachable account fails here, before
// any message is sent.
func Connect(ctx context.Context, client API) (*Provider, error) {
	out, err := client.GetAccount(ctx, &sesv2.GetAccountInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to verify SES account: %w", err)
	}
	if !out.SendingEnabled {
		slog.Warn("SES sending is disabled for this account")
	}
	return &Provider{client: client}, nil
}

// NewWithClient creates a Provider with a custom client without verifying
// the account, used for testing.
func NewWithClient(client API) *Provider {
	return &Provider{client: client}
}

// NewDialer returns a Dialer that builds an SES client for each run.
func NewDialer(cfg Config) provider.Dialer {
	return provider.DialFunc(func(ctx context.Context) (provider.Provider, error) {
		p, err := New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
}

// Send delivers an email message via AWS SES v2.
// Messages with attachments are sent as raw MIME; others use the simple
// content format.
func (p *Provider) Send(ctx context.Context, msg *email.Email) error {
	var input *sesv2.SendEmailInput

	if len(msg.Attachments) > 0 {
		raw, err := msg.Raw()
		if err != nil {
			return fmt.Errorf("failed to build raw message: %w", err)
		}
		input = &sesv2.SendEmailInput{
			FromEmailAddress: aws.String(msg.From),
			Destination:      destination(msg),
			Content: &types.EmailContent{
				Raw: &types.RawMessage{Data: raw},
			},
		}
	} else {
		input = buildSimpleInput(msg)
	}

	out, err := p.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("SES API request failed: %w", err)
	}

	slog.Debug("SES accepted message",
		"to", msg.To,
		"attachments", msg.AttachmentNames(),
		"ses_message_id", aws.ToString(out.MessageId),
	)
	return nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "ses"
}

// Close is a no-op; the SES client holds no session.
func (p *Provider) Close() error {
	return nil
}

func destination(msg *email.Email) *types.Destination {
	return &types.Destination{
		ToAddresses: msg.To,
		CcAddresses: msg.Cc,
	}
}

// buildSimpleInput creates a SES SendEmailInput for emails without attachments.
func buildSimpleInput(msg *email.Email) *sesv2.SendEmailInput {
	body := &types.Body{}

	if msg.HtmlBody != "" {
		body.Html = &types.Content{
			Data:    aws.String(msg.HtmlBody),
			Charset: aws.String("UTF-8"),
		}
	}
	if msg.TextBody != "" {
		body.Text = &types.Content{
			Data:    aws.String(msg.TextBody),
			Charset: aws.String("UTF-8"),
		}
	}

	return &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination:      destination(msg),
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(msg.Subject),
					Charset: aws.String("UTF-8"),
				},
				Body: body,
			},
		},
	}
}
