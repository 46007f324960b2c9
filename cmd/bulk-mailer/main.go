// Package main is the entry point for the bulk mailer.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/shineum/bulk-mailer/internal/config"
	"github.com/shineum/bulk-mailer/internal/dispatch"
	"github.com/shineum/bulk-mailer/internal/prompt"
	"github.com/shineum/bulk-mailer/internal/provider"
	"github.com/shineum/bulk-mailer/internal/provider/graph"
	"github.com/shineum/bulk-mailer/internal/provider/ses"
	"github.com/shineum/bulk-mailer/internal/provider/smtp"
	"github.com/shineum/bulk-mailer/internal/provider/stdout"
	smtptls "github.com/shineum/bulk-mailer/internal/tls"
)

var version = "dev"

// options holds the command-line flags. Empty values leave the
// configuration untouched.
type options struct {
	configPath string
	envFile    string
	recipients string
	column     string
	sheet      string
	body       string
	subject    string
	attachment string
	from       string
	provider   string
	logLevel   string
	dryRun     bool
	noColor    bool
}

func main() {
	app := kingpin.New("bulk-mailer", "Send one email with a shared body and attachment to every address in a spreadsheet.")
	app.Version(version)
	app.HelpFlag.Short('h')

	var opts options
	app.Flag("config", "Path to YAML configuration file.").Short('c').StringVar(&opts.configPath)
	app.Flag("env-file", "Path to a .env file (default ./.env when present).").StringVar(&opts.envFile)
	app.Flag("recipients", "Spreadsheet (.xlsx, .xlsm or .csv) with the address column.").Short('r').StringVar(&opts.recipients)
	app.Flag("column", "Name of the address column.").StringVar(&opts.column)
	app.Flag("sheet", "Worksheet to read (default: first sheet).").StringVar(&opts.sheet)
	app.Flag("body", "Text file with the message body.").Short('b').StringVar(&opts.body)
	app.Flag("subject", "Message subject.").Short('s').StringVar(&opts.subject)
	app.Flag("attachment", "File attached to every message.").Short('a').StringVar(&opts.attachment)
	app.Flag("from", "Sender address.").Short('f').StringVar(&opts.from)
	app.Flag("provider", "Delivery provider.").EnumVar(&opts.provider,
		config.ProviderSMTP, config.ProviderSES, config.ProviderGraph, config.ProviderStdout)
	app.Flag("dry-run", "Print messages instead of sending them.").BoolVar(&opts.dryRun)
	app.Flag("no-color", "Disable colored output.").BoolVar(&opts.noColor)
	app.Flag("log-level", "Log level.").EnumVar(&opts.logLevel, "debug", "info", "warn", "error")

	kingpin.MustParse(app.Parse(os.Args[1:]))

	os.Exit(run(context.Background(), opts, os.Stdin, os.Stdout, os.Stderr))
}

// run executes one mailing and returns the process exit code. Startup
// failures return 1; once the dispatcher runs, the exit code is 0 and the
// outcome is reported on stdout.
func run(ctx context.Context, opts options, stdin io.Reader, stdoutW, stderrW io.Writer) int {
	if err := config.LoadDotEnv(opts.envFile); err != nil {
		slog.Error("failed to load environment file", "error", err)
		return 1
	}

	// Load configuration
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return 1
	}
	applyFlags(cfg, opts)

	// Setup structured logging
	setupLogger(stderrW, cfg.Logging.Level)

	if err := promptMissing(cfg, prompt.New(stdin, stdoutW)); err != nil {
		slog.Error("failed to read required values", "error", err)
		return 1
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		fmt.Fprintln(stderrW, err)
		return 1
	}

	// Select email delivery provider
	dialer, err := selectProvider(cfg, stdoutW)
	if err != nil {
		slog.Error("failed to set up provider", "error", err)
		return 1
	}

	colored := !opts.noColor && !color.NoColor && isTerminal(stdoutW)
	d := dispatch.New(dialer, dispatch.NewConsole(stdoutW, colored))

	slog.Info("starting bulk-mailer",
		"version", version,
		"provider", cfg.Provider,
		"recipients_file", cfg.Mail.Recipients,
		"attachment", cfg.Mail.Attachment,
	)

	// Run-level failures are already reported by the console.
	_, _ = d.Run(ctx, dispatch.Job{
		RecipientsPath: cfg.Mail.Recipients,
		Column:         cfg.Mail.Column,
		Sheet:          cfg.Mail.Sheet,
		BodyPath:       cfg.Mail.Body,
		AttachmentPath: cfg.Mail.Attachment,
		Subject:        cfg.Mail.Subject,
		From:           cfg.Mail.From,
	})
	return 0
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// applyFlags overrides configuration with the flags that were given.
func applyFlags(cfg *config.Config, opts options) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}

	set(&cfg.Mail.Recipients, opts.recipients)
	set(&cfg.Mail.Column, opts.column)
	set(&cfg.Mail.Sheet, opts.sheet)
	set(&cfg.Mail.Body, opts.body)
	set(&cfg.Mail.Subject, opts.subject)
	set(&cfg.Mail.Attachment, opts.attachment)
	set(&cfg.Mail.From, opts.from)
	set(&cfg.Provider, opts.provider)
	set(&cfg.Logging.Level, opts.logLevel)

	if opts.dryRun {
		cfg.Provider = config.ProviderStdout
	}
}

// setupLogger configures the global slog logger with JSON output and the
// specified log level.
func setupLogger(w io.Writer, level string) {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// promptMissing asks for the sender, password and attachment when they are
// not configured.
func promptMissing(cfg *config.Config, p *prompt.Prompter) error {
	var err error

	if cfg.Mail.From == "" {
		if cfg.Mail.From, err = p.Ask("Enter the sender's email address: "); err != nil {
			return err
		}
	}
	if cfg.NeedsPassword() && cfg.SMTP.Password == "" {
		if cfg.SMTP.Password, err = p.AskSecret("Enter the sender's app password: "); err != nil {
			return err
		}
	}
	if cfg.Mail.Attachment == "" {
		if cfg.Mail.Attachment, err = p.Ask("Enter the path to the attachment file (RESUME.docx): "); err != nil {
			return err
		}
	}
	return nil
}

// selectProvider builds the Dialer for the configured delivery backend.
func selectProvider(cfg *config.Config, stdoutW io.Writer) (provider.Dialer, error) {
	switch cfg.Provider {
	case config.ProviderSMTP:
		tlsConfig, err := smtptls.ClientConfig(cfg.SMTP.Host, cfg.SMTP.CAFile)
		if err != nil {
			return nil, err
		}
		slog.Info("using SMTP provider",
			"host", cfg.SMTP.Host,
			"port", cfg.SMTP.Port,
			"username", cfg.SMTPUsername(),
		)
		return smtp.NewDialer(smtp.Config{
			Host:      cfg.SMTP.Host,
			Port:      cfg.SMTP.Port,
			Username:  cfg.SMTPUsername(),
			Password:  cfg.SMTP.Password,
			LocalName: cfg.SMTP.LocalName,
			TLSConfig: tlsConfig,
		}), nil

	case config.ProviderSES:
		slog.Info("using AWS SES provider", "region", cfg.SES.Region)
		return ses.NewDialer(ses.Config{
			Region:          cfg.SES.Region,
			AccessKeyID:     cfg.SES.AccessKeyID,
			SecretAccessKey: cfg.SES.SecretAccessKey,
			Endpoint:        cfg.SES.Endpoint,
		}), nil

	case config.ProviderGraph:
		slog.Info("using Microsoft Graph provider", "tenant_id", cfg.Graph.TenantID)
		return graph.NewDialer(graph.Config{
			TenantID:     cfg.Graph.TenantID,
			ClientID:     cfg.Graph.ClientID,
			ClientSecret: cfg.Graph.ClientSecret,
		}), nil

	case config.ProviderStdout:
		slog.Info("using stdout provider")
		return stdout.NewDialer(stdoutW), nil

	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
