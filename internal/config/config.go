// Package config provides environment-variable-first configuration loading
// with optional YAML file and .env fallbacks for the bulk mailer.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Provider names.
const (
	ProviderSMTP   = "smtp"
	ProviderSES    = "ses"
	ProviderGraph  = "graph"
	ProviderStdout = "stdout"
)

// Defaults for a run with no configuration at all.
const (
	DefaultRecipients = "hr_emails.xlsx"
	DefaultBody       = "input.txt"
	DefaultSubject    = "Applying for the position of QA Engineer"
	DefaultColumn     = "Email"
	DefaultSMTPHost   = "smtp.gmail.com"
	DefaultSMTPPort   = 587
)

// Config holds the complete application configuration.
type Config struct {
	Provider string        `yaml:"provider" validate:"oneof=smtp ses graph stdout"`
	SMTP     SMTPConfig    `yaml:"smtp" validate:"-"`
	Mail     MailConfig    `yaml:"mail"`
	SES      SESConfig     `yaml:"ses" validate:"-"`
	Graph    GraphConfig   `yaml:"graph" validate:"-"`
	Logging  LoggingConfig `yaml:"logging"`
}

// SMTPConfig holds the relay the SMTP provider submits to.
type SMTPConfig struct {
	Host      string `yaml:"host" validate:"required"`
	Port      int    `yaml:"port" validate:"min=1,max=65535"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password" validate:"required"`
	CAFile    string `yaml:"ca_file"`
	LocalName string `yaml:"local_name"`
}

// MailConfig describes what is sent and to whom.
type MailConfig struct {
	From       string `yaml:"from" validate:"required,email"`
	Subject    string `yaml:"subject" validate:"required"`
	Recipients string `yaml:"recipients" validate:"required"`
	Column     string `yaml:"column" validate:"required"`
	Sheet      string `yaml:"sheet"`
	Body       string `yaml:"body" validate:"required"`
	Attachment string `yaml:"attachment" validate:"required"`
}

// SESConfig holds AWS SES configuration. Empty keys fall back to the
// default AWS credential chain.
type SESConfig struct {
	Region          string `yaml:"region" validate:"required"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Endpoint        string `yaml:"endpoint" validate:"omitempty,url"`
}

// GraphConfig holds Microsoft Graph API configuration.
type GraphConfig struct {
	TenantID     string `yaml:"tenant_id" validate:"required"`
	ClientID     string `yaml:"client_id" validate:"required"`
	ClientSecret string `yaml:"client_secret" validate:"required"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override YAML values
	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadDotEnv copies the variables of a .env file into the process
// environment without overriding variables that are already set. An empty
// path reads ./.env and tolerates its absence; an explicit path must exist.
func LoadDotEnv(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load .env file: %w", err)
		}
		return nil
	}

	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// SMTPUsername returns the login for the relay, defaulting to the sender
// address.
func (c *Config) SMTPUsername() string {
	if c.SMTP.Username != "" {
		return c.SMTP.Username
	}
	return c.Mail.From
}

// NeedsPassword reports whether the selected provider authenticates with
// the SMTP password.
func (c *Config) NeedsPassword() bool {
	return c.Provider == ProviderSMTP
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.Provider = ProviderSMTP
	c.SMTP.Host = DefaultSMTPHost
	c.SMTP.Port = DefaultSMTPPort
	c.Mail.Subject = DefaultSubject
	c.Mail.Recipients = DefaultRecipients
	c.Mail.Column = DefaultColumn
	c.Mail.Body = DefaultBody
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() error {
	if v := os.Getenv("PROVIDER"); v != "" {
		c.Provider = strings.ToLower(v)
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		c.SMTP.Host = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SMTP_PORT %q: %w", v, err)
		}
		c.SMTP.Port = port
	}
	setString(&c.SMTP.Username, "SMTP_USERNAME")
	setString(&c.SMTP.Password, "SMTP_PASSWORD")
	setString(&c.SMTP.CAFile, "SMTP_CA_FILE")
	setString(&c.SMTP.LocalName, "SMTP_LOCAL_NAME")

	setString(&c.Mail.From, "MAIL_FROM")
	setString(&c.Mail.Subject, "MAIL_SUBJECT")
	setString(&c.Mail.Recipients, "MAIL_RECIPIENTS")
	setString(&c.Mail.Column, "MAIL_COLUMN")
	setString(&c.Mail.Sheet, "MAIL_SHEET")
	setString(&c.Mail.Body, "MAIL_BODY")
	setString(&c.Mail.Attachment, "MAIL_ATTACHMENT")

	setString(&c.SES.Region, "SES_REGION")
	setString(&c.SES.AccessKeyID, "SES_ACCESS_KEY_ID")
	setString(&c.SES.SecretAccessKey, "SES_SECRET_ACCESS_KEY")
	setString(&c.SES.Endpoint, "SES_ENDPOINT")

	setString(&c.Graph.TenantID, "GRAPH_TENANT_ID")
	setString(&c.Graph.ClientID, "GRAPH_CLIENT_ID")
	setString(&c.Graph.ClientSecret, "GRAPH_CLIENT_SECRET")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
