// Package graph sends mail through the Microsoft Graph sendMail endpoint
// using OAuth2 client credentials.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/shineum/bulk-mailer/internal/email"
	"github.com/shineum/bulk-mailer/internal/provider"
)

const (
	defaultGraphURL = "https://graph.microsoft.com/v1.0"
	requestTimeout  = 30 * time.Second
)

// Config holds the app registration used for client-credentials auth.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
}

// Provider sends emails via the Microsoft Graph sendMail endpoint. Each
// message is sent as the mailbox named in its From address.
type Provider struct {
	graphURL   string
	httpClient *http.Client
}

// New acquires an access token and returns a ready Provider. Bad
// credentials fail here rather than on the first message.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	return newWithEndpoints(ctx, cfg, defaultGraphURL, tokenURL(cfg.TenantID), nil)
}

// newWithEndpoints creates a Provider against custom endpoints, used for
// testing.
func newWithEndpoints(ctx context.Context, cfg Config, graphURL, tokenEndpoint string, base *http.Client) (*Provider, error) {
	ts := newTokenSource(ctx, cfg, tokenEndpoint, base)
	if _, err := ts.Token(); err != nil {
		return nil, fmt.Errorf("failed to acquire Graph access token: %w", err)
	}

	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}
	client := oauth2.NewClient(ctx, ts)
	client.Timeout = requestTimeout

	return &Provider{
		graphURL:   graphURL,
		httpClient: client,
	}, nil
}

// NewDialer returns a Dialer that authenticates once per run.
func NewDialer(cfg Config) provider.Dialer {
	return provider.DialFunc(func(ctx context.Context) (provider.Provider, error) {
		p, err := New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
}

// Send delivers an email message via the Microsoft Graph API.
func (g *Provider) Send(ctx context.Context, msg *email.Email) error {
	bodyJSON, err := json.Marshal(buildSendMailRequest(msg))
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	endpoint := fmt.Sprintf("%s/users/%s/sendMail", g.graphURL, url.PathEscape(msg.From))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Graph API request failed: %w", err)
	}
	defer resp.Body.Close()

	// sendMail answers 202 Accepted with an empty body.
	if resp.StatusCode == http.StatusAccepted {
		slog.Debug("Graph accepted message", "to", msg.To)
		return nil
	}

	body, _ := io.ReadAll(resp.Body)

	var errResp apiError
	if jsonErr := json.Unmarshal(body, &errResp); jsonErr == nil && errResp.Error.Message != "" {
		return &SendError{StatusCode: resp.StatusCode, Code: errResp.Error.Code, Message: errResp.Error.Message}
	}
	return &SendError{StatusCode: resp.StatusCode, Message: string(body)}
}

// Name returns the provider name.
func (g *Provider) Name() string {
	return "graph"
}

// Close releases idle connections.
func (g *Provider) Close() error {
	g.httpClient.CloseIdleConnections()
	return nil
}

// SendError is a non-202 response from the sendMail endpoint.
type SendError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *SendError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("Graph API error (HTTP %d, %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("Graph API error (HTTP %d): %s", e.StatusCode, e.Message)
}
