package graph

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// graphScope requests the application permissions granted to the app
// registration.
const graphScope = "https://graph.microsoft.com/.default"

// tokenURL returns the Entra ID v2 token endpoint for a tenant.
func tokenURL(tenantID string) string {
	return fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", tenantID)
}

// newTokenSource returns a caching client-credentials token source. Token
// requests use httpClient when it is non-nil.
func newTokenSource(ctx context.Context, cfg Config, endpoint string, httpClient *http.Client) oauth2.TokenSource {
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     endpoint,
		Scopes:       []string{graphScope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	if httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	}
	return cc.TokenSource(ctx)
}
