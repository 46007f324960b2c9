// Package provider defines the interface for email delivery backends.
package provider

import (
	"context"

	"github.com/shineum/bulk-mailer/internal/email"
)

// Provider is an open delivery session. A Provider is obtained from a Dialer
// once per run, used for every message of the run, then closed.
type Provider interface {
	// Send delivers one email message through this session.
	// A failed Send leaves the session usable for the next message.
	Send(ctx context.Context, msg *email.Email) error

	// Name returns the human-readable name of this provider.
	Name() string

	// Close ends the session and releases its resources.
	Close() error
}

// Dialer establishes an authenticated delivery session.
type Dialer interface {
	Dial(ctx context.Context) (Provider, error)
}

// DialFunc adapts an ordinary function to the Dialer interface.
type DialFunc func(ctx context.Context) (Provider, error)

// Dial calls f(ctx).
func (f DialFunc) Dial(ctx context.Context) (Provider, error) {
	return f(ctx)
}
