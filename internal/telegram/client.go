// Package telegram provides the remote messaging-service client used to
// probe stored account sessions.
//
// The MTProto connection itself is owned by a session gateway: a service
// that loads a session artifact, keeps the encrypted connection open, and
// exposes connect / authorization / sign-in / resolve / disconnect as JSON
// endpoints. GatewayClient speaks that protocol. Errors from the service are
// surfaced as *RPCError and mapped to a closed fault vocabulary by Classify.
package telegram

import (
	"context"
	"time"
)

// DefaultTimeout is the connection timeout used when Options.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// Client is one connection to the remote service for a single session.
// Methods are not safe for concurrent use.
type Client interface {
	// Connect opens the connection for the configured session artifact.
	Connect(ctx context.Context) error

	// IsAuthorized reports whether the session is already signed in.
	IsAuthorized(ctx context.Context) (bool, error)

	// SignIn completes sign-in with the second-factor password.
	SignIn(ctx context.Context, password string) error

	// ResolveEntity resolves a public entity reference such as
	// "https://t.me/telegram" or "@telegram".
	ResolveEntity(ctx context.Context, ref string) error

	// Disconnect releases the connection. Safe to call when not connected.
	Disconnect(ctx context.Context) error
}

// Options configures a Client at acquisition time. The timeout cannot be
// changed afterwards.
type Options struct {
	SessionPath string
	APIID       int
	APIHash     string
	Timeout     time.Duration
	Proxy       *Proxy
}

// Dialer acquires a Client for one session.
type Dialer func(opts Options) (Client, error)
