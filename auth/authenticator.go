package auth

import (
	"context"
	"net/http"
)

// Authenticator resolves the caller behind a request's credentials.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Errors: rejected credentials are reported with this package's sentinel
//     errors (ErrTokenExpired, ErrInvalidCredentials...). Any other error is
//     an internal fault.
type Authenticator interface {
	// Name identifies the authenticator in logs.
	Name() string

	// Supports reports whether h carries credentials this authenticator reads.
	Supports(h http.Header) bool

	// Authenticate returns the identity named by the credentials in h.
	Authenticate(ctx context.Context, h http.Header) (*Identity, error)
}
