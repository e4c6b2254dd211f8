package secret

import "errors"

// Sentinel errors for secret resolution.
var (
	ErrProviderNotFound = errors.New("secret: provider not registered")
	ErrEmptySecret      = errors.New("secret: provider returned empty value")
	ErrSecretNotFound   = errors.New("secret: not found")
	ErrMissingEnv       = errors.New("secret: missing environment variables")
)
