package auth

import (
	"context"
)

type contextKey int

const (
	identityKey contextKey = iota
	partitionKey
)

// WithIdentity returns a new context with the given identity attached.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext retrieves the identity from the context.
// Returns nil if no identity is present.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

// PrincipalFromContext retrieves the principal from the context.
// Returns empty string if no identity is present.
func PrincipalFromContext(ctx context.Context) string {
	id := IdentityFromContext(ctx)
	if id == nil {
		return ""
	}
	return id.Principal
}

// WithPartition returns a new context carrying the admission partition key.
func WithPartition(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, partitionKey, key)
}

// PartitionFromContext returns the admission partition key, or "".
func PartitionFromContext(ctx context.Context) string {
	k, _ := ctx.Value(partitionKey).(string)
	return k
}
