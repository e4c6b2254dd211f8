package auth

import (
	"net"
	"net/http"
	"strings"
)

// PartitionConfig configures partition key derivation.
type PartitionConfig struct {
	// TrustProxy uses the first X-Forwarded-For hop as the client address.
	TrustProxy bool
}

// Partitioner derives the admission partition key of a request.
//
// A request carrying a valid token is partitioned by its subject
// ("sub:<principal>"). Anything else, including an invalid or expired
// token, is partitioned by client address ("ip:<addr>").
type Partitioner struct {
	authn  Authenticator
	config PartitionConfig
}

// NewPartitioner creates a Partitioner. authn may be nil, in which case
// every request is partitioned by client address.
func NewPartitioner(authn Authenticator, config PartitionConfig) *Partitioner {
	return &Partitioner{authn: authn, config: config}
}

// Partition returns the partition key and the identity, if any.
func (p *Partitioner) Partition(r *http.Request) (string, *Identity) {
	if p.authn != nil && p.authn.Supports(r.Header) {
		id, err := p.authn.Authenticate(r.Context(), r.Header)
		if err == nil && id != nil && !id.IsAnonymous() {
			return "sub:" + id.Principal, id
		}
	}
	return "ip:" + p.clientIP(r), nil
}

func (p *Partitioner) clientIP(r *http.Request) string {
	if p.config.TrustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware attaches the partition key and identity to the request
// context. It never rejects a request.
//
// Usage:
//
//	mux.Handle("/api/", partitioner.Middleware(apiHandler))
func (p *Partitioner) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, id := p.Partition(r)
		if id == nil {
			id = AnonymousIdentity()
		}
		ctx := WithPartition(r.Context(), key)
		ctx = WithIdentity(ctx, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
