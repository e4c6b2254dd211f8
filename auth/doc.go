// Package auth identifies callers for admission control.
//
// It validates bearer JWTs issued elsewhere and derives a partition key per
// caller: the token subject when a valid token is present, the client
// address otherwise. It does not issue tokens or reject requests.
package auth
