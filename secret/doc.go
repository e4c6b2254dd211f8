// Package secret resolves secret references in configuration values.
//
// References look like "secretref:<provider>:<ref>", either as a whole
// value or embedded in a longer one:
//
//	redis_url: secretref:env:LEDGER_REDIS_URL
//	jwt_secret: secretref:file:/run/secrets/jwt
//
// Values are expanded with ExpandEnvStrict before references are resolved.
// The built-in providers are "env" and "file"; others can be added to a
// Registry.
package secret
