// Package server exposes the ledger over HTTP.
//
// Routes live under /api/lancamento and answer with a Response envelope.
// Each /api request is partitioned by token subject or client address and
// held at the admission gate; a full queue answers 429 with Retry-After.
// /healthz, /readyz, /health and /metrics bypass the gate.
package server
