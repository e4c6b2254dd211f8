// Package ledger implements the ledger entries domain: the Entry model, the
// Store that persists entries, and the Service that serves cached queries
// and invalidates them after writes.
package ledger
