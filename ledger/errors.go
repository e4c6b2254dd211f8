package ledger

import "errors"

// Sentinel errors for ledger operations.
var (
	ErrNotFound     = errors.New("ledger: entry not found")
	ErrInvalidEntry = errors.New("ledger: invalid entry")
	ErrInvalidType  = errors.New("ledger: invalid entry type")
	ErrInvalidRange = errors.New("ledger: invalid date range")
	ErrEmptyIDs     = errors.New("ledger: no ids given")
	ErrNilStore     = errors.New("ledger: store is nil")
)
