package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EntryType is the direction of a ledger entry.
type EntryType string

const (
	Credit EntryType = "credito"
	Debit  EntryType = "debito"
)

// ParseEntryType parses a type name, case-insensitively. "credit" and
// "debit" are accepted as aliases.
func ParseEntryType(s string) (EntryType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "credito", "credit":
		return Credit, nil
	case "debito", "debit":
		return Debit, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
	}
}

// Valid reports whether t is a known type.
func (t EntryType) Valid() bool {
	return t == Credit || t == Debit
}

// Entry is a single ledger movement. Amount is in cents and always positive;
// Type carries the sign.
type Entry struct {
	ID          uuid.UUID `json:"id" msgpack:"id" cbor:"id"`
	Date        time.Time `json:"date" msgpack:"date" cbor:"date"`
	Amount      int64     `json:"amount" msgpack:"amount" cbor:"amount"`
	Description string    `json:"description" msgpack:"description" cbor:"description"`
	Type        EntryType `json:"type" msgpack:"type" cbor:"type"`
}

// Signed returns the amount with the sign implied by the type.
func (e Entry) Signed() int64 {
	if e.Type == Debit {
		return -e.Amount
	}
	return e.Amount
}

// Validate checks the fields a caller supplies.
func (e Entry) Validate() error {
	switch {
	case !e.Type.Valid():
		return fmt.Errorf("%w: %q", ErrInvalidType, e.Type)
	case e.Amount <= 0:
		return fmt.Errorf("%w: amount must be positive", ErrInvalidEntry)
	case e.Date.IsZero():
		return fmt.Errorf("%w: date is required", ErrInvalidEntry)
	case strings.TrimSpace(e.Description) == "":
		return fmt.Errorf("%w: description is required", ErrInvalidEntry)
	case len(e.Description) > 255:
		return fmt.Errorf("%w: description exceeds 255 bytes", ErrInvalidEntry)
	}
	return nil
}

// DailyBalance aggregates the entries of one calendar day (UTC).
type DailyBalance struct {
	Date    time.Time `json:"date" msgpack:"date" cbor:"date"`
	Credits int64     `json:"credits" msgpack:"credits" cbor:"credits"`
	Debits  int64     `json:"debits" msgpack:"debits" cbor:"debits"`
	Net     int64     `json:"net" msgpack:"net" cbor:"net"`
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
