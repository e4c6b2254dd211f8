package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/jonwraymond/ledgerops/cache"
)

const (
	collectionName = "lancamentos"
	entityName     = "lancamento"
	balancesName   = "saldos"
)

// AllKey is the cache key of the full entry list: "lancamentos:all".
func AllKey() string {
	k, _ := cache.CollectionKey(collectionName)
	return k
}

// TypeKey is the cache key of the entries of one type:
// "lancamentos:tipo:<type>".
func TypeKey(t EntryType) (string, error) {
	return cache.CollectionKey(collectionName, "tipo", string(t))
}

// EntryKey is the cache key of one entry: "lancamento:<id>".
func EntryKey(id uuid.UUID) string {
	k, _ := cache.EntityKey(entityName, id.String())
	return k
}

// BalancesKey is the cache key of a balances query over a date range.
func BalancesKey(from, to time.Time) (string, error) {
	return cache.QueryKey(balancesName, map[string]any{
		"from": Day(from).Format(time.DateOnly),
		"to":   Day(to).Format(time.DateOnly),
	})
}

// writeKeys lists the keys made stale by writing the given entries.
func writeKeys(entries ...Entry) []string {
	keys := []string{AllKey()}
	for _, e := range entries {
		if k, err := TypeKey(e.Type); err == nil {
			keys = append(keys, k)
		}
		keys = append(keys, EntryKey(e.ID))
	}
	return keys
}
