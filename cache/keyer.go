package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Key naming convention:
//
//	<plural>:all              whole collection
//	<plural>:<field>:<value>  filtered collection
//	<plural>:q:<hash>         arbitrary parameter set
//	<singular>:<id>           single entity
//
// Segments must be non-empty and must not contain ':' or whitespace, so two
// different queries can never produce the same key.

// CollectionKey builds the key of a whole or filtered collection.
// CollectionKey("lancamentos") == "lancamentos:all";
// CollectionKey("lancamentos", "tipo", "credito") == "lancamentos:tipo:credito".
func CollectionKey(plural string, scope ...string) (string, error) {
	if err := validateSegment(plural); err != nil {
		return "", err
	}
	if len(scope) == 0 {
		return plural + ":all", nil
	}
	if len(scope)%2 != 0 {
		return "", fmt.Errorf("%w: scope must be field/value pairs", ErrInvalidKey)
	}
	for _, s := range scope {
		if err := validateSegment(s); err != nil {
			return "", err
		}
	}
	return plural + ":" + strings.Join(scope, ":"), nil
}

// EntityKey builds the key of a single entity.
func EntityKey(singular, id string) (string, error) {
	if err := validateSegment(singular); err != nil {
		return "", err
	}
	if err := validateSegment(id); err != nil {
		return "", err
	}
	return singular + ":" + id, nil
}

// QueryKey builds the key of a collection query with arbitrary parameters.
// The hash is the first 16 hex characters of SHA-256 over the canonical JSON
// of params, so map ordering does not affect the key.
func QueryKey(plural string, params any) (string, error) {
	if err := validateSegment(plural); err != nil {
		return "", err
	}
	canonical, err := canonicalize(params)
	if err != nil {
		return "", fmt.Errorf("cache: failed to canonicalize params: %w", err)
	}
	hash := sha256.Sum256(canonical)
	return plural + ":q:" + hex.EncodeToString(hash[:8]), nil
}

func validateSegment(s string) error {
	if s == "" || strings.ContainsAny(s, ": \t\n\r") {
		return fmt.Errorf("%w: bad segment %q", ErrInvalidKey, s)
	}
	return nil
}

// canonicalize produces a deterministic JSON representation of the input.
// Maps are sorted by key to ensure consistent ordering.
func canonicalize(v any) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}

	switch val := v.(type) {
	case map[string]any:
		return canonicalizeMap(val)
	case map[string]string:
		m := make(map[string]any, len(val))
		for k, s := range val {
			m[k] = s
		}
		return canonicalizeMap(m)
	case []any:
		return canonicalizeSlice(val)
	default:
		// Structs encode fields in declaration order, which is stable.
		return json.Marshal(v)
	}
}

func canonicalizeMap(m map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := []byte("{")
	for i, k := range keys {
		if i > 0 {
			result = append(result, ',')
		}

		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		result = append(result, keyBytes...)
		result = append(result, ':')

		valBytes, err := canonicalize(m[k])
		if err != nil {
			return nil, err
		}
		result = append(result, valBytes...)
	}
	result = append(result, '}')

	return result, nil
}

func canonicalizeSlice(s []any) ([]byte, error) {
	result := []byte("[")
	for i, v := range s {
		if i > 0 {
			result = append(result, ',')
		}

		valBytes, err := canonicalize(v)
		if err != nil {
			return nil, err
		}
		result = append(result, valBytes...)
	}
	result = append(result, ']')

	return result, nil
}
