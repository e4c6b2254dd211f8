// Package cache provides the cache-aside layer of the ledger service.
//
// Backends (memory, Redis, ristretto, tiered, breaker-guarded) implement the
// Cache interface. The Aside engine reads through a backend, computes on a
// miss and writes results back; GetOrSet is its typed entry point.
// Invalidator removes stale keys after writes, and the key helpers build
// collision-free keys for collections, entities and parameterized queries.
package cache
