// Package health reports the health of the ledger query service.
//
// Checkers cover the cache backend (ping latency), the circuit breaker
// guarding it, and memory pressure. An unreachable cache is Degraded
// rather than Unhealthy because reads fall through to the store.
//
//	agg := health.NewAggregator(5 * time.Second)
//	agg.Register(health.NewCacheChecker("cache", redisCache, 0))
//	agg.Register(health.NewMemoryChecker(health.MemoryCheckerConfig{}))
//	health.RegisterHandlers(mux, agg)
package health
