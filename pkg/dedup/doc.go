// Package dedup suppresses repeated notifications within a time window.
//
// A Guard remembers idempotency keys for a TTL. Acquire is the atomic
// check-and-set used on the submit path: of several concurrent callers with the
// same key, exactly one gets true. MemoryGuard keeps keys in a bounded
// expiring LRU; RedisGuard uses SET NX PX so the window holds across
// processes.
//
// Windows resolves the TTL for a channel kind and priority.
package dedup
