// Package cache provides a thread-safe, capacity-bounded LRU cache whose
// entries expire after a per-entry TTL.
//
// PutIfAbsent is an atomic check-and-set: it stores the value only when the key
// is missing or expired, which is what idempotency and deduplication guards
// need. Expired entries are dropped lazily on access and by Prune.
package cache
