// Package cache is the content-addressed transcript cache.
//
// GetOrCompute runs at most one computation per key at a time; concurrent
// callers for the same key wait for it and share its transcript. A failed
// computation is reported to every waiter and is not stored, so the next
// caller computes again. Stores evict by LRU and TTL; eviction only touches
// stored results, never a computation in flight.
package cache
