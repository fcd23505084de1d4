// Package resilience holds the fault-tolerance primitives shared by the
// pipeline and its transports:
//
//   - Retry: bounded exponential backoff (cenkalti/backoff) with a retry predicate
//   - Bulkhead: FIFO counting semaphore, the basis of compute slots
//   - CircuitBreaker: fail fast against an unhealthy engine sidecar
//   - RateLimiter: keyed token buckets for the API boundary
package resilience
