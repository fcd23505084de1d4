// Package provider is a small generic framework for pluggable backends.
//
// A Registry maps backend names to factories and caches the instances it
// builds, so a heavy backend such as a loaded speech model is created once
// and shared. RequestResponse describes a one-call backend; Middleware
// wraps one with logging, metrics or tracing:
//
//	wrapped := provider.Chain(
//	    provider.WithLogging[In, Out](log),
//	    provider.WithMetrics[In, Out](metrics),
//	    provider.WithTracing[In, Out]("mediascribe"),
//	)(backend)
package provider
