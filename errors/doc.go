// Package errors provides the service-wide error taxonomy.
//
// Every failure that crosses a package boundary is an *AppError carrying a
// machine-readable code, a retryable flag and the HTTP status the API
// boundary should answer with. Pipeline failures (fetch, normalize,
// inference, stage timeouts, admission and cancellation) have their own
// codes so a failed job always reports exactly one kind.
package errors
