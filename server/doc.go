// Package server provides the HTTP server: a gin engine served through h2c
// so clients may speak cleartext HTTP/2, wrapped as a lifecycle component.
//
// Built-in middleware lives in server/middleware (recovery, request id,
// CORS, body size, request logging, rate limiting, API key and bearer JWT
// auth). Health endpoints live in server/endpoint:
//
//   - /health: component health aggregation
//   - /health/live: liveness probe
//   - /health/ready: readiness probe
//   - /info: build information
package server
