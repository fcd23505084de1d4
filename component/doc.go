// Package component defines the lifecycle contract shared by the service's
// long-lived parts (HTTP server, redis, kafka, scheduler, job manager) and
// the registry that starts them in order and stops them in reverse.
package component
