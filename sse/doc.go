// Package sse streams job transitions to HTTP clients as Server-Sent Events.
//
// A Hub routes event payloads to connected clients by glob pattern over
// client IDs. Client IDs have the form "job:<job-id>:<conn-id>", so every
// watcher of one job matches TopicPattern(jobID). JobSink plugs the hub
// into the job event bus; Stream writes the wire format.
package sse
