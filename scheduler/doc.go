// Package scheduler runs job pipelines on a fixed pool of workers.
//
// Jobs wait in an unbounded FIFO queue until a worker picks them up. A worker
// runs one job to completion before taking the next. Compute capacity is
// bounded separately by Slots, which a job holds only while it normalizes or
// transcribes, so workers fetching over the network do not starve compute.
// Depth reports the backlog that Admit and Reserve compare against the
// configured maximum to reject new work with an Overloaded error.
package scheduler
