// Package jobs owns the transcription job: its record and state machine,
// the stores that persist it, the manager behind the API and the runner
// that drives a job through fetch, normalize and transcribe.
//
// A job moves forward only:
//
//	submitted -> fetching -> normalizing -> cache_hit    -> succeeded
//	                                     \-> transcribing -> succeeded
//
// failed and cancelled are reachable from every non-terminal state. The
// worker running a job is the only writer of its record. Cancel raises a
// signal that the worker observes between stages; an in-progress normalize
// or inference call is never interrupted by it.
package jobs
