package jobs

import (
	"fmt"
	"slices"
	"time"

	"github.com/kbukum/mediascribe/errors"
	"github.com/kbukum/mediascribe/transcription"
)

// State is a job's position in the pipeline.
type State string

const (
	StateSubmitted    State = "submitted"
	StateFetching     State = "fetching"
	StateNormalizing  State = "normalizing"
	StateCacheHit     State = "cache_hit"
	StateTranscribing State = "transcribing"
	StateSucceeded    State = "succeeded"
	StateFailed       State = "failed"
	StateCancelled    State = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

func (s State) String() string { return string(s) }

// forward lists the non-failure transitions. Running states may also go
// back to submitted when a restarted service requeues interrupted jobs.
var forward = map[State][]State{
	StateSubmitted:    {StateFetching},
	StateFetching:     {StateNormalizing, StateSubmitted},
	StateNormalizing:  {StateCacheHit, StateTranscribing, StateSubmitted},
	StateCacheHit:     {StateSucceeded, StateSubmitted},
	StateTranscribing: {StateSucceeded, StateSubmitted},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed || to == StateCancelled {
		return true
	}
	return slices.Contains(forward[from], to)
}

// Options select how a job is transcribed.
type Options struct {
	Model    string `json:"model,omitempty"`
	Language string `json:"language,omitempty"`
}

// JobError is the single error carried by a failed or cancelled job.
type JobError struct {
	Code    errors.ErrorCode `json:"code"`
	Kind    errors.Kind      `json:"kind"`
	Message string           `json:"message"`
	Stage   State            `json:"stage,omitempty"`
}

// NewJobError converts err into a JobError raised during stage.
func NewJobError(err error, stage State) *JobError {
	appErr := errors.Wrap(err)
	return &JobError{
		Code:    appErr.Code,
		Kind:    errors.KindOf(appErr.Code),
		Message: appErr.Message,
		Stage:   stage,
	}
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Transition is one entry of a job's history.
type Transition struct {
	Seq  int              `json:"seq"`
	From State            `json:"from,omitempty"`
	To   State            `json:"to"`
	At   time.Time        `json:"at"`
	Code errors.ErrorCode `json:"code,omitempty"`
}

// Job is the persisted job record.
type Job struct {
	ID          string                    `json:"id"`
	Source      string                    `json:"source"`
	Options     Options                   `json:"options"`
	State       State                     `json:"state"`
	SubmittedAt time.Time                 `json:"submitted_at"`
	UpdatedAt   time.Time                 `json:"updated_at"`
	StartedAt   *time.Time                `json:"started_at,omitempty"`
	FinishedAt  *time.Time                `json:"finished_at,omitempty"`
	Fingerprint string                    `json:"fingerprint,omitempty"`
	Transcript  *transcription.Transcript `json:"transcript,omitempty"`
	Error       *JobError                 `json:"error,omitempty"`
	History     []Transition              `json:"history"`

	// CancelRequested is set on snapshots returned while a cancellation is
	// pending; it is not persisted.
	CancelRequested bool `json:"cancel_requested,omitempty"`
}

// NewJob creates a job in the submitted state.
func NewJob(id, source string, opts Options, now time.Time) *Job {
	return &Job{
		ID:          id,
		Source:      source,
		Options:     opts,
		State:       StateSubmitted,
		SubmittedAt: now,
		UpdatedAt:   now,
		History:     []Transition{{Seq: 1, To: StateSubmitted, At: now}},
	}
}

// Apply moves the job to state to and appends the transition to its
// history. jerr is recorded for failed and cancelled.
func (j *Job) Apply(to State, now time.Time, jerr *JobError) (Transition, error) {
	if !CanTransition(j.State, to) {
		return Transition{}, fmt.Errorf("jobs: illegal transition %s -> %s", j.State, to)
	}
	tr := Transition{Seq: len(j.History) + 1, From: j.State, To: to, At: now}
	switch to {
	case StateFetching:
		if j.StartedAt == nil {
			j.StartedAt = &now
		}
	case StateSubmitted:
		j.StartedAt = nil
		j.Fingerprint = ""
	case StateFailed, StateCancelled:
		j.Error = jerr
		if jerr != nil {
			tr.Code = jerr.Code
		}
	}
	if to.Terminal() {
		j.FinishedAt = &now
	}
	j.State = to
	j.UpdatedAt = now
	j.History = append(j.History, tr)
	return tr, nil
}

// Since returns the transitions with a sequence number above seq.
func (j *Job) Since(seq int) []Transition {
	if seq < 0 {
		seq = 0
	}
	if seq >= len(j.History) {
		return []Transition{}
	}
	return slices.Clone(j.History[seq:])
}

// Clone returns a copy that shares only the read-only transcript.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.History = slices.Clone(j.History)
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}
