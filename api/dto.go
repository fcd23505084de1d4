package api

import (
	"time"

	"github.com/kbukum/mediascribe/jobs"
	"github.com/kbukum/mediascribe/transcription"
)

// SubmitResponse acknowledges an admitted job.
type SubmitResponse struct {
	JobID string     `json:"job_id"`
	State jobs.State `json:"state"`
}

// JobStatus is the public view of a job.
type JobStatus struct {
	JobID           string                    `json:"job_id"`
	Source          string                    `json:"source"`
	Options         jobs.Options              `json:"options"`
	State           jobs.State                `json:"state"`
	CancelRequested bool                      `json:"cancel_requested"`
	SubmittedAt     time.Time                 `json:"submitted_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
	StartedAt       *time.Time                `json:"started_at,omitempty"`
	FinishedAt      *time.Time                `json:"finished_at,omitempty"`
	Fingerprint     string                    `json:"fingerprint,omitempty"`
	Error           *jobs.JobError            `json:"error,omitempty"`
	Transcript      *transcription.Transcript `json:"transcript,omitempty"`
}

func statusOf(job *jobs.Job, withTranscript bool) JobStatus {
	s := JobStatus{
		JobID:           job.ID,
		Source:          job.Source,
		Options:         job.Options,
		State:           job.State,
		CancelRequested: job.CancelRequested,
		SubmittedAt:     job.SubmittedAt,
		UpdatedAt:       job.UpdatedAt,
		StartedAt:       job.StartedAt,
		FinishedAt:      job.FinishedAt,
		Fingerprint:     job.Fingerprint,
		Error:           job.Error,
	}
	if withTranscript {
		s.Transcript = job.Transcript
	}
	return s
}

// CancelResponse acknowledges a cancellation request.
type CancelResponse struct {
	JobID           string     `json:"job_id"`
	State           jobs.State `json:"state"`
	CancelRequested bool       `json:"cancel_requested"`
}

// UploadResponse names the stored object and the source to submit.
type UploadResponse struct {
	Source   string `json:"source"`
	Key      string `json:"key"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// ModelsResponse lists the accepted models.
type ModelsResponse struct {
	Models  []string `json:"models"`
	Default string   `json:"default,omitempty"`
}

// eventOf renders a recorded transition the way the event bus does.
func eventOf(job *jobs.Job, tr jobs.Transition) jobs.Event {
	ev := jobs.Event{JobID: job.ID, Seq: tr.Seq, From: tr.From, To: tr.To, At: tr.At}
	if tr.To == jobs.StateFailed || tr.To == jobs.StateCancelled {
		ev.Error = job.Error
	}
	return ev
}
