package sse

import (
	"context"
	"encoding/json"

	"github.com/kbukum/mediascribe/jobs"
)

// JobSink forwards job events to the hub clients watching that job.
type JobSink struct {
	hub *Hub
}

var _ jobs.Sink = (*JobSink)(nil)

// NewJobSink returns a sink broadcasting on hub.
func NewJobSink(hub *Hub) *JobSink { return &JobSink{hub: hub} }

func (s *JobSink) Publish(_ context.Context, ev jobs.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	s.hub.BroadcastToPattern(TopicPattern(ev.JobID), data)
	return nil
}
