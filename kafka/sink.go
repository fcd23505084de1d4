package kafka

import (
	"context"
	"fmt"
	"sync"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/kbukum/mediascribe/jobs"
)

// HeaderEventType names the message header carrying "job.<state>".
const HeaderEventType = "event-type"

// EventSink forwards job events to Kafka. Messages are keyed by job id so
// the events of one job keep their order.
type EventSink struct {
	mu sync.RWMutex
	p  *Producer
}

var _ jobs.Sink = (*EventSink)(nil)

// NewEventSink creates a sink writing through p.
func NewEventSink(p *Producer) *EventSink { return &EventSink{p: p} }

func (s *EventSink) set(p *Producer) {
	s.mu.Lock()
	s.p = p
	s.mu.Unlock()
}

// Publish implements jobs.Sink.
func (s *EventSink) Publish(ctx context.Context, ev jobs.Event) error {
	s.mu.RLock()
	p := s.p
	s.mu.RUnlock()
	if p == nil {
		return fmt.Errorf("kafka producer not running")
	}
	return p.PublishJSON(ctx, ev.JobID, ev, kafkago.Header{
		Key:   HeaderEventType,
		Value: []byte("job." + string(ev.To)),
	})
}
