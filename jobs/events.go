package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/kbukum/mediascribe/logger"
)

// Event announces one job transition.
type Event struct {
	JobID string    `json:"job_id"`
	Seq   int       `json:"seq"`
	From  State     `json:"from,omitempty"`
	To    State     `json:"to"`
	At    time.Time `json:"at"`
	Error *JobError `json:"error,omitempty"`
}

// Sink receives every event, for example to forward it to a message broker.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Publish(ctx context.Context, ev Event) error { return f(ctx, ev) }

// EventBus fans job events out to in-process subscribers and sinks.
// Subscribers that fall behind lose events rather than block the pipeline.
type EventBus struct {
	mu    sync.RWMutex
	subs  map[int]chan Event
	next  int
	sinks []Sink
	log   *logger.Logger
}

// NewEventBus creates a bus forwarding to sinks.
func NewEventBus(log *logger.Logger, sinks ...Sink) *EventBus {
	if log == nil {
		log = logger.Nop()
	}
	return &EventBus{subs: make(map[int]chan Event), sinks: sinks, log: log.WithComponent("events")}
}

// AddSink registers another sink.
func (b *EventBus) AddSink(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

// Subscribe returns a channel of future events and a function that ends the
// subscription.
func (b *EventBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers ev. Sink failures are logged and do not stop delivery.
func (b *EventBus) Publish(ctx context.Context, ev Event) {
	b.mu.RLock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	sinks := b.sinks
	b.mu.RUnlock()

	for _, s := range sinks {
		if err := s.Publish(ctx, ev); err != nil {
			b.log.Warn("event sink failed", logger.Fields(
				logger.FieldJobID, ev.JobID,
				logger.FieldState, string(ev.To),
				logger.FieldError, err.Error(),
			))
		}
	}
}

func eventOf(job *Job, tr Transition) Event {
	ev := Event{JobID: job.ID, Seq: tr.Seq, From: tr.From, To: tr.To, At: tr.At}
	if tr.To == StateFailed || tr.To == StateCancelled {
		ev.Error = job.Error
	}
	return ev
}
