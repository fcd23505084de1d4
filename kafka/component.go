package kafka

import (
	"context"
	"fmt"
	"sync"

	"github.com/kbukum/mediascribe/component"
	"github.com/kbukum/mediascribe/logger"
)

// Component owns the event producer and implements component.Component.
type Component struct {
	cfg      Config
	log      *logger.Logger
	producer *Producer
	sink     *EventSink
	mu       sync.Mutex
	running  bool

	// newWriter is replaced in tests.
	newWriter func(Config) (Writer, error)
}

var _ component.Component = (*Component)(nil)

// NewComponent creates a Kafka component for use with the component registry.
func NewComponent(cfg Config, log *logger.Logger) *Component {
	cfg.ApplyDefaults()
	if log == nil {
		log = logger.Nop()
	}
	c := &Component{cfg: cfg, log: log.WithComponent("kafka")}
	c.sink = &EventSink{}
	return c
}

// Sink returns the job event sink. Events published before Start or after
// Stop are dropped with an error.
func (c *Component) Sink() *EventSink { return c.sink }

// Name returns the component name.
func (c *Component) Name() string { return "kafka" }

// Start creates the producer.
func (c *Component) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}
	if err := c.cfg.Validate(); err != nil {
		return fmt.Errorf("kafka config: %w", err)
	}

	var p *Producer
	if c.newWriter != nil {
		w, err := c.newWriter(c.cfg)
		if err != nil {
			return err
		}
		p = newProducer(w, c.cfg, c.log)
	} else {
		var err error
		if p, err = NewProducer(c.cfg, c.log); err != nil {
			return err
		}
	}
	c.producer = p
	c.sink.set(p)
	c.running = true
	c.log.Info("Kafka producer started", logger.Fields("brokers", c.cfg.Brokers, "topic", c.cfg.Topic))
	return nil
}

// Stop flushes and closes the producer.
func (c *Component) Stop(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}
	c.log.Info("Kafka component stopping")
	c.sink.set(nil)
	err := c.producer.Close()
	c.running = false
	return err
}

// Health checks broker connectivity by dialling the first broker.
func (c *Component) Health(ctx context.Context) component.Health {
	c.mu.Lock()
	running := c.running
	cfg := c.cfg
	c.mu.Unlock()

	if !running {
		return component.Health{Name: c.Name(), Status: component.StatusUnhealthy, Message: "kafka not started"}
	}
	if len(cfg.Brokers) == 0 {
		return component.Health{Name: c.Name(), Status: component.StatusUnhealthy, Message: "no brokers configured"}
	}

	dialer, err := CreateDialer(&cfg)
	if err != nil {
		return component.Health{Name: c.Name(), Status: component.StatusUnhealthy, Message: fmt.Sprintf("dialer: %v", err)}
	}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Brokers[0])
	if err != nil {
		return component.Health{Name: c.Name(), Status: component.StatusUnhealthy, Message: fmt.Sprintf("broker unreachable: %v", err)}
	}
	defer conn.Close()

	if _, err := conn.Brokers(); err != nil {
		return component.Health{Name: c.Name(), Status: component.StatusDegraded, Message: fmt.Sprintf("broker metadata: %v", err)}
	}
	return component.Health{Name: c.Name(), Status: component.StatusHealthy}
}

// Describe returns infrastructure summary info for the bootstrap display.
func (c *Component) Describe() component.Description {
	return component.Description{
		Name:    "Kafka",
		Type:    "kafka",
		Details: fmt.Sprintf("brokers=%v topic=%s", c.cfg.Brokers, c.cfg.Topic),
	}
}
