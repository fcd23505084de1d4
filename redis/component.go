package redis

import (
	"context"
	"fmt"

	"github.com/kbukum/mediascribe/component"
	"github.com/kbukum/mediascribe/logger"
)

// Component wraps Client and implements component.Component for lifecycle management.
type Component struct {
	client *Client
	cfg    Config
	log    *logger.Logger
}

// NewComponent creates a Redis component for use with the component registry.
func NewComponent(cfg Config, log *logger.Logger) *Component {
	return &Component{
		cfg: cfg,
		log: log.WithComponent("redis"),
	}
}

// Client returns the underlying *Client, or nil if not started.
func (c *Component) Client() *Client {
	return c.client
}

// ensure Component satisfies component.Component
var _ component.Component = (*Component)(nil)

// Name returns the component name.
func (c *Component) Name() string { return "redis" }

// Enabled reports whether redis is configured on.
func (c *Component) Enabled() bool { return c.cfg.Enabled }

// KeyPrefix returns the configured key namespace.
func (c *Component) KeyPrefix() string {
	cfg := c.cfg
	cfg.ApplyDefaults()
	return cfg.KeyPrefix
}

// Open creates the client without contacting the server so dependents can
// be wired before Start. Repeated calls return the same client.
func (c *Component) Open() (*Client, error) {
	if c.client != nil {
		return c.client, nil
	}
	client, err := New(c.cfg, c.log)
	if err != nil {
		return nil, err
	}
	c.client = client
	return client, nil
}

// Start opens the client and verifies connectivity. A disabled component
// starts as a no-op.
func (c *Component) Start(ctx context.Context) error {
	if !c.cfg.Enabled {
		c.log.Info("redis component is disabled")
		return nil
	}
	client, err := c.Open()
	if err != nil {
		return fmt.Errorf("redis start: %w", err)
	}

	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("redis start ping: %w", err)
	}

	c.log.Info("redis component started")
	return nil
}

// Stop gracefully closes the Redis connection.
func (c *Component) Stop(_ context.Context) error {
	if c.client == nil {
		return nil
	}
	c.log.Info("redis component stopping")
	err := c.client.Close()
	c.client = nil
	return err
}

// Health returns the current health status of the Redis connection.
func (c *Component) Health(ctx context.Context) component.Health {
	if !c.cfg.Enabled {
		return component.Health{Name: c.Name(), Status: component.StatusHealthy, Message: "disabled"}
	}
	if c.client == nil {
		return component.Health{
			Name:    c.Name(),
			Status:  component.StatusUnhealthy,
			Message: "redis not initialized",
		}
	}

	if err := c.client.Ping(ctx); err != nil {
		return component.Health{
			Name:    c.Name(),
			Status:  component.StatusUnhealthy,
			Message: fmt.Sprintf("ping failed: %v", err),
		}
	}

	return component.Health{
		Name:   c.Name(),
		Status: component.StatusHealthy,
	}
}

// Describe returns infrastructure summary info for the bootstrap display.
func (c *Component) Describe() component.Description {
	return component.Description{
		Name:    "Redis",
		Type:    "redis",
		Details: fmt.Sprintf("%s db=%d pool=%d", c.cfg.Addr, c.cfg.DB, c.cfg.PoolSize),
	}
}