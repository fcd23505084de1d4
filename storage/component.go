package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/kbukum/mediascribe/component"
	"github.com/kbukum/mediascribe/logger"
)

// healthKey is probed with Stat; a NotFound answer proves the backend responds.
const healthKey = ".health"

// Component wraps Storage with lifecycle management.
type Component struct {
	cfg     Config
	log     *logger.Logger
	storage Storage
}

var _ component.Component = (*Component)(nil)

// NewComponent creates a storage component.
func NewComponent(cfg Config, log *logger.Logger) *Component {
	cfg.ApplyDefaults()
	return &Component{cfg: cfg, log: log.WithComponent("storage")}
}

// Storage returns the backend, or nil before Start or when disabled.
func (c *Component) Storage() Storage { return c.storage }

// Config returns the effective configuration.
func (c *Component) Config() Config { return c.cfg }

func (c *Component) Name() string { return "storage" }

// Open creates the configured backend so dependents can be wired before
// Start. Repeated calls return the same backend.
func (c *Component) Open(ctx context.Context) (Storage, error) {
	if c.storage != nil {
		return c.storage, nil
	}
	s, err := New(ctx, c.cfg, c.log)
	if err != nil {
		return nil, err
	}
	c.storage = s
	return s, nil
}

// Start opens the backend unless it is disabled.
func (c *Component) Start(ctx context.Context) error {
	if !c.cfg.Enabled {
		c.log.Info("storage component is disabled")
		return nil
	}
	if _, err := c.Open(ctx); err != nil {
		return fmt.Errorf("storage start: %w", err)
	}
	return nil
}

// Stop releases the backend. Local and S3 backends hold no resources.
func (c *Component) Stop(_ context.Context) error {
	c.storage = nil
	return nil
}

// Health reports whether the backend answers a metadata probe.
func (c *Component) Health(ctx context.Context) component.Health {
	switch {
	case !c.cfg.Enabled:
		return component.Health{Name: c.Name(), Status: component.StatusHealthy, Message: "disabled"}
	case c.storage == nil:
		return component.Health{Name: c.Name(), Status: component.StatusUnhealthy, Message: "storage not initialized"}
	}
	if _, err := c.storage.Stat(ctx, healthKey); err != nil && !errors.Is(err, ErrNotFound) {
		return component.Health{
			Name:    c.Name(),
			Status:  component.StatusUnhealthy,
			Message: fmt.Sprintf("health probe failed: %v", err),
		}
	}
	return component.Health{Name: c.Name(), Status: component.StatusHealthy}
}

// Describe returns summary info for the startup display.
func (c *Component) Describe() component.Description {
	details := fmt.Sprintf("provider=%s", c.cfg.Provider)
	switch c.cfg.Provider {
	case ProviderS3:
		details += fmt.Sprintf(" bucket=%s", c.cfg.Bucket)
	case ProviderLocal:
		details += fmt.Sprintf(" path=%s", c.cfg.BasePath)
	}
	return component.Description{Name: "Upload Storage", Type: "storage", Details: details}
}
