package main

import (
	"fmt"

	"github.com/kbukum/mediascribe/cache"
	"github.com/kbukum/mediascribe/config"
	"github.com/kbukum/mediascribe/engine"
	"github.com/kbukum/mediascribe/fetch"
	"github.com/kbukum/mediascribe/jobs"
	"github.com/kbukum/mediascribe/kafka"
	"github.com/kbukum/mediascribe/normalize"
	"github.com/kbukum/mediascribe/observability"
	"github.com/kbukum/mediascribe/redis"
	"github.com/kbukum/mediascribe/scheduler"
	"github.com/kbukum/mediascribe/server"
	"github.com/kbukum/mediascribe/storage"
)

// Config is the service configuration loaded from config.yml and APP_*
// environment variables.
type Config struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Server        server.Config        `mapstructure:"server"`
	Redis         redis.Config         `mapstructure:"redis"`
	Storage       storage.Config       `mapstructure:"storage"`
	Fetch         fetch.Config         `mapstructure:"fetch"`
	Normalize     normalize.Config     `mapstructure:"normalize"`
	Engine        engine.Config        `mapstructure:"engine"`
	Cache         cache.Config         `mapstructure:"cache"`
	Scheduler     scheduler.Config     `mapstructure:"scheduler"`
	Jobs          jobs.Config          `mapstructure:"jobs"`
	Observability observability.Config `mapstructure:"observability"`
	Kafka         kafka.Config         `mapstructure:"kafka"`
}

// ApplyDefaults fills every section.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = serviceName
	}
	c.ServiceConfig.ApplyDefaults()
	c.Server.ApplyDefaults()
	c.Redis.ApplyDefaults()
	c.Storage.ApplyDefaults()
	c.Fetch.ApplyDefaults()
	c.Normalize.ApplyDefaults()
	c.Engine.ApplyDefaults()
	c.Cache.ApplyDefaults()
	c.Scheduler.ApplyDefaults()
	c.Jobs.ApplyDefaults()
	c.Observability.ApplyDefaults()
	c.Kafka.ApplyDefaults()
}

// Validate checks every section and the cross-section requirements.
func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	sections := []struct {
		name string
		v    interface{ Validate() error }
	}{
		{"server", &c.Server},
		{"redis", &c.Redis},
		{"storage", &c.Storage},
		{"fetch", &c.Fetch},
		{"normalize", &c.Normalize},
		{"engine", &c.Engine},
		{"cache", &c.Cache},
		{"scheduler", &c.Scheduler},
		{"jobs", &c.Jobs},
		{"observability", &c.Observability},
		{"kafka", &c.Kafka},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("config.%s: %w", s.name, err)
		}
	}
	if !c.Redis.Enabled {
		if c.Jobs.Store == jobs.StoreRedis {
			return fmt.Errorf("config.jobs.store is redis but redis is disabled")
		}
		if c.Cache.Backend == cache.BackendRedis {
			return fmt.Errorf("config.cache.backend is redis but redis is disabled")
		}
	}
	return nil
}

func (c *Config) needsRedis() bool {
	return c.Jobs.Store == jobs.StoreRedis || c.Cache.Backend == cache.BackendRedis
}
