package main

import (
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/kbukum/mediascribe/cache"
	"github.com/kbukum/mediascribe/jobs"
	"github.com/kbukum/mediascribe/logger"
	"github.com/kbukum/mediascribe/redis"
)

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if cfg.Name != serviceName {
		t.Errorf("expected name %q, got %q", serviceName, cfg.Name)
	}
	if cfg.needsRedis() {
		t.Error("default backends must not need redis")
	}
}

func TestConfigRedisBackendsRequireRedis(t *testing.T) {
	tests := []struct {
		name string
		set  func(*Config)
		want string
	}{
		{"job store", func(c *Config) { c.Jobs.Store = jobs.StoreRedis }, "jobs.store"},
		{"cache", func(c *Config) { c.Cache.Backend = cache.BackendRedis }, "cache.backend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			tt.set(&cfg)
			cfg.ApplyDefaults()
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %s error, got %v", tt.want, err)
			}
		})
	}
}

func TestConfigSectionErrorsArePrefixed(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	cfg.Cache.Backend = "disk"
	err := cfg.Validate()
	if err == nil || !strings.HasPrefix(err.Error(), "config.cache:") {
		t.Fatalf("expected config.cache error, got %v", err)
	}
}

func TestNewStores(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	store, results := newStores(&cfg, nil)
	if _, ok := store.(*jobs.MemoryStore); !ok {
		t.Errorf("expected memory job store, got %T", store)
	}
	if _, ok := results.(*cache.MemoryStore); !ok {
		t.Errorf("expected memory cache store, got %T", results)
	}

	mini := miniredis.RunT(t)
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mini.Addr()
	cfg.Jobs.Store = jobs.StoreRedis
	cfg.Cache.Backend = cache.BackendRedis
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	rdb, err := redis.New(cfg.Redis, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = rdb.Close() })

	store, results = newStores(&cfg, rdb)
	if _, ok := store.(*jobs.RedisStore); !ok {
		t.Errorf("expected redis job store, got %T", store)
	}
	if _, ok := results.(*cache.RedisStore); !ok {
		t.Errorf("expected redis cache store, got %T", results)
	}
}
