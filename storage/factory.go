package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/kbukum/mediascribe/logger"
)

// Factory builds a Storage backend from Config.
type Factory func(ctx context.Context, cfg Config, log *logger.Logger) (Storage, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// RegisterFactory makes a backend available to New. Backend packages call
// it from init, so importing the package is enough to enable the provider.
func RegisterFactory(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// New creates the Storage backend selected by cfg.Provider.
func New(ctx context.Context, cfg Config, log *logger.Logger) (Storage, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	factoriesMu.RLock()
	f, ok := factories[cfg.Provider]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: provider %q not registered", cfg.Provider)
	}

	l := log.WithComponent("storage")
	l.Info("initializing storage", map[string]any{"provider": cfg.Provider})
	return f(ctx, cfg, l)
}
