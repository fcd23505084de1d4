package bootstrap

import (
	"github.com/kbukum/mediascribe/config"
)

// Config is what NewApp needs from a service config. Embedding
// config.ServiceConfig provides GetServiceConfig; the service defines
// ApplyDefaults and Validate to cover its own sections too, as
// cmd/mediascribe does for redis, storage, the scheduler and the rest.
type Config interface {
	GetServiceConfig() *config.ServiceConfig
	ApplyDefaults()
	Validate() error
}
