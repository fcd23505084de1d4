package storage

import (
	"errors"
	"fmt"
)

// Provider names.
const (
	ProviderLocal = "local"
	ProviderS3    = "s3"
)

// Default configuration values.
const (
	DefaultProvider      = ProviderLocal
	DefaultBasePath      = "data/uploads"
	DefaultRegion        = "us-east-1"
	DefaultMaxUploadSize = int64(100 << 20)
)

// Config holds upload storage configuration.
type Config struct {
	Enabled  bool   `mapstructure:"enabled" json:"enabled"`
	Provider string `mapstructure:"provider" json:"provider"`

	// BasePath is the root directory for the local provider.
	BasePath string `mapstructure:"base_path" json:"base_path"`

	Bucket         string `mapstructure:"bucket" json:"bucket"`
	Prefix         string `mapstructure:"prefix" json:"prefix"`
	Region         string `mapstructure:"region" json:"region"`
	Endpoint       string `mapstructure:"endpoint" json:"endpoint"`
	AccessKey      string `mapstructure:"access_key" json:"-"`
	SecretKey      string `mapstructure:"secret_key" json:"-"`
	ForcePathStyle bool   `mapstructure:"force_path_style" json:"force_path_style"`

	// MaxUploadSize caps a single uploaded object in bytes.
	MaxUploadSize int64 `mapstructure:"max_upload_size" json:"max_upload_size"`
}

// ApplyDefaults fills in zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = DefaultProvider
	}
	if c.BasePath == "" {
		c.BasePath = DefaultBasePath
	}
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.MaxUploadSize <= 0 {
		c.MaxUploadSize = DefaultMaxUploadSize
	}
}

// Validate checks that the configuration is usable for the selected provider.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderLocal:
		if c.BasePath == "" {
			return errors.New("storage: base_path is required for local provider")
		}
	case ProviderS3:
		var errs []error
		if c.Bucket == "" {
			errs = append(errs, errors.New("bucket is required"))
		}
		if c.Region == "" {
			errs = append(errs, errors.New("region is required"))
		}
		if (c.AccessKey == "") != (c.SecretKey == "") {
			errs = append(errs, errors.New("access_key and secret_key must be set together"))
		}
		if len(errs) > 0 {
			return fmt.Errorf("storage: invalid s3 config: %w", errors.Join(errs...))
		}
	default:
		return fmt.Errorf("storage: unsupported provider %q", c.Provider)
	}
	return nil
}
