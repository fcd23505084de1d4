package bootstrap

import (
	"io"
	"os"
	"time"

	"github.com/kbukum/mediascribe/logger"
)

// Option configures the App during creation.
type Option func(*appOptions)

type appOptions struct {
	logger          *logger.Logger
	gracefulTimeout time.Duration
	out             io.Writer
}

func resolveOptions(opts []Option) *appOptions {
	o := &appOptions{gracefulTimeout: 30 * time.Second, out: os.Stdout}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the logger instead of building one from config.
func WithLogger(l *logger.Logger) Option {
	return func(o *appOptions) { o.logger = l }
}

// WithGracefulTimeout bounds shutdown.
func WithGracefulTimeout(d time.Duration) Option {
	return func(o *appOptions) { o.gracefulTimeout = d }
}

// WithSummaryOutput sets where the startup summary is printed; nil disables it.
func WithSummaryOutput(w io.Writer) Option {
	return func(o *appOptions) { o.out = w }
}
