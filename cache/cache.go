package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kbukum/mediascribe/errors"
	"github.com/kbukum/mediascribe/logger"
	"github.com/kbukum/mediascribe/media"
	"github.com/kbukum/mediascribe/observability"
	"github.com/kbukum/mediascribe/transcription"
)

// Backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config configures the cache.
type Config struct {
	Backend string        `mapstructure:"backend"`
	Size    int           `mapstructure:"size"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// ApplyDefaults fills in zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Backend == "" {
		c.Backend = BackendMemory
	}
	if c.Size <= 0 {
		c.Size = 1024
	}
	if c.TTL == 0 {
		c.TTL = 7 * 24 * time.Hour
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendRedis:
		return nil
	default:
		return fmt.Errorf("cache: unsupported backend %q", c.Backend)
	}
}

// Key identifies a transcript: the same audio under another model or
// language is a different result.
type Key struct {
	Fingerprint media.Fingerprint
	Model       string
	Language    string
}

func (k Key) String() string {
	lang := k.Language
	if lang == "" {
		lang = "auto"
	}
	return strings.Join([]string{k.Fingerprint.String(), k.Model, lang}, ":")
}

// Outcome tells a caller how its transcript was obtained.
type Outcome int

const (
	// Hit means the transcript was already stored.
	Hit Outcome = iota
	// Computed means this caller's compute function produced it.
	Computed
	// Shared means another caller's in-flight computation produced it.
	Shared
)

func (o Outcome) String() string {
	switch o {
	case Hit:
		return observability.CacheHit
	case Computed:
		return observability.CacheMiss
	default:
		return observability.CacheShared
	}
}

// ComputeFunc produces a transcript. It receives a context that is not
// cancelled when the calling job is, because other jobs may be waiting on
// the same result. Abandoned on that context reports when none are left.
type ComputeFunc func(ctx context.Context) (*transcription.Transcript, error)

// Cache coordinates lookups and computations over a Store.
type Cache struct {
	store   Store
	group   singleflight.Group
	metrics *observability.Metrics
	log     *logger.Logger

	mu      sync.Mutex
	flights map[string]*flight
}

// flight counts the callers waiting on one key.
type flight struct {
	waiters int
	gone    context.Context
	cancel  context.CancelFunc
}

type flightKey struct{}

// Abandoned returns a context that is done once every caller waiting on the
// computation running under ctx has given up. A computation should not begin
// new work after that; the work it is doing is left to finish. Outside a
// computation the returned context is never done.
func Abandoned(ctx context.Context) context.Context {
	if f, ok := ctx.Value(flightKey{}).(*flight); ok {
		return f.gone
	}
	return context.Background()
}

// New creates a Cache over store.
func New(store Store, metrics *observability.Metrics, log *logger.Logger) *Cache {
	if metrics == nil {
		metrics = observability.NoopMetrics()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Cache{
		store:   store,
		metrics: metrics,
		log:     log.WithComponent("cache"),
		flights: make(map[string]*flight),
	}
}

// Lookup returns the stored transcript for key. Store failures count as a
// miss; the computation path will retry the store.
func (c *Cache) Lookup(ctx context.Context, key Key) (*transcription.Transcript, bool) {
	t, ok, err := c.store.Get(ctx, key.String())
	if err != nil {
		c.log.Warn("cache lookup failed", logger.ErrorFields("get", err))
		return nil, false
	}
	return t, ok
}

// Len returns the number of stored transcripts.
func (c *Cache) Len(ctx context.Context) int {
	n, err := c.store.Len(ctx)
	if err != nil {
		return 0
	}
	return n
}

// GetOrCompute returns the transcript for key, computing it with fn when it
// is neither stored nor being computed. If ctx ends while waiting, ctx.Err()
// is returned and the computation carries on for the other waiters. When the
// last waiter leaves, Abandoned reports it to the computation.
func (c *Cache) GetOrCompute(ctx context.Context, key Key, fn ComputeFunc) (*transcription.Transcript, Outcome, error) {
	if t, ok := c.Lookup(ctx, key); ok {
		c.metrics.RecordCacheLookup(ctx, observability.CacheHit)
		return t, Hit, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, Shared, err
	}

	k := key.String()
	f := c.join(k)
	defer c.leave(k, f)

	detached := context.WithValue(context.WithoutCancel(ctx), flightKey{}, f)
	leader := false
	fromStore := false
	ch := c.group.DoChan(k, func() (any, error) {
		leader = true
		// Another flight for this key may have finished between our miss
		// and this one starting.
		if t, ok := c.Lookup(detached, key); ok {
			fromStore = true
			return t, nil
		}
		return c.compute(detached, k, fn)
	})

	select {
	case res := <-ch:
		outcome := Shared
		switch {
		case leader && fromStore:
			outcome = Hit
		case leader:
			outcome = Computed
		}
		c.metrics.RecordCacheLookup(ctx, outcome.String())
		if res.Err != nil {
			return nil, outcome, res.Err
		}
		return res.Val.(*transcription.Transcript), outcome, nil
	case <-ctx.Done():
		return nil, Shared, ctx.Err()
	}
}

func (c *Cache) join(key string) *flight {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.flights[key]
	if !ok {
		gone, cancel := context.WithCancel(context.Background())
		f = &flight{gone: gone, cancel: cancel}
		c.flights[key] = f
	}
	f.waiters++
	return f
}

func (c *Cache) leave(key string, f *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if c.flights[key] == f {
		delete(c.flights, key)
	}
}

func (c *Cache) compute(ctx context.Context, key string, fn ComputeFunc) (t *transcription.Transcript, err error) {
	defer func() {
		if r := recover(); r != nil {
			t, err = nil, errors.Internal(fmt.Errorf("transcript computation panicked: %v", r))
		}
		outcome := "ok"
		if err != nil {
			outcome = string(errors.CodeOf(err))
		}
		c.metrics.RecordCacheComputation(ctx, outcome)
	}()

	t, err = fn(ctx)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errors.InferenceFailure(fmt.Errorf("computation returned no transcript"))
	}
	if perr := c.store.Put(ctx, key, t); perr != nil {
		c.log.Warn("cache store failed; result returned uncached", logger.ErrorFields("put", perr))
	}
	return t, nil
}
