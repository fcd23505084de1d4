// Command mediascribe runs the transcription service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/kbukum/mediascribe/api"
	"github.com/kbukum/mediascribe/bootstrap"
	"github.com/kbukum/mediascribe/cache"
	"github.com/kbukum/mediascribe/config"
	"github.com/kbukum/mediascribe/engine"
	"github.com/kbukum/mediascribe/fetch"
	"github.com/kbukum/mediascribe/httpclient"
	"github.com/kbukum/mediascribe/jobs"
	"github.com/kbukum/mediascribe/kafka"
	"github.com/kbukum/mediascribe/logger"
	"github.com/kbukum/mediascribe/normalize"
	"github.com/kbukum/mediascribe/observability"
	"github.com/kbukum/mediascribe/provider"
	"github.com/kbukum/mediascribe/redis"
	"github.com/kbukum/mediascribe/scheduler"
	"github.com/kbukum/mediascribe/server"
	"github.com/kbukum/mediascribe/sse"
	"github.com/kbukum/mediascribe/storage"
	"github.com/kbukum/mediascribe/transcription"
	"github.com/kbukum/mediascribe/transcription/whisper"
	"github.com/kbukum/mediascribe/transcription/whispercpp"
	"github.com/kbukum/mediascribe/version"

	_ "github.com/kbukum/mediascribe/storage/local"
	_ "github.com/kbukum/mediascribe/storage/s3"
)

const serviceName = "mediascribe"

func main() {
	configFile := flag.String("config", "", "path to config.yml")
	envFile := flag.String("env", "", "path to .env file")
	showVersion := flag.Bool("version", false, "print the build version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get())
		return
	}

	if err := run(context.Background(), *configFile, *envFile); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configFile, envFile string) error {
	var cfg Config
	var opts []config.LoaderOption
	if configFile != "" {
		opts = append(opts, config.WithConfigFile(configFile))
	}
	if envFile != "" {
		opts = append(opts, config.WithEnvFile(envFile))
	}
	if err := config.LoadConfig(serviceName, &cfg, opts...); err != nil {
		return err
	}
	if cfg.Version == "" {
		cfg.Version = version.Get().Short()
	}

	app, err := bootstrap.NewApp(&cfg, bootstrap.WithSummaryOutput(os.Stdout))
	if err != nil {
		return err
	}
	if err := wire(ctx, app); err != nil {
		return err
	}
	return app.Run(ctx)
}

// wire builds every component and registers them in start order.
func wire(ctx context.Context, app *bootstrap.App[*Config]) error {
	cfg := app.Cfg
	log := app.Logger

	telemetry, err := observability.Setup(ctx, cfg.Observability, cfg.Name, cfg.Version, cfg.Environment)
	if err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	app.OnStop(telemetry.Shutdown)
	metrics, err := observability.NewMetrics(observability.Meter(serviceName))
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rc := redis.NewComponent(cfg.Redis, log)
		if cfg.needsRedis() {
			if rdb, err = rc.Open(); err != nil {
				return err
			}
		}
		if err := app.RegisterComponent(rc); err != nil {
			return err
		}
	}

	sc := storage.NewComponent(cfg.Storage, log)
	var uploads storage.Storage
	if cfg.Storage.Enabled {
		if uploads, err = sc.Open(ctx); err != nil {
			return err
		}
	}
	if err := app.RegisterComponent(sc); err != nil {
		return err
	}

	client, err := httpclient.New(httpclient.Config{UserAgent: cfg.Fetch.UserAgent})
	if err != nil {
		return err
	}
	fetchOpts := []fetch.Option{
		fetch.WithHTTP(fetch.NewHTTPDownloader(client)),
		fetch.WithYTDLP(fetch.NewYTDLPDownloader(cfg.Fetch.YTDLPBinary, nil)),
		fetch.WithLogger(log),
	}
	if uploads != nil {
		fetchOpts = append(fetchOpts, fetch.WithUploads(fetch.NewUploadResolver(uploads)))
	}
	fetcher := fetch.New(cfg.Fetch, fetchOpts...)
	normalizer := normalize.New(cfg.Normalize, nil, log)

	adapter, err := newAdapter(cfg.Engine, metrics, log)
	if err != nil {
		return err
	}

	store, results := newStores(cfg, rdb)
	tc := cache.New(results, metrics, log)

	sched := scheduler.New(cfg.Scheduler, scheduler.NewSlots(cfg.Scheduler.Slots, nil), log)
	if err := metrics.ObserveGauges(sched.Depth, sched.Slots().InUse); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	events := sse.NewComponent("/v1/jobs/:id/events", log)
	bus := jobs.NewEventBus(log, sse.NewJobSink(events.Hub()))
	if cfg.Kafka.Enabled {
		kc := kafka.NewComponent(cfg.Kafka, log)
		bus.AddSink(kc.Sink())
		if err := app.RegisterComponent(kc); err != nil {
			return err
		}
	}
	if err := app.RegisterComponent(events); err != nil {
		return err
	}

	manager, err := jobs.NewManager(cfg.Jobs, jobs.Deps{
		Store:        store,
		Scheduler:    sched,
		Fetcher:      fetcher,
		Normalizer:   normalizer,
		Transcriber:  adapter,
		Cache:        tc,
		Bus:          bus,
		Metrics:      metrics,
		Logger:       log,
		Models:       adapter.Models(),
		DefaultModel: adapter.DefaultModel(),
	})
	if err != nil {
		return err
	}
	// The manager recovers interrupted jobs on Start, so the workers must
	// already be running.
	if err := app.RegisterComponent(sched); err != nil {
		return err
	}
	if err := app.RegisterComponent(manager); err != nil {
		return err
	}

	srv := server.New(cfg.Server, log)
	srv.SetMetrics(metrics)
	srv.ApplyMiddleware()
	srv.RegisterHealthEndpoints(cfg.Name, cfg.Version, app.Components.HealthAll)

	handlerOpts := []api.Option{api.WithEventStream(events.Hub()), api.WithLogger(log)}
	if uploads != nil {
		handlerOpts = append(handlerOpts, api.WithUploads(uploads))
	}
	api.NewHandler(manager, api.Config{
		Models:        adapter.Models(),
		DefaultModel:  adapter.DefaultModel(),
		MaxUploadSize: cfg.Storage.MaxUploadSize,
	}, handlerOpts...).Register(srv.Engine())

	app.OnReady(func(context.Context) error {
		log.Info("accepting jobs", logger.Fields(
			"engine", cfg.Engine.Backend,
			"slots", cfg.Scheduler.Slots,
			"max_queue_depth", cfg.Scheduler.MaxQueueDepth,
		))
		return nil
	})
	return app.RegisterComponent(server.NewComponent(srv))
}

// newAdapter loads the configured backend and instruments it.
func newAdapter(cfg engine.Config, metrics *observability.Metrics, log *logger.Logger) (*engine.Adapter, error) {
	reg := transcription.NewRegistry()
	reg.RegisterFactory(whisper.ProviderName, whisper.Factory())
	reg.RegisterFactory(whispercpp.ProviderName, whispercpp.Factory())

	eng, err := reg.Load(cfg.Backend, cfg.BackendConfig())
	if err != nil {
		return nil, fmt.Errorf("engine %s: %w", cfg.Backend, err)
	}
	eng = transcription.Instrument(eng,
		provider.WithLogging[transcription.Request, *transcription.Response](log),
		provider.WithMetrics[transcription.Request, *transcription.Response](metrics),
		provider.WithTracing[transcription.Request, *transcription.Response](serviceName),
	)
	return engine.New(eng, cfg, log), nil
}

// newStores picks the job store and transcript cache backends.
func newStores(cfg *Config, rdb *redis.Client) (jobs.Store, cache.Store) {
	prefix := cfg.Redis.KeyPrefix

	var store jobs.Store = jobs.NewMemoryStore()
	if cfg.Jobs.Store == jobs.StoreRedis {
		store = jobs.NewRedisStore(rdb, prefix)
	}

	var results cache.Store = cache.NewMemoryStore(cfg.Cache.Size, cfg.Cache.TTL)
	if cfg.Cache.Backend == cache.BackendRedis {
		results = cache.NewRedisStore(rdb, prefix, cfg.Cache.TTL)
	}
	return store, results
}
