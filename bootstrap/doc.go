// Package bootstrap runs the service lifecycle: start registered components
// in order, run hooks, print a startup summary, wait for SIGINT/SIGTERM and
// stop everything in reverse order within a grace period.
//
//	app, err := bootstrap.NewApp(&cfg)
//	app.RegisterComponent(redisComponent)
//	app.RegisterComponent(serverComponent)
//	app.OnStop(func(ctx context.Context) error { return telemetry.Shutdown(ctx) })
//	err = app.Run(ctx)
package bootstrap
