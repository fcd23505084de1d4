// Package observability sets up OpenTelemetry tracing and metrics and holds
// the pipeline's instruments.
//
//	p, err := observability.Setup(ctx, cfg, "mediascribe", version)
//	defer p.Shutdown(ctx)
//
//	metrics, err := observability.NewMetrics(observability.Meter("mediascribe"))
//	metrics.RecordStage(ctx, "fetching", "ok", d)
//
//	ctx, span := observability.StartStage(ctx, jobID, "normalizing")
//	defer span.End()
package observability
