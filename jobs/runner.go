package jobs

import (
	"context"
	stderrors "errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/mediascribe/cache"
	"github.com/kbukum/mediascribe/engine"
	"github.com/kbukum/mediascribe/errors"
	"github.com/kbukum/mediascribe/logger"
	"github.com/kbukum/mediascribe/media"
	"github.com/kbukum/mediascribe/observability"
	"github.com/kbukum/mediascribe/resilience"
	"github.com/kbukum/mediascribe/transcription"
)

// Fetcher downloads a job's source into its scratch dir.
type Fetcher interface {
	Fetch(ctx context.Context, src media.Source, scratch *media.Scratch, deadline time.Time) (*media.LocalMedia, error)
}

// Normalizer converts fetched media to canonical audio.
type Normalizer interface {
	Normalize(ctx context.Context, in *media.LocalMedia, scratch *media.Scratch) (*media.CanonicalAudio, error)
}

// Transcriber runs inference over canonical audio.
type Transcriber interface {
	Transcribe(ctx context.Context, audio *media.CanonicalAudio, scratch *media.Scratch, opts engine.Options) (*transcription.Transcript, error)
}

// maxForeignAborts bounds how often a job re-joins the cache after a
// computation it was waiting on was abandoned by the job that started it.
const maxForeignAborts = 3

// execution is one worker's run of one job. It is the only writer of the
// job record while it runs.
type execution struct {
	m       *Manager
	job     *Job
	scratch *media.Scratch
	lease   *lease
	log     *logger.Logger
}

// run is the scheduler handler. ctx is cancelled only when the scheduler is
// forced down; the job's own cancellation arrives through its signal.
func (m *Manager) run(ctx context.Context, id string) {
	log := m.log.WithJob(id)
	job, err := m.store.Get(ctx, id)
	if err != nil {
		log.Error("load job", logger.ErrorFields("get", err))
		return
	}
	if job.State != StateSubmitted {
		log.Warn("skipping job that is not queued", logger.Fields(logger.FieldState, string(job.State)))
		return
	}

	sig := m.signals.get(id)
	defer m.signals.forget(id)

	jctx, cancel := context.WithCancel(logger.ContextWithJobID(ctx, id))
	defer cancel()
	stop := context.AfterFunc(sig.ctx, cancel)
	defer stop()

	jctx, span := observability.StartSpan(jctx, observability.SpanJob,
		trace.WithAttributes(attribute.String(observability.AttrJobID, id)))

	x := &execution{m: m, job: job, log: log}
	scratch, err := media.NewScratch(m.cfg.ScratchDir, id)
	if err != nil {
		x.finish(StateFailed, errors.Internal(err))
		observability.EndSpan(span, err, string(errors.ErrCodeInternal))
		return
	}
	x.scratch = scratch
	x.lease = &lease{remove: func() {
		if err := scratch.Remove(); err != nil {
			log.Warn("remove scratch dir", logger.ErrorFields("remove", err))
		}
	}}
	defer x.lease.release()

	t, err := x.execute(jctx)
	switch {
	case err == nil:
		x.succeed(t)
	case ctx.Err() != nil && !m.signals.raised(id):
		// Forced shutdown. The job stays unfinished and is requeued by
		// Recover on the next start.
		log.Warn("job interrupted by shutdown", logger.Fields(logger.FieldState, string(x.job.State)))
	case m.signals.raised(id) && isCancellation(err):
		x.finish(StateCancelled, err)
	default:
		x.finish(StateFailed, err)
	}
	code := ""
	if err != nil {
		code = string(errors.CodeOf(err))
	}
	observability.EndSpan(span, err, code)
}

func isCancellation(err error) bool {
	return errors.HasCode(err, errors.ErrCodeCancelled) || stderrors.Is(err, context.Canceled)
}

func (x *execution) execute(ctx context.Context) (*transcription.Transcript, error) {
	src, err := media.ParseSource(x.job.Source)
	if err != nil {
		return nil, err
	}

	// Fetching holds no slot.
	if err := x.checkpoint(ctx, StateFetching); err != nil {
		return nil, err
	}
	if err := x.advance(ctx, StateFetching); err != nil {
		return nil, err
	}
	var local *media.LocalMedia
	err = x.stage(ctx, StateFetching, func(sctx context.Context) error {
		var ferr error
		local, ferr = x.m.fetcher.Fetch(sctx, src, x.scratch, x.m.now().Add(x.m.cfg.FetchTimeout))
		return ferr
	})
	if err != nil {
		return nil, err
	}
	x.m.metrics.RecordFetchBytes(ctx, local.Size)

	if err := x.checkpoint(ctx, StateNormalizing); err != nil {
		return nil, err
	}
	if err := x.m.slots.Acquire(ctx); err != nil {
		return nil, x.waitError(ctx, err, StateNormalizing)
	}
	var audio *media.CanonicalAudio
	err = x.advance(ctx, StateNormalizing)
	if err == nil {
		err = x.stage(ctx, StateNormalizing, func(sctx context.Context) error {
			nctx, cancel := context.WithTimeout(context.WithoutCancel(sctx), x.m.cfg.NormalizeTimeout)
			defer cancel()
			var nerr error
			audio, nerr = x.m.normalizer.Normalize(nctx, local, x.scratch)
			if nerr != nil && stderrors.Is(nctx.Err(), context.DeadlineExceeded) {
				return errors.StageTimeout(string(StateNormalizing), x.m.cfg.NormalizeTimeout)
			}
			return nerr
		})
	}
	x.m.slots.Release()
	if err != nil {
		return nil, err
	}
	x.job.Fingerprint = audio.Fingerprint.String()

	if err := x.checkpoint(ctx, StateTranscribing); err != nil {
		return nil, err
	}
	key := cache.Key{Fingerprint: audio.Fingerprint, Model: x.model(), Language: x.job.Options.Language}
	if t, ok := x.m.cache.Lookup(ctx, key); ok {
		x.m.metrics.RecordCacheLookup(ctx, observability.CacheHit)
		if err := x.advance(ctx, StateCacheHit); err != nil {
			return nil, err
		}
		return t, x.checkpoint(ctx, StateSucceeded)
	}

	// The lookup may be a network round trip.
	if err := x.checkpoint(ctx, StateTranscribing); err != nil {
		return nil, err
	}
	if err := x.advance(ctx, StateTranscribing); err != nil {
		return nil, err
	}
	var transcript *transcription.Transcript
	err = x.stage(ctx, StateTranscribing, func(sctx context.Context) error {
		for aborts := 0; ; aborts++ {
			t, outcome, cerr := x.m.cache.GetOrCompute(sctx, key, x.compute(audio))
			if cerr == nil {
				transcript = t
				x.log.Debug("transcript obtained", logger.Fields("cache", outcome.String()))
				return nil
			}
			if sctx.Err() != nil {
				return x.waitError(sctx, cerr, StateTranscribing)
			}
			if errors.HasCode(cerr, errors.ErrCodeCancelled) && aborts < maxForeignAborts {
				continue
			}
			return cerr
		}
	})
	if err != nil {
		return nil, err
	}
	return transcript, x.checkpoint(ctx, StateSucceeded)
}

// compute returns the cache computation for this job's audio. It may outlive
// the job, so it pins the scratch dir holding the audio while it runs. It
// does not start once every waiter, this job included, has left.
func (x *execution) compute(audio *media.CanonicalAudio) cache.ComputeFunc {
	opts := engine.Options{Model: x.model(), Language: x.job.Options.Language}
	return func(ctx context.Context) (*transcription.Transcript, error) {
		if cache.Abandoned(ctx).Err() != nil || !x.lease.acquire() {
			return nil, errors.Cancelled(string(StateTranscribing))
		}
		defer x.lease.done()
		return x.m.infer(ctx, x.job.ID, audio, x.scratch, opts)
	}
}

// infer runs the engine under a slot, retrying RESOURCE_EXHAUSTED after the
// slot has been given back. Once no job waits for the result, no further
// slot is acquired and no retry starts; a running engine call is not
// interrupted.
func (m *Manager) infer(ctx context.Context, jobID string, audio *media.CanonicalAudio, scratch *media.Scratch, opts engine.Options) (*transcription.Transcript, error) {
	log := m.log.WithJob(jobID)
	rctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(cache.Abandoned(ctx), cancel)()

	retry := resilience.RetryConfig{
		MaxAttempts:    m.cfg.InferenceAttempts,
		InitialBackoff: m.cfg.InferenceBackoff,
		MaxBackoff:     m.cfg.InferenceBackoff * 8,
		BackoffFactor:  2,
		Jitter:         0.1,
		RetryIf: func(err error) bool {
			return errors.HasCode(err, errors.ErrCodeResourceExhausted)
		},
		OnRetry: func(attempt int, err error, wait time.Duration) {
			m.metrics.RecordRetry(ctx, string(StateTranscribing), string(errors.CodeOf(err)))
			log.Warn("engine out of resources, retrying", logger.Fields(
				logger.FieldAttempt, attempt,
				"wait_ms", wait.Milliseconds(),
			))
		},
	}
	t, err := resilience.Retry(rctx, retry, func(ctx context.Context, _ int) (*transcription.Transcript, error) {
		if err := m.slots.Acquire(ctx); err != nil {
			return nil, err
		}
		defer m.slots.Release()

		tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.TranscribeTimeout)
		defer cancel()
		tctx, span := observability.StartSpan(tctx, observability.SpanInference, trace.WithAttributes(
			attribute.String(observability.AttrJobID, jobID),
			attribute.String(observability.AttrFingerprint, audio.Fingerprint.String()),
		))
		t, err := m.transcriber.Transcribe(tctx, audio, scratch, opts)
		if err != nil && stderrors.Is(tctx.Err(), context.DeadlineExceeded) {
			err = errors.StageTimeout(string(StateTranscribing), m.cfg.TranscribeTimeout)
		}
		code := ""
		if err != nil {
			code = string(errors.CodeOf(err))
		}
		observability.EndSpan(span, err, code)
		return t, err
	})
	if err != nil && rctx.Err() != nil {
		log.Info("inference abandoned, no job is waiting", logger.Fields(logger.FieldStage, string(StateTranscribing)))
		return nil, errors.Cancelled(string(StateTranscribing))
	}
	return t, err
}

// checkpoint fails with CANCELLED when cancellation was requested before
// the job enters next.
func (x *execution) checkpoint(ctx context.Context, next State) error {
	if x.m.signals.raised(x.job.ID) || ctx.Err() != nil {
		return errors.Cancelled(string(next))
	}
	return nil
}

// waitError maps an interrupted wait at a suspension point.
func (x *execution) waitError(ctx context.Context, err error, stage State) error {
	if ctx.Err() != nil {
		return errors.Cancelled(string(stage))
	}
	return err
}

func (x *execution) model() string {
	if x.job.Options.Model != "" {
		return x.job.Options.Model
	}
	return x.m.defaultModel
}

// stage runs fn inside a span and records its duration and outcome.
func (x *execution) stage(ctx context.Context, st State, fn func(context.Context) error) error {
	sctx, span := observability.StartStage(ctx, x.job.ID, string(st))
	start := time.Now()
	err := fn(sctx)
	d := time.Since(start)

	outcome, code := "ok", ""
	if err != nil {
		code = string(errors.CodeOf(err))
		outcome = code
	}
	observability.EndSpan(span, err, code)
	x.m.metrics.RecordStage(ctx, string(st), outcome, d)

	fields := logger.StageFields(string(st), d)
	if err != nil {
		fields[logger.FieldErrorCode] = code
		x.log.Warn("stage failed", fields)
	} else {
		x.log.Debug("stage finished", fields)
	}
	return err
}

// advance moves the job to a running state and persists it.
func (x *execution) advance(ctx context.Context, to State) error {
	tr, err := x.job.Apply(to, x.m.now(), nil)
	if err != nil {
		return errors.Internal(err)
	}
	if err := x.m.store.Update(context.WithoutCancel(ctx), x.job); err != nil {
		return err
	}
	x.m.bus.Publish(context.WithoutCancel(ctx), eventOf(x.job, tr))
	x.log.Info("job state changed", logger.Fields(logger.FieldState, string(to)))
	return nil
}

func (x *execution) succeed(t *transcription.Transcript) {
	x.job.Transcript = t
	x.finish(StateSucceeded, nil)
}

// finish records the terminal state. The store write does not depend on
// any job context, which may already be cancelled.
func (x *execution) finish(to State, cause error) {
	var jerr *JobError
	if cause != nil {
		if to == StateCancelled && !errors.HasCode(cause, errors.ErrCodeCancelled) {
			cause = errors.Cancelled(string(x.job.State))
		}
		jerr = NewJobError(cause, x.job.State)
	}
	ctx := context.Background()
	tr, err := x.job.Apply(to, x.m.now(), jerr)
	if err != nil {
		x.log.Error("finish job", logger.ErrorFields("transition", err))
		return
	}
	if err := x.m.store.Update(ctx, x.job); err != nil {
		x.log.Error("persist finished job", logger.ErrorFields("update", err))
	}
	x.m.bus.Publish(ctx, eventOf(x.job, tr))

	code := ""
	fields := logger.Fields(logger.FieldState, string(to))
	if jerr != nil {
		code = string(jerr.Code)
		fields[logger.FieldErrorCode] = code
		fields[logger.FieldStage] = string(jerr.Stage)
		fields[logger.FieldError] = jerr.Message
	}
	x.m.metrics.RecordFinished(ctx, string(to), code)
	if to == StateSucceeded {
		fields["segments"] = len(x.job.Transcript.Segments)
		x.log.Info("job finished", fields)
		return
	}
	x.log.Warn("job finished", fields)
}
