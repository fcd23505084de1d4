package engine

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/kbukum/mediascribe/errors"
	"github.com/kbukum/mediascribe/logger"
	"github.com/kbukum/mediascribe/media"
	"github.com/kbukum/mediascribe/transcription"
)

var inf = math.Inf(1)

// Options are the per-job engine settings.
type Options struct {
	Model    string
	Language string
}

// Adapter runs an engine over canonical audio. The engine handle is loaded
// once by the caller and shared by all workers.
type Adapter struct {
	engine transcription.Engine
	cfg    Config
	log    *logger.Logger
}

// New creates an Adapter around engine.
func New(engine transcription.Engine, cfg Config, log *logger.Logger) *Adapter {
	cfg.ApplyDefaults()
	if log == nil {
		log = logger.Nop()
	}
	return &Adapter{engine: engine, cfg: cfg, log: log.WithComponent("engine")}
}

// Engine returns the underlying engine handle.
func (a *Adapter) Engine() transcription.Engine { return a.engine }

// Models returns the configured model names.
func (a *Adapter) Models() []string { return a.cfg.Models }

// DefaultModel returns the model used when a job names none.
func (a *Adapter) DefaultModel() string { return a.cfg.DefaultModel }

// windowSize is the smaller of the configured window and the engine limit.
func (a *Adapter) windowSize() time.Duration {
	size := a.cfg.MaxWindow
	if w, ok := a.engine.(transcription.Windowed); ok {
		if limit := w.MaxInputDuration(); limit > 0 && (size <= 0 || limit < size) {
			size = limit
		}
	}
	return size
}

// Transcribe runs the engine over audio, window by window, writing window
// WAV files into scratch. Engine errors surface as INFERENCE_FAILURE or
// RESOURCE_EXHAUSTED; a done ctx is returned as ctx.Err().
func (a *Adapter) Transcribe(ctx context.Context, audio *media.CanonicalAudio, scratch *media.Scratch, opts Options) (*transcription.Transcript, error) {
	if opts.Model == "" {
		opts.Model = a.cfg.DefaultModel
	}
	log := a.log.WithContext(ctx)
	format := audio.Format
	windows := Plan(format, audio.Bytes, a.windowSize(), a.cfg.Overlap)
	total := audio.Duration().Seconds()

	out := &transcription.Transcript{Model: opts.Model, Duration: total}
	prevEnd := 0.0
	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := a.runWindow(ctx, audio, scratch, w, opts)
		if err != nil {
			return nil, err
		}
		if out.Language == "" || resp.LanguageProbability > out.LanguageProbability {
			out.Language = resp.Language
			out.LanguageProbability = resp.LanguageProbability
		}

		segs, err := stitch(resp.Segments, w, format, total, &prevEnd)
		if err != nil {
			return nil, errors.InferenceFailure(err)
		}
		out.Segments = append(out.Segments, segs...)
		log.Debug("window transcribed", logger.Fields(
			"window", w.Index,
			"windows", len(windows),
			"segments", len(segs),
		))
	}
	if out.Segments == nil {
		out.Segments = []transcription.Segment{}
	}
	if err := transcription.Validate(out.Segments); err != nil {
		return nil, errors.InferenceFailure(err)
	}
	out.Text = transcription.JoinText(out.Segments)
	return out, nil
}

func (a *Adapter) runWindow(ctx context.Context, audio *media.CanonicalAudio, scratch *media.Scratch, w Window, opts Options) (*transcription.Response, error) {
	path := scratch.Path(fmt.Sprintf("window-%03d.wav", w.Index))
	if err := media.ExtractWAV(*audio, w.Offset, w.Length, path); err != nil {
		return nil, errors.Internal(fmt.Errorf("write window %d: %w", w.Index, err))
	}
	defer os.Remove(path)

	resp, err := a.engine.Transcribe(ctx, transcription.Request{
		AudioPath: path,
		Duration:  audio.Format.DurationOf(w.Length).Seconds(),
		Model:     opts.Model,
		Language:  opts.Language,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.HasCode(err, errors.ErrCodeResourceExhausted) || errors.HasCode(err, errors.ErrCodeInferenceFailure) {
			return nil, err
		}
		return nil, errors.InferenceFailure(err)
	}
	if resp == nil {
		return &transcription.Response{}, nil
	}
	return resp, nil
}

// stitch offsets window-local segments to absolute time, keeps those the
// window owns and clamps them so the sequence stays ordered and disjoint.
func stitch(local []transcription.Segment, w Window, f media.Format, total float64, prevEnd *float64) ([]transcription.Segment, error) {
	base := w.Start(f)
	segs := make([]transcription.Segment, 0, len(local))
	for _, s := range local {
		if math.IsNaN(s.Start) || math.IsNaN(s.End) || math.IsInf(s.Start, 0) || math.IsInf(s.End, 0) {
			return nil, fmt.Errorf("window %d: engine returned non-finite segment time", w.Index)
		}
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		segs = append(segs, transcription.Segment{Start: base + max(s.Start, 0), End: base + max(s.End, 0), Text: text})
	}
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].Start < segs[j].Start })

	kept := segs[:0]
	for _, s := range segs {
		if s.Start < w.KeepFrom || s.Start >= w.KeepUntil {
			continue
		}
		s.Start = max(s.Start, *prevEnd)
		s.End = min(max(s.End, s.Start), max(total, s.Start))
		kept = append(kept, s)
		*prevEnd = s.End
	}
	return kept, nil
}
