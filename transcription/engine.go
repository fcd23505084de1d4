package transcription

import (
	"context"
	"time"

	"github.com/kbukum/mediascribe/provider"
)

// Engine is the speech-to-text capability. Implementations must return
// errors.InferenceFailure for engine-internal failures and
// errors.ResourceExhausted when the engine lacks memory or capacity.
type Engine interface {
	provider.Provider
	Transcribe(ctx context.Context, req Request) (*Response, error)
}

// Windowed is implemented by engines that accept a bounded input length.
type Windowed interface {
	MaxInputDuration() time.Duration
}

// Models lists the model names accepted by the API.
var Models = []string{"tiny", "base", "small", "medium", "large"}

// NewRegistry creates a registry of engine factories.
func NewRegistry() *provider.Registry[Engine] {
	return provider.NewRegistry[Engine]()
}

// Instrument wraps e with provider middlewares. The result still reports
// the wrapped engine's window limit.
func Instrument(e Engine, mws ...provider.Middleware[Request, *Response]) Engine {
	if len(mws) == 0 {
		return e
	}
	rr := provider.Chain(mws...)(executor{e})
	inst := &instrumented{RequestResponse: rr}
	if w, ok := e.(Windowed); ok {
		return &windowedInstrumented{instrumented: inst, window: w}
	}
	return inst
}

// executor presents an Engine as a RequestResponse.
type executor struct{ Engine }

func (x executor) Execute(ctx context.Context, req Request) (*Response, error) {
	return x.Transcribe(ctx, req)
}

type instrumented struct {
	provider.RequestResponse[Request, *Response]
}

func (i *instrumented) Transcribe(ctx context.Context, req Request) (*Response, error) {
	return i.Execute(ctx, req)
}

type windowedInstrumented struct {
	*instrumented
	window Windowed
}

func (w *windowedInstrumented) MaxInputDuration() time.Duration { return w.window.MaxInputDuration() }
