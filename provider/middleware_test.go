package provider_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/kbukum/mediascribe/errors"
	"github.com/kbukum/mediascribe/logger"
	"github.com/kbukum/mediascribe/observability"
	"github.com/kbukum/mediascribe/provider"
)

type echoProvider struct {
	name string
	err  error
}

func (p *echoProvider) Name() string                     { return p.name }
func (p *echoProvider) IsAvailable(context.Context) bool { return true }

func (p *echoProvider) Execute(_ context.Context, in string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return "echo:" + in, nil
}

type orderTracker struct {
	inner provider.RequestResponse[string, string]
	tag   string
	order *[]string
}

func (o *orderTracker) Name() string                        { return o.inner.Name() }
func (o *orderTracker) IsAvailable(ctx context.Context) bool { return o.inner.IsAvailable(ctx) }

func (o *orderTracker) Execute(ctx context.Context, in string) (string, error) {
	*o.order = append(*o.order, o.tag+">")
	out, err := o.inner.Execute(ctx, in)
	*o.order = append(*o.order, "<"+o.tag)
	return out, err
}

func TestChainEmpty(t *testing.T) {
	wrapped := provider.Chain[string, string]()(&echoProvider{name: "p"})
	out, err := wrapped.Execute(context.Background(), "hi")
	if err != nil || out != "echo:hi" {
		t.Fatalf("got %q, %v", out, err)
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(tag string) provider.Middleware[string, string] {
		return func(inner provider.RequestResponse[string, string]) provider.RequestResponse[string, string] {
			return &orderTracker{inner: inner, tag: tag, order: &order}
		}
	}
	wrapped := provider.Chain(mw("A"), mw("B"), mw("C"))(&echoProvider{name: "p"})
	if _, err := wrapped.Execute(context.Background(), "x"); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(order, " "); got != "A> B> C> <C <B <A" {
		t.Errorf("unexpected order %q", got)
	}
}

func newLogger(buf *bytes.Buffer) *logger.Logger {
	cfg := logger.Config{Level: "debug", Format: logger.FormatJSON}
	cfg.ApplyDefaults()
	return logger.NewWithWriter(&cfg, "test", buf)
}

func TestWithLogging(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf)

	ok := provider.WithLogging[string, string](log)(&echoProvider{name: "whisper"})
	if _, err := ok.Execute(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"provider":"whisper"`) || !strings.Contains(buf.String(), "provider call ok") {
		t.Errorf("missing success log: %s", buf.String())
	}

	buf.Reset()
	failing := provider.WithLogging[string, string](log)(&echoProvider{name: "whisper", err: errors.ResourceExhausted(nil)})
	if _, err := failing.Execute(context.Background(), "a"); err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(buf.String(), `"error_code":"RESOURCE_EXHAUSTED"`) {
		t.Errorf("missing error code in log: %s", buf.String())
	}
}

func TestWithMetricsAndTracingDelegate(t *testing.T) {
	wrapped := provider.Chain(
		provider.WithMetrics[string, string](observability.NoopMetrics()),
		provider.WithTracing[string, string]("mediascribe"),
		provider.WithMetrics[string, string](nil),
	)(&echoProvider{name: "whispercpp"})

	if wrapped.Name() != "whispercpp" || !wrapped.IsAvailable(context.Background()) {
		t.Error("expected name and availability to pass through")
	}
	out, err := wrapped.Execute(context.Background(), "z")
	if err != nil || out != "echo:z" {
		t.Errorf("got %q, %v", out, err)
	}

	failing := provider.WithTracing[string, string]("mediascribe")(&echoProvider{name: "x", err: errors.InferenceFailure(nil)})
	if _, err := failing.Execute(context.Background(), "z"); !errors.HasCode(err, errors.ErrCodeInferenceFailure) {
		t.Errorf("expected error to pass through, got %v", err)
	}
}
